package prd

import (
	"fmt"
	"strings"
)

// DefaultTitle is used when no title is supplied.
const DefaultTitle = "产品需求文档"

func priorityMarker(p Priority) string {
	switch p {
	case PriorityHigh:
		return "🔴"
	case PriorityMedium:
		return "🟡"
	default:
		return "🟢"
	}
}

// ToMarkdown renders doc under title.
func ToMarkdown(doc Document, title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)

	fmt.Fprintf(&b, "## 1. 项目背景\n\n%s\n\n", doc.Background)

	b.WriteString("## 2. 项目目标\n\n")
	for i, obj := range doc.Objectives {
		fmt.Fprintf(&b, "%d. %s\n", i+1, obj)
	}
	b.WriteString("\n")

	b.WriteString("## 3. 核心痛点\n\n")
	for i, point := range doc.PainPoints {
		fmt.Fprintf(&b, "%d. %s\n", i+1, point)
	}
	b.WriteString("\n")

	b.WriteString("## 4. 用户故事\n\n")
	for i, story := range doc.UserStories {
		fmt.Fprintf(&b, "### 用户故事 %d\n\n", i+1)
		fmt.Fprintf(&b, "- **作为** %s\n", story.As)
		fmt.Fprintf(&b, "- **我想要** %s\n", story.Want)
		fmt.Fprintf(&b, "- **以便** %s\n\n", story.SoThat)
	}

	b.WriteString("## 5. 功能特性\n\n")
	for i, f := range doc.Features {
		priority := NormalizePriority(string(f.Priority))
		fmt.Fprintf(&b, "### %d. %s %s [%s]\n\n", i+1, f.Name, priorityMarker(priority), priority)
		fmt.Fprintf(&b, "%s\n\n", f.Description)
	}

	fmt.Fprintf(&b, "## 6. 流程图描述\n\n%s\n\n", doc.Flows)
	return b.String()
}

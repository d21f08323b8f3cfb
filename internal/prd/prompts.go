package prd

import (
	"fmt"
	"strings"
)

const miniSummarySystem = `提取以下内容的核心要点。
要求：
1. 纯文本输出，不使用 markdown 符号
2. 直接陈述要点，不要"本次讨论了"之类的开场白
3. 简洁专业，150 字以内`

const overviewMergeTemplate = `整合以下内容，输出完整的要点概览。
要求：
1. 纯文本输出，不使用 markdown 符号
2. 直接陈述内容，不要开场白
3. 合并重复内容，按主题组织
4. 300 字以内

【已有内容】
%s

【新增内容】
%s

输出：`

const overviewFirstTemplate = `提取以下内容的核心要点概览。
要求：
1. 纯文本输出，不使用 markdown 符号
2. 直接陈述内容，不要开场白
3. 200 字以内

【内容】
%s

输出：`

const documentSchema = `请严格按照以下 JSON 格式输出：
{
  "background": "项目背景描述",
  "objectives": ["目标1", "目标2"],
  "painPoints": ["痛点1", "痛点2"],
  "userStories": [
    {"as": "作为...", "want": "我想要...", "soThat": "以便..."}
  ],
  "features": [
    {"name": "功能名称", "description": "功能描述", "priority": "high|medium|low"}
  ],
  "flows": "流程图描述或关键流程说明"
}`

const transcriptSystem = `你是一位资深产品专家。请分析以下会议转写文本，剔除口水话，提取核心业务逻辑，以专业的 PRD 结构输出，重点突出用户痛点和功能优先级。语言简练准确。

` + documentSchema

const summariesSystem = `你是一位资深产品专家。以下是一场需求讨论会的阶段性总结（每 2 分钟提取一次关键内容）。
请综合分析这些总结，整合重复内容，提取核心业务逻辑，生成一份完整的 PRD。
要求：
1. 合并相似或重复的需求点
2. 按优先级排序功能特性
3. 语言简练专业

` + documentSchema

// FormatTimestamp renders seconds as m:ss.
func FormatTimestamp(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// FormatSummaries renders summaries as numbered, timestamped sections
// separated by horizontal rules.
func FormatSummaries(summaries []Summary) string {
	sections := make([]string, 0, len(summaries))
	for i, s := range summaries {
		sections = append(sections, fmt.Sprintf("【第 %d 段，时间 %s】\n%s", i+1, FormatTimestamp(s.Timestamp), strings.TrimSpace(s.Content)))
	}
	return strings.Join(sections, "\n\n---\n\n")
}

func summariesUserPrompt(summaries []Summary) string {
	return fmt.Sprintf("以下是会议的 %d 个阶段性总结：\n\n%s", len(summaries), FormatSummaries(summaries))
}

package prd

import "strings"

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func mockMiniSummary(text string) string {
	return "要点：" + truncateRunes(strings.Join(strings.Fields(text), " "), 60)
}

func mockOverview(previous, newSummary string) string {
	if previous != "" {
		return previous + "\n\n【新增要点】" + truncateRunes(newSummary, 100) + "..."
	}
	return "【会议概览】" + truncateRunes(newSummary, 200) + "..."
}

func mockDocument() Document {
	return Document{
		Background: "团队希望用语音记录需求讨论，并自动整理成结构化的产品需求文档，减少会后人工整理的时间。",
		Objectives: []string{
			"会议结束后 5 分钟内产出 PRD 初稿",
			"讨论过程中实时展示阶段性要点",
		},
		PainPoints: []string{
			"会后整理纪要耗时且容易遗漏",
			"长时间会议的关键结论难以回溯",
		},
		UserStories: []UserStory{
			{As: "产品经理", Want: "边开会边看到要点摘要", SoThat: "及时纠正讨论方向"},
			{As: "研发负责人", Want: "拿到按优先级排序的功能列表", SoThat: "快速排期"},
		},
		Features: []Feature{
			{Name: "实时转写", Description: "录音时实时显示识别文本，区分说话人。", Priority: PriorityHigh},
			{Name: "阶段性总结", Description: "每 2 分钟对新增内容生成简短摘要。", Priority: PriorityMedium},
			{Name: "PRD 导出", Description: "将生成的 PRD 导出为 Markdown。", Priority: PriorityLow},
		},
		Flows: "录音 → 实时转写 → 阶段性总结 → 汇总生成 PRD → 编辑与导出",
	}
}

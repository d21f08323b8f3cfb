package llm

// Prompt is one system/user exchange with its sampling settings.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	JSON        bool
}

package prd

import "strings"

// Priority ranks a feature.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// NormalizePriority maps free-form model output onto high, medium, or low.
// Unknown values become medium.
func NormalizePriority(value string) Priority {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case v == "high", v == "p0", v == "p1", strings.Contains(v, "高"):
		return PriorityHigh
	case v == "low", v == "p3", strings.Contains(v, "低"):
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// UserStory is one "as / want / so that" triple.
type UserStory struct {
	As     string `json:"as"`
	Want   string `json:"want"`
	SoThat string `json:"soThat"`
}

// Feature is one prioritized capability.
type Feature struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
}

// Document is the structured PRD returned by the model.
type Document struct {
	Background  string      `json:"background"`
	Objectives  []string    `json:"objectives"`
	PainPoints  []string    `json:"painPoints"`
	UserStories []UserStory `json:"userStories"`
	Features    []Feature   `json:"features"`
	Flows       string      `json:"flows"`
}

func (d *Document) normalize() {
	d.Background = strings.TrimSpace(d.Background)
	d.Flows = strings.TrimSpace(d.Flows)
	d.Objectives = compactStrings(d.Objectives)
	d.PainPoints = compactStrings(d.PainPoints)
	if d.UserStories == nil {
		d.UserStories = []UserStory{}
	}
	if d.Features == nil {
		d.Features = []Feature{}
	}
	for i := range d.Features {
		d.Features[i].Name = strings.TrimSpace(d.Features[i].Name)
		d.Features[i].Description = strings.TrimSpace(d.Features[i].Description)
		d.Features[i].Priority = NormalizePriority(string(d.Features[i].Priority))
	}
}

func (d Document) empty() bool {
	return d.Background == "" && len(d.Objectives) == 0 && len(d.PainPoints) == 0 &&
		len(d.UserStories) == 0 && len(d.Features) == 0 && d.Flows == ""
}

func compactStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Summary is a rolling summary taken at Timestamp seconds into a recording.
type Summary struct {
	Content   string `json:"content"`
	Timestamp int    `json:"timestamp"`
}

package intent

import "strings"

type Intent string

const (
	Search    Intent = "search"
	Task      Intent = "task"
	Knowledge Intent = "knowledge"
	Chat      Intent = "chat"
	Action    Intent = "action"
)

// Parse maps a classifier label to an Intent. "memory" is an older label
// for task lookups.
func Parse(label string) (Intent, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "search":
		return Search, true
	case "task", "memory":
		return Task, true
	case "knowledge":
		return Knowledge, true
	case "chat":
		return Chat, true
	case "action":
		return Action, true
	}
	return "", false
}

type Source string

const (
	SourceFastPath Source = "fast_path"
	SourceRemote   Source = "remote"
	SourceKeywords Source = "keywords"
	SourceDefault  Source = "default"
)

type Result struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

package translator

import "strings"

// modelMap is the authoritative Anthropic-to-upstream model rename table.
// Case-sensitive; unknown names fall through mapModelFuzzy.
var modelMap = map[string]string{
	"claude-sonnet-4-5-20250929": "claude-sonnet-4.5",
	"claude-sonnet-4-20250514":   "claude-sonnet-4",
	"claude-opus-4-6":            "claude-opus-4.6",
	"claude-opus-4-1-20250805":   "claude-opus-4.1",
	"claude-opus-4-20250514":     "claude-opus-4",
	"claude-3-7-sonnet-20250219": "claude-sonnet-4.5",
	"claude-3-5-sonnet-20241022": "claude-sonnet-4",
	"claude-3-haiku-20240307":    "claude-haiku-4.5",
	"claude-3-5-haiku-20241022":  "claude-haiku-4.5",
}

// MapModel resolves an Anthropic model name to its upstream equivalent. A
// name not present in the table is passed through unchanged unless it looks
// like a Claude name, in which case a fuzzy substring rule applies. Foreign
// model names (e.g. "gpt-4o") are preserved verbatim.
func MapModel(name string) string {
	if mapped, ok := modelMap[name]; ok {
		return mapped
	}
	lower := strings.ToLower(name)
	if fuzzy, ok := mapModelFuzzy(lower); ok {
		return fuzzy
	}
	return name
}

// mapModelFuzzy keys on the model family substring plus a version hint.
func mapModelFuzzy(lower string) (string, bool) {
	var family string
	switch {
	case strings.Contains(lower, "sonnet"):
		family = "sonnet"
	case strings.Contains(lower, "opus"):
		family = "opus"
	case strings.Contains(lower, "haiku"):
		family = "haiku"
	default:
		return "", false
	}

	version := defaultVersionFor(family)
	switch {
	case strings.Contains(lower, "4-5") || strings.Contains(lower, "4.5"):
		version = "4.5"
	case strings.Contains(lower, "4-6") || strings.Contains(lower, "4.6"):
		version = "4.6"
	}
	return "claude-" + family + "-" + version, true
}

func defaultVersionFor(family string) string {
	switch family {
	case "haiku":
		return "4.5"
	default:
		return "4.5"
	}
}

// Package formatter implements the rule-based text transforms applied by
// formatter nodes (spec.md §4.2) and by agent-dispatched formatter tool
// calls (spec.md §4.4).
package formatter

import (
	"fmt"
	"strings"

	"github.com/ryoshumei/workflowengine/internal/engineerr"
)

// Apply runs rules against text in listed order. An empty rule list is a
// no-op; an unrecognized rule fails the whole call.
func Apply(text string, rules []string) (string, error) {
	result := text
	for _, rule := range rules {
		applied, err := applyOne(result, rule)
		if err != nil {
			return "", err
		}
		result = applied
	}
	return result, nil
}

func applyOne(text, rule string) (string, error) {
	switch rule {
	case "lowercase":
		return strings.ToLower(text), nil
	case "uppercase":
		return strings.ToUpper(text), nil
	case "full_to_half":
		return fullToHalf(text), nil
	case "half_to_full":
		return halfToFull(text), nil
	default:
		return "", engineerr.New(engineerr.Validation, fmt.Sprintf("unsupported formatter rule %q", rule))
	}
}

// halfToFull maps ASCII space and printable ASCII (0x21-0x7E) to their
// full-width Unicode equivalents, leaving all other runes untouched.
func halfToFull(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == 0x20:
			b.WriteRune(0x3000)
		case r >= 0x21 && r <= 0x7E:
			b.WriteRune(r - 0x21 + 0xFF01)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// fullToHalf is the inverse of halfToFull.
func fullToHalf(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == 0x3000:
			b.WriteRune(0x20)
		case r >= 0xFF01 && r <= 0xFF5E:
			b.WriteRune(r - 0xFF01 + 0x21)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

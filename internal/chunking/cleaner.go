package chunking

import (
	"regexp"
	"strings"
)

// answerPrefixPattern matches echoed "Answer to '...':" headers left behind
// by earlier generations pasted into documents.
var answerPrefixPattern = regexp.MustCompile(`(?i)^answer to '.*?':`)

const placeholderMarker = "placeholder response"

// Clean normalizes raw extracted text.
//
// Each line is trimmed. Lines that are empty, contain "placeholder response"
// (any case), or start with "answer to '<...>':" are dropped. The surviving
// lines are joined with "\n" in their original order.
func Clean(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(strings.ToLower(line), placeholderMarker) {
			continue
		}
		if answerPrefixPattern.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}

	return strings.Join(kept, "\n")
}

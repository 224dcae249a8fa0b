package stream

import "strings"

func diffTranscript(previous, current string) string {
	prevTrimmed := strings.TrimSpace(previous)
	currTrimmed := strings.TrimSpace(current)

	if prevTrimmed == "" {
		return currTrimmed
	}
	if prevTrimmed == currTrimmed {
		return ""
	}

	prevRunes := []rune(prevTrimmed)
	currRunes := []rune(currTrimmed)

	if len(prevRunes) > len(currRunes) {
		return currTrimmed
	}
	for i := range prevRunes {
		if currRunes[i] != prevRunes[i] {
			return currTrimmed
		}
	}

	delta := string(currRunes[len(prevRunes):])
	return strings.TrimLeft(delta, " \t\r\n")
}

// normaliseLanguage returns the first non-blank candidate, lower-cased, or "auto".
func normaliseLanguage(candidates ...string) string {
	for _, c := range candidates {
		if trimmed := strings.ToLower(strings.TrimSpace(c)); trimmed != "" {
			return trimmed
		}
	}
	return "auto"
}

package dialog

import "strings"

// isYes and isNo accept the Russian vocabulary of the clinic's audience plus
// the English equivalents. Anything else holds the current stage.
func isYes(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "да", "yes":
		return true
	}
	return false
}

func isNo(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "нет", "no":
		return true
	}
	return false
}

func isScore(text string) bool {
	switch strings.TrimSpace(text) {
	case "1", "2", "3", "4", "5":
		return true
	}
	return false
}

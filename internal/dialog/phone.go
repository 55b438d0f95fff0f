package dialog

import (
	"regexp"
	"strings"
)

// phoneRe recognizes Russian mobile numbers: an optional "+", a 7 or 8
// country marker, then a 10-digit number in 3-3-2-2 grouping with optional
// dash separators. Parentheses are stripped before matching.
var phoneRe = regexp.MustCompile(`\+?(7|8)-?(\d{3})-?(\d{3})-?(\d{2})-?(\d{2})`)

// NormalizePhone converts a raw phone string to the canonical
// "7-XXX-XXX-XX-XX" form. The second return is false when the input does not
// have the recognized shape; that is "no phone provided", not an error.
func NormalizePhone(raw string) (string, bool) {
	cleaned := strings.NewReplacer("(", "", ")", "").Replace(raw)
	m := phoneRe.FindStringSubmatch(cleaned)
	if m == nil {
		return "", false
	}
	return "7-" + m[2] + "-" + m[3] + "-" + m[4] + "-" + m[5], true
}

package normalize

import (
	"regexp"
	"strings"
)

// PostalCodeLength is the length of a French postal code.
const PostalCodeLength = 5

// floatSuffix matches the ".0" spreadsheet tools append to numeric codes.
var floatSuffix = regexp.MustCompile(`^(\d+)\.0+$`)

// PostalCode keeps the digits of raw and returns the first five, or "" when
// fewer than five remain. A trailing ".0" is dropped before the digits are
// kept, so "6000.0" is rejected rather than read as "60000".
func PostalCode(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := floatSuffix.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == PostalCodeLength {
				return b.String()
			}
		}
	}
	return ""
}

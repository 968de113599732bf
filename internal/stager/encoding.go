package stager

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// RepairText normalizes a text value from an upstream of uncertain encoding.
// Invalid UTF-8 is assumed to be Windows-1252, the usual culprit in legacy
// marketing exports; valid input is trimmed and NFC-normalized.
func RepairText(s string) string {
	if !utf8.ValidString(s) {
		if decoded, err := charmap.Windows1252.NewDecoder().String(s); err == nil {
			s = decoded
		} else {
			s = strings.ToValidUTF8(s, "")
		}
	}
	return strings.TrimSpace(norm.NFC.String(s))
}

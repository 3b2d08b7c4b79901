package livefeed

import (
	"strconv"
	"strings"
)

// Escape replaces '<', '>', '&' and every rune outside printable ASCII with a
// numeric character reference. Text from other teams is inserted into the page
// only through Escape.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '<' || r == '>' || r == '&' || r < 0x20 || r > 0x7e {
			b.WriteString("&#")
			b.WriteString(strconv.Itoa(int(r)))
			b.WriteByte(';')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

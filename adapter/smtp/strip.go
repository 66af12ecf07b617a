package smtp

import (
	"strings"

	"golang.org/x/net/html"
)

// StripTags removes markup from s and keeps the text between tags as
// written, entities included.
func StripTags(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Raw())
		}
	}
}

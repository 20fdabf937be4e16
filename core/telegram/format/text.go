// Package format renders user-supplied values into the legacy Telegram
// Markdown used for every bot reply.
package format

import "strings"

// legacy Markdown only treats these four as markup.
var mdEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

// MD escapes text for a Markdown body.
func MD(text string) string {
	return mdEscaper.Replace(text)
}

// Code wraps text in an inline code span. Backticks cannot be escaped inside a
// span and are removed.
func Code(text string) string {
	return "`" + strings.ReplaceAll(text, "`", "") + "`"
}

// ShortAddress abbreviates addr to its first head and last tail bytes, e.g.
// 0x1234...abcd. Short values pass through.
func ShortAddress(addr string, head, tail int) string {
	if head < 0 || tail < 0 || len(addr) <= head+tail+3 {
		return addr
	}
	return addr[:head] + "..." + addr[len(addr)-tail:]
}

// FullName joins the non-empty name parts with single spaces. Nil parts are skipped.
func FullName(parts ...*string) string {
	var out []string
	for _, p := range parts {
		if p == nil {
			continue
		}
		if s := strings.TrimSpace(*p); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, " ")
}

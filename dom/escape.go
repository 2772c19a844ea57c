package dom

import "strings"

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	`"`, "&quot;",
	"<", "&lt;",
	">", "&gt;",
)

// EscapeHTML escapes &, ", < and > so the result can be interpolated into
// markup handed to SetInnerHTML or into a double-quoted attribute.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// Trim strips leading and trailing ASCII spaces. Tabs and newlines are kept.
func Trim(s string) string {
	return strings.Trim(s, " ")
}

package formula

import (
	"regexp"
	"strings"
)

// Criteria wildcard grammar: '*' matches any run, '?' any single
// character, and '~' escapes either back to a literal.

// HasWildcard reports whether s contains an unescaped * or ?
func HasWildcard(s string) bool {
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '~':
			i++ // skip the escaped rune
		case '*', '?':
			return true
		}
	}
	return false
}

// WildcardToRegexp compiles the wildcard pattern into an anchored,
// case-insensitive regular expression.
func WildcardToRegexp(s string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?i)^")
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '~':
			if i+1 < len(runes) && (runes[i+1] == '*' || runes[i+1] == '?') {
				b.WriteString(regexp.QuoteMeta(string(runes[i+1])))
				i++
				continue
			}
			b.WriteString(regexp.QuoteMeta("~"))
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(runes[i])))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

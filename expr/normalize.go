package expr

import "strings"

// Normalize rewrites single-quoted string literals to double quotes and the
// strict equality operators === and !== to == and !=. Text inside
// double-quoted literals is left untouched.
func Normalize(expression string) string {
	var b strings.Builder
	b.Grow(len(expression) + 8)

	in := []rune(expression)
	for i := 0; i < len(in); i++ {
		switch r := in[i]; {
		case r == '"':
			j, _ := skipQuoted(in, i, '"')
			b.WriteString(string(in[i:j]))
			i = j - 1
		case r == '\'':
			j, closed := skipQuoted(in, i, '\'')
			if !closed {
				b.WriteString(string(in[i:]))
				return b.String()
			}
			b.WriteString(requote(in[i+1 : j-1]))
			i = j - 1
		case (r == '=' || r == '!') && i+2 < len(in) && in[i+1] == '=' && in[i+2] == '=':
			b.WriteRune(r)
			b.WriteRune('=')
			i += 2
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// skipQuoted returns the index just past the literal opened at in[start].
// An unterminated literal runs to the end of input.
func skipQuoted(in []rune, start int, quote rune) (int, bool) {
	for j := start + 1; j < len(in); j++ {
		switch in[j] {
		case '\\':
			j++
		case quote:
			return j + 1, true
		}
	}
	return len(in), false
}

// requote renders the body of a single-quoted literal as an HCL string.
func requote(body []rune) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(body); i++ {
		r := body[i]
		switch {
		case r == '\\' && i+1 < len(body) && body[i+1] == '\'':
			b.WriteRune('\'')
			i++
		case r == '"':
			b.WriteString(`\"`)
		case (r == '$' || r == '%') && i+1 < len(body) && body[i+1] == '{':
			b.WriteRune(r)
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

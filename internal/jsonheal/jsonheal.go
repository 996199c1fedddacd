// Package jsonheal structurally repairs truncated JSON so that streamed
// partial operation input can be parsed by a view. Healed output is preview
// data only: unterminated strings are closed, dangling separators patched,
// and open brackets and braces auto-closed.
package jsonheal

import "strings"

type frame struct {
	open     byte // '{' or '['
	sawColon bool // object frames: a colon was seen since the last key began
}

// Heal returns input with its structure closed off. The result parses as
// JSON whenever the input is a prefix of valid JSON; otherwise the input is
// returned unchanged as best effort.
func Heal(input string) string {
	var (
		stack    []frame
		inString bool
		escaped  bool
	)

	for i := 0; i < len(input); i++ {
		c := input[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, frame{open: c})
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case ':':
			if len(stack) > 0 {
				stack[len(stack)-1].sawColon = true
			}
		case ',':
			if len(stack) > 0 {
				stack[len(stack)-1].sawColon = false
			}
		}
	}

	var b strings.Builder
	b.Grow(len(input) + len(stack) + 8)

	body := input
	if escaped {
		// A lone trailing backslash cannot be completed meaningfully.
		body = body[:len(body)-1]
	}
	b.WriteString(body)
	if inString {
		b.WriteByte('"')
	}

	if !inString {
		completeLiteral(&b)
		trimNumberTail(&b)
	}

	// Patch a dangling separator so the enclosing container stays valid.
	switch lastSignificant(b.String()) {
	case ',':
		s := strings.TrimRight(b.String(), " \t\r\n")
		b.Reset()
		b.WriteString(s[:len(s)-1])
	case ':':
		b.WriteString("null")
	case '"':
		// A closed string directly inside an object with no colon yet is a
		// truncated key; give it a placeholder value.
		if n := len(stack); n > 0 && stack[n-1].open == '{' && !stack[n-1].sawColon {
			b.WriteString(":null")
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		switch stack[i].open {
		case '{':
			b.WriteByte('}')
		case '[':
			b.WriteByte(']')
		}
	}

	return b.String()
}

// completeLiteral finishes a truncated true/false/null keyword.
func completeLiteral(b *strings.Builder) {
	s := b.String()
	i := len(s)
	for i > 0 && s[i-1] >= 'a' && s[i-1] <= 'z' {
		i--
	}
	tail := s[i:]
	if tail == "" {
		return
	}
	for _, lit := range []string{"true", "false", "null"} {
		if len(tail) < len(lit) && strings.HasPrefix(lit, tail) {
			b.WriteString(lit[len(tail):])
			return
		}
	}
}

// lastSignificant returns the last non-whitespace byte of s, or 0 when s
// holds nothing but whitespace.
func lastSignificant(s string) byte {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return s[i]
		}
	}
	return 0
}

// trimNumberTail drops characters that leave a number token incomplete, such
// as a trailing decimal point, sign, or exponent marker.
func trimNumberTail(b *strings.Builder) {
	s := b.String()
	n := len(s)
	for n > 0 && strings.IndexByte(".-+eE", s[n-1]) >= 0 {
		n--
	}
	if n == len(s) {
		return
	}
	// Only trim when the tail actually belongs to a number; a completed
	// keyword like "true" also ends in one of the marker characters.
	if n > 0 {
		c := s[n-1]
		isDigit := c >= '0' && c <= '9'
		if !isDigit && strings.IndexByte(":,[ \t\r\n", c) < 0 {
			return
		}
	}
	b.Reset()
	b.WriteString(s[:n])
}

package extract

import "strings"

// The fragment scanner splits JavaScript object and array literal text at
// top-level separators. String literals, template literals (including
// nested ${...} expressions) and comments are skipped, so braces or commas
// inside them never affect nesting. Regular expression literals are not
// recognized; a regex containing an unbalanced bracket or a quote can still
// mislead the scanner.

// scanVisit is called for every byte outside strings and comments. depth is
// the bracket nesting before c is applied. Returning false stops the scan.
type scanVisit func(i int, c byte, depth int) bool

// scan walks text from offset from and returns the offset it stopped at, or
// len(text) when it ran to the end.
func scan(text string, from int, visit scanVisit) int {
	depth := 0
	for i := from; i < len(text); i++ {
		c := text[i]
		switch c {
		case '/':
			if i+1 < len(text) && text[i+1] == '/' {
				j := strings.IndexByte(text[i:], '\n')
				if j < 0 {
					return len(text)
				}
				i += j
				continue
			}
			if i+1 < len(text) && text[i+1] == '*' {
				j := strings.Index(text[i+2:], "*/")
				if j < 0 {
					return len(text)
				}
				i += j + 3
				continue
			}
		case '"', '\'':
			i = skipQuoted(text, i)
			continue
		case '`':
			i = skipTemplate(text, i)
			continue
		}
		if !visit(i, c, depth) {
			return i
		}
		switch c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		}
	}
	return len(text)
}

// skipQuoted returns the offset of the quote closing the string opened at i.
func skipQuoted(text string, i int) int {
	q := text[i]
	for j := i + 1; j < len(text); j++ {
		switch text[j] {
		case '\\':
			j++
		case q, '\n':
			return j
		}
	}
	return len(text) - 1
}

// skipTemplate returns the offset of the backtick closing the template
// literal opened at i.
func skipTemplate(text string, i int) int {
	for j := i + 1; j < len(text); j++ {
		switch text[j] {
		case '\\':
			j++
		case '`':
			return j
		case '$':
			if j+1 < len(text) && text[j+1] == '{' {
				j = scan(text, j+2, func(_ int, c byte, depth int) bool {
					return c != '}' || depth != 0
				})
			}
		}
	}
	return len(text) - 1
}

// splitTopLevel splits text at every depth-zero occurrence of sep.
func splitTopLevel(text string, sep byte) []string {
	var parts []string
	last := 0
	scan(text, 0, func(i int, c byte, depth int) bool {
		if depth == 0 && c == sep {
			parts = append(parts, text[last:i])
			last = i + 1
		}
		return true
	})
	return append(parts, text[last:])
}

// indexTopLevel returns the first depth-zero offset of any byte in chars, or -1.
func indexTopLevel(text, chars string) int {
	found := -1
	scan(text, 0, func(i int, c byte, depth int) bool {
		if depth == 0 && strings.IndexByte(chars, c) >= 0 {
			found = i
			return false
		}
		return true
	})
	return found
}

// unwrap returns the text between a leading open bracket and its matching
// close bracket, which must end the (trimmed) text.
func unwrap(text string, open, close byte) (string, bool) {
	t := strings.TrimSpace(text)
	if len(t) < 2 || t[0] != open {
		return "", false
	}
	end := scan(t, 0, func(i int, c byte, depth int) bool {
		return i == 0 || c != close || depth != 1
	})
	if end != len(t)-1 {
		return "", false
	}
	return t[1:end], true
}

// entry is one property of an object literal.
type entry struct {
	Key   string
	Value string
}

// objectEntries splits object literal text into its top-level properties.
// Method shorthand (update(d) { ... }) becomes a function expression and
// shorthand properties (target) map to their own name. Spread elements are
// dropped.
func objectEntries(text string) ([]entry, bool) {
	inner, ok := unwrap(text, '{', '}')
	if !ok {
		return nil, false
	}
	var out []entry
	for _, part := range splitTopLevel(inner, ',') {
		part = strings.TrimSpace(part)
		if part == "" || strings.HasPrefix(part, "...") {
			continue
		}
		if e, ok := parseEntry(part); ok {
			out = append(out, e)
		}
	}
	return out, true
}

func parseEntry(part string) (entry, bool) {
	idx := indexTopLevel(part, ":(")
	if idx < 0 {
		return entry{Key: unquoteKey(part), Value: part}, true
	}
	if part[idx] == ':' {
		key := unquoteKey(strings.TrimSpace(part[:idx]))
		value := strings.TrimSpace(part[idx+1:])
		if key == "" || value == "" {
			return entry{}, false
		}
		return entry{Key: key, Value: value}, true
	}

	// Method shorthand.
	head := strings.TrimSpace(part[:idx])
	prefix := "function"
	if rest, ok := strings.CutPrefix(head, "async "); ok {
		head = strings.TrimSpace(rest)
		prefix = "async function"
	}
	head = strings.TrimPrefix(head, "*")
	if head == "" {
		return entry{}, false
	}
	return entry{Key: unquoteKey(head), Value: prefix + part[idx:]}, true
}

func unquoteKey(k string) string {
	if v, ok := stringLiteral(k); ok {
		return v
	}
	return strings.TrimSpace(k)
}

// stringLiteral returns the contents of a quoted literal without
// substitutions.
func stringLiteral(text string) (string, bool) {
	t := strings.TrimSpace(text)
	if len(t) < 2 {
		return "", false
	}
	q := t[0]
	if (q != '"' && q != '\'' && q != '`') || t[len(t)-1] != q {
		return "", false
	}
	if q == '`' && strings.Contains(t, "${") {
		return "", false
	}
	if skipQuoted(t, 0) != len(t)-1 && q != '`' {
		return "", false
	}
	return t[1 : len(t)-1], true
}

// arrayElements splits array literal text into its top-level elements.
func arrayElements(text string) ([]string, bool) {
	inner, ok := unwrap(text, '[', ']')
	if !ok {
		return nil, false
	}
	var out []string
	for _, part := range splitTopLevel(inner, ',') {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, true
}

func lookup(entries []entry, key string) (string, bool) {
	for _, e := range entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

package extract

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// SyntaxError reports where a literal failed to parse.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid literal at offset %d: %s", e.Offset, e.Msg)
}

// ParseLiteral parses a Python-style literal expression: dicts, lists,
// tuples, single, double or triple quoted strings, numbers, True/False/None
// and their JSON spellings. Strict JSON is a subset. Dicts decode to
// map[string]interface{}, lists and tuples to []interface{}, integers to
// int64 and other numbers to float64.
func ParseLiteral(src string) (interface{}, error) {
	p := &literalParser{src: src}
	p.skipSpace()
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected trailing text %q", abbreviate(p.src[p.pos:]))
	}
	return v, nil
}

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) errorf(format string, args ...interface{}) error {
	return &SyntaxError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *literalParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch c := p.src[p.pos]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			p.pos++
		case c == '\\' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '\n':
			p.pos += 2
		case c == '#':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *literalParser) value() (interface{}, error) {
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end of input")
	}
	c := p.peek()
	switch {
	case c == '{':
		return p.dict()
	case c == '[':
		return p.sequence('[', ']')
	case c == '(':
		return p.sequence('(', ')')
	case c == '\'' || c == '"':
		return p.stringValue()
	case c == '-' || c == '+' || c == '.' || isDigit(c):
		return p.number()
	case isIdentStart(c):
		if p.stringPrefix() {
			return p.stringValue()
		}
		return p.keyword()
	default:
		return nil, p.errorf("unexpected character %q", c)
	}
}

func (p *literalParser) dict() (interface{}, error) {
	p.pos++ // {
	out := make(map[string]interface{})
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return out, nil
		}
		keyPos := p.pos
		key, err := p.value()
		if err != nil {
			return nil, err
		}
		k, err := dictKey(key)
		if err != nil {
			p.pos = keyPos
			return nil, p.errorf("%v", err)
		}
		p.skipSpace()
		if p.peek() != ':' {
			return nil, p.errorf("expected ':' after dict key")
		}
		p.pos++
		p.skipSpace()
		val, err := p.value()
		if err != nil {
			return nil, err
		}
		out[k] = val

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return out, nil
		default:
			return nil, p.errorf("expected ',' or '}' in dict")
		}
	}
}

func dictKey(key interface{}) (string, error) {
	switch k := key.(type) {
	case string:
		return k, nil
	case int64, float64, bool:
		return fmt.Sprint(k), nil
	case nil:
		return "None", nil
	default:
		return "", fmt.Errorf("unhashable dict key of type %T", key)
	}
}

// sequence parses lists and tuples. A parenthesised single value without a
// trailing comma is just that value, as in Python.
func (p *literalParser) sequence(open, closing byte) (interface{}, error) {
	p.pos++ // open
	out := make([]interface{}, 0)
	sawComma := false
	for {
		p.skipSpace()
		if p.peek() == closing {
			p.pos++
			if open == '(' && len(out) == 1 && !sawComma {
				return out[0], nil
			}
			return out, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
			sawComma = true
		case closing:
		default:
			return nil, p.errorf("expected ',' or %q", closing)
		}
	}
}

// stringValue parses one or more adjacent string literals and concatenates them.
func (p *literalParser) stringValue() (interface{}, error) {
	var b strings.Builder
	for {
		s, err := p.stringLiteral()
		if err != nil {
			return nil, err
		}
		b.WriteString(s)

		save := p.pos
		p.skipSpace()
		c := p.peek()
		if c == '\'' || c == '"' || (isIdentStart(c) && p.stringPrefix()) {
			continue
		}
		p.pos = save
		return b.String(), nil
	}
}

// stringPrefix reports whether the identifier at pos is a string prefix
// such as r, u, b or rb followed by a quote.
func (p *literalParser) stringPrefix() bool {
	i := p.pos
	for i < len(p.src) && i-p.pos < 2 && strings.IndexByte("rRuUbB", p.src[i]) >= 0 {
		i++
	}
	return i > p.pos && i < len(p.src) && (p.src[i] == '\'' || p.src[i] == '"')
}

func (p *literalParser) stringLiteral() (string, error) {
	raw := false
	for strings.IndexByte("rRuUbB", p.peek()) >= 0 && p.peek() != 0 {
		if c := p.peek(); c == 'r' || c == 'R' {
			raw = true
		}
		p.pos++
	}

	start := p.pos
	quote := p.peek()
	delim := string(quote)
	if strings.HasPrefix(p.src[p.pos:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}
	p.pos += len(delim)
	triple := len(delim) == 3

	var b strings.Builder
	for {
		if p.pos >= len(p.src) {
			p.pos = start
			return "", p.errorf("unterminated string")
		}
		if strings.HasPrefix(p.src[p.pos:], delim) {
			p.pos += len(delim)
			return b.String(), nil
		}
		c := p.src[p.pos]
		if c == '\n' && !triple {
			return "", p.errorf("newline in single-quoted string")
		}
		if c != '\\' {
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			b.WriteRune(r)
			p.pos += size
			continue
		}
		if raw {
			b.WriteByte('\\')
			p.pos++
			if p.pos < len(p.src) {
				r, size := utf8.DecodeRuneInString(p.src[p.pos:])
				b.WriteRune(r)
				p.pos += size
			}
			continue
		}
		if err := p.escape(&b); err != nil {
			return "", err
		}
	}
}

func (p *literalParser) escape(b *strings.Builder) error {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return p.errorf("unterminated escape")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case '\n':
	case '\\', '\'', '"':
		b.WriteByte(c)
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'a':
		b.WriteByte('\a')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'v':
		b.WriteByte('\v')
	case 'x':
		return p.hexEscape(b, 2)
	case 'u':
		return p.hexEscape(b, 4)
	case 'U':
		return p.hexEscape(b, 8)
	case '0', '1', '2', '3', '4', '5', '6', '7':
		n := int(c - '0')
		for i := 0; i < 2 && p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '7'; i++ {
			n = n*8 + int(p.src[p.pos]-'0')
			p.pos++
		}
		b.WriteRune(rune(n))
	default:
		// unknown escapes keep their backslash
		b.WriteByte('\\')
		p.pos--
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		b.WriteRune(r)
		p.pos += size
	}
	return nil
}

func (p *literalParser) hexEscape(b *strings.Builder, digits int) error {
	if p.pos+digits > len(p.src) {
		return p.errorf("truncated escape")
	}
	n, err := strconv.ParseUint(p.src[p.pos:p.pos+digits], 16, 32)
	if err != nil {
		return p.errorf("invalid hex escape %q", p.src[p.pos:p.pos+digits])
	}
	p.pos += digits
	b.WriteRune(rune(n))
	return nil
}

func (p *literalParser) number() (interface{}, error) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
		p.skipSpace()
	}
	sign := strings.TrimSpace(p.src[start:p.pos])
	digitsStart := p.pos

	if strings.HasPrefix(strings.ToLower(p.src[p.pos:]), "0x") {
		p.pos += 2
		for p.pos < len(p.src) && (isHexDigit(p.src[p.pos]) || p.src[p.pos] == '_') {
			p.pos++
		}
		n, err := strconv.ParseInt(sign+strings.ReplaceAll(p.src[digitsStart:p.pos], "_", ""), 0, 64)
		if err != nil {
			return nil, p.errorf("invalid number: %v", err)
		}
		return n, nil
	}

	isFloat := false
scan:
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case isDigit(c) || c == '_':
		case c == '.':
			isFloat = true
		case c == 'e' || c == 'E':
			isFloat = true
			if p.pos+1 < len(p.src) && (p.src[p.pos+1] == '-' || p.src[p.pos+1] == '+') {
				p.pos++
			}
		default:
			break scan
		}
		p.pos++
	}
	if p.pos == digitsStart {
		return nil, p.errorf("expected number")
	}

	text := sign + strings.ReplaceAll(p.src[digitsStart:p.pos], "_", "")
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q", text)
		}
		return f, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(text, 64)
		if ferr != nil {
			return nil, p.errorf("invalid number %q", text)
		}
		return f, nil
	}
	return n, nil
}

func (p *literalParser) keyword() (interface{}, error) {
	start := p.pos
	for p.pos < len(p.src) && (isIdentStart(p.src[p.pos]) || isDigit(p.src[p.pos])) {
		p.pos++
	}
	switch word := p.src[start:p.pos]; word {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	case "None", "null":
		return nil, nil
	default:
		p.pos = start
		return nil, p.errorf("unknown name %q", word)
	}
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isHexDigit(c byte) bool   { return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func abbreviate(s string) string {
	if len(s) <= 40 {
		return s
	}
	return s[:40] + "..."
}

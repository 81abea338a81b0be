package literal

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxDepth bounds container nesting.
const maxDepth = 256

// Parse parses a single literal expression. Surrounding whitespace is
// ignored. A bare comma-separated sequence ("1, 2") is a tuple.
func Parse(s string) (any, error) {
	p := &parser{src: s}
	v, err := p.parseTopLevel()
	if err != nil {
		return nil, err
	}
	return v, nil
}

type parser struct {
	src   string
	pos   int
	depth int
}

func (p *parser) errorf(offset int, format string, args ...any) error {
	return &SyntaxError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseTopLevel() (any, error) {
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf(p.pos, "empty expression")
	}

	first, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.eof() {
		return first, nil
	}
	if p.peek() != ',' {
		return nil, p.errorf(p.pos, "unexpected %q after value", p.peekRune())
	}

	items := Tuple{first}
	for !p.eof() && p.peek() == ',' {
		p.pos++
		p.skipSpace()
		if p.eof() {
			break
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		p.skipSpace()
	}
	if !p.eof() {
		return nil, p.errorf(p.pos, "unexpected %q after value", p.peekRune())
	}
	return items, nil
}

func (p *parser) parseValue() (any, error) {
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf(p.pos, "unexpected end of input")
	}

	c := p.peek()
	switch {
	case c == '(':
		return p.parseParen()
	case c == '[':
		return p.parseList()
	case c == '{':
		return p.parseBrace()
	case c == '\'' || c == '"':
		return p.parseStrings()
	case c == '+' || c == '-':
		return p.parseSigned()
	case isDigit(c) || (c == '.' && p.pos+1 < len(p.src) && isDigit(p.src[p.pos+1])):
		return p.parseNumber()
	case isIdentStart(c):
		if p.atStringPrefix() {
			return p.parseStrings()
		}
		return p.parseName()
	default:
		return nil, p.errorf(p.pos, "unexpected %q", p.peekRune())
	}
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return p.errorf(p.pos, "nesting deeper than %d", maxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

// parseItems reads comma-separated values up to close. trailing reports
// whether the last item was followed by a comma.
func (p *parser) parseItems(close byte) (items []any, trailing bool, err error) {
	open := p.pos
	p.pos++ // opening bracket
	if err := p.enter(); err != nil {
		return nil, false, err
	}
	defer p.leave()

	for {
		p.skipSpace()
		if p.eof() {
			return nil, false, p.errorf(open, "unclosed %q", p.src[open])
		}
		if p.peek() == close {
			p.pos++
			return items, trailing, nil
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, false, err
		}
		items = append(items, v)
		trailing = false

		p.skipSpace()
		if p.eof() {
			return nil, false, p.errorf(open, "unclosed %q", p.src[open])
		}
		switch p.peek() {
		case ',':
			p.pos++
			trailing = true
		case close:
		default:
			return nil, false, p.errorf(p.pos, "expected ',' or %q, got %q", close, p.peekRune())
		}
	}
}

func (p *parser) parseParen() (any, error) {
	items, trailing, err := p.parseItems(')')
	if err != nil {
		return nil, err
	}
	if len(items) == 1 && !trailing {
		return items[0], nil
	}
	if items == nil {
		return Tuple{}, nil
	}
	return Tuple(items), nil
}

func (p *parser) parseList() (any, error) {
	items, _, err := p.parseItems(']')
	if err != nil {
		return nil, err
	}
	if items == nil {
		return List{}, nil
	}
	return List(items), nil
}

// parseBrace parses a dict or a set; "{}" is an empty dict.
func (p *parser) parseBrace() (any, error) {
	open := p.pos
	p.pos++
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	p.skipSpace()
	if !p.eof() && p.peek() == '}' {
		p.pos++
		return Dict{}, nil
	}

	first, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() && p.peek() == ':' {
		return p.parseDictRest(open, first)
	}
	return p.parseSetRest(open, first)
}

func (p *parser) parseDictRest(open int, key any) (any, error) {
	var d Dict
	for {
		// positioned at ':'
		p.pos++
		if err := checkHashable(key); err != nil {
			return nil, p.errorf(p.pos, "%v", err)
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		d = d.set(key, v)

		p.skipSpace()
		if p.eof() {
			return nil, p.errorf(open, "unclosed '{'")
		}
		switch p.peek() {
		case '}':
			p.pos++
			return d, nil
		case ',':
			p.pos++
		default:
			return nil, p.errorf(p.pos, "expected ',' or '}', got %q", p.peekRune())
		}

		p.skipSpace()
		if p.eof() {
			return nil, p.errorf(open, "unclosed '{'")
		}
		if p.peek() == '}' {
			p.pos++
			return d, nil
		}
		key, err = p.parseValue()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.eof() || p.peek() != ':' {
			return nil, p.errorf(p.pos, "expected ':' in dict")
		}
	}
}

func (p *parser) parseSetRest(open int, first any) (any, error) {
	if err := checkHashable(first); err != nil {
		return nil, p.errorf(p.pos, "%v", err)
	}
	s := Set{first}
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf(open, "unclosed '{'")
		}
		switch p.peek() {
		case '}':
			p.pos++
			return s, nil
		case ',':
			p.pos++
		default:
			return nil, p.errorf(p.pos, "expected ',' or '}', got %q", p.peekRune())
		}

		p.skipSpace()
		if p.eof() {
			return nil, p.errorf(open, "unclosed '{'")
		}
		if p.peek() == '}' {
			p.pos++
			return s, nil
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if err := checkHashable(v); err != nil {
			return nil, p.errorf(p.pos, "%v", err)
		}
		s = s.add(v)
	}
}

func (d Dict) set(key, value any) Dict {
	for i := range d {
		if Equal(d[i].Key, key) {
			d[i].Value = value
			return d
		}
	}
	return append(d, Pair{Key: key, Value: value})
}

func (s Set) add(v any) Set {
	for _, m := range s {
		if Equal(m, v) {
			return s
		}
	}
	return append(s, v)
}

func checkHashable(v any) error {
	switch x := v.(type) {
	case List:
		return errUnhashable("list")
	case Dict:
		return errUnhashable("dict")
	case Set:
		return errUnhashable("set")
	case Tuple:
		for _, m := range x {
			if err := checkHashable(m); err != nil {
				return err
			}
		}
	}
	return nil
}

type errUnhashable string

func (e errUnhashable) Error() string { return "unhashable type: " + string(e) }

// parseSigned handles one unary plus or minus, which only applies to a
// number. The number may be parenthesized, as in -(1).
func (p *parser) parseSigned() (any, error) {
	start := p.pos
	neg := p.peek() == '-'
	p.pos++
	p.skipSpace()

	parens := 0
	for !p.eof() && p.peek() == '(' {
		parens++
		p.pos++
		p.skipSpace()
	}
	if p.eof() {
		return nil, p.errorf(start, "sign without operand")
	}
	c := p.peek()
	if !isDigit(c) && !(c == '.' && p.pos+1 < len(p.src) && isDigit(p.src[p.pos+1])) {
		return nil, p.errorf(p.pos, "unary operator applied to non-number")
	}
	v, err := p.parseNumberSign(neg)
	if err != nil {
		return nil, err
	}

	for ; parens > 0; parens-- {
		p.skipSpace()
		if p.eof() || p.peek() != ')' {
			return nil, p.errorf(p.pos, "unary operator applied to non-number")
		}
		p.pos++
	}
	return v, nil
}

func (p *parser) parseNumber() (any, error) {
	return p.parseNumberSign(false)
}

// parseNumberSign parses an unsigned number literal and applies the sign.
// Integers are parsed with their sign so the minimum int64 is accepted.
func (p *parser) parseNumberSign(neg bool) (any, error) {
	start := p.pos
	if p.peek() == '0' && p.pos+1 < len(p.src) {
		switch p.src[p.pos+1] | 0x20 {
		case 'x':
			return p.parseRadix(start, 16, neg)
		case 'o':
			return p.parseRadix(start, 8, neg)
		case 'b':
			return p.parseRadix(start, 2, neg)
		}
	}

	isFloat := false
	p.scanDigits()
	if !p.eof() && p.peek() == '.' {
		isFloat = true
		p.pos++
		p.scanDigits()
	}
	if !p.eof() && (p.peek() == 'e' || p.peek() == 'E') {
		isFloat = true
		p.pos++
		if !p.eof() && (p.peek() == '+' || p.peek() == '-') {
			p.pos++
		}
		expStart := p.pos
		p.scanDigits()
		if p.pos == expStart {
			return nil, p.errorf(p.pos, "malformed exponent")
		}
	}
	if !p.eof() && (p.peek() == 'j' || p.peek() == 'J') {
		return nil, p.errorf(start, "complex numbers are not supported")
	}
	if !p.eof() && isIdentStart(p.peek()) {
		return nil, p.errorf(p.pos, "invalid character %q in number", p.peekRune())
	}

	text := p.src[start:p.pos]
	if !underscoresBetween(text, isDigit) {
		return nil, p.errorf(start, "misplaced underscore in %q", text)
	}
	clean := strings.ReplaceAll(text, "_", "")

	if isFloat {
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil && !isRangeErr(err) {
			return nil, p.errorf(start, "bad float %q", text)
		}
		if neg {
			f = -f
		}
		return f, nil
	}

	if len(clean) > 1 && clean[0] == '0' && strings.Trim(clean, "0") != "" {
		return nil, p.errorf(start, "leading zeros in decimal integer %q", text)
	}
	if neg {
		clean = "-" + clean
	}
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		if isRangeErr(err) {
			return nil, p.errorf(start, "integer %q out of range", text)
		}
		return nil, p.errorf(start, "bad integer %q", text)
	}
	return n, nil
}

func (p *parser) parseRadix(start, base int, neg bool) (any, error) {
	p.pos += 2
	digitsStart := p.pos
	for !p.eof() && (isHexDigit(p.peek()) || p.peek() == '_') {
		p.pos++
	}
	text := p.src[digitsStart:p.pos]
	if text == "" || text == "_" {
		return nil, p.errorf(start, "missing digits after base prefix")
	}
	if !p.eof() && isIdentStart(p.peek()) {
		return nil, p.errorf(p.pos, "invalid character %q in number", p.peekRune())
	}
	// One underscore may follow the prefix, as in 0x_ff.
	if !underscoresBetween(strings.TrimPrefix(text, "_"), isHexDigit) {
		return nil, p.errorf(start, "misplaced underscore in %q", p.src[start:p.pos])
	}
	digits := strings.ReplaceAll(text, "_", "")
	if neg {
		digits = "-" + digits
	}
	n, err := strconv.ParseInt(digits, base, 64)
	if err != nil {
		if isRangeErr(err) {
			return nil, p.errorf(start, "integer %q out of range", p.src[start:p.pos])
		}
		return nil, p.errorf(start, "bad integer %q", p.src[start:p.pos])
	}
	return n, nil
}

// underscoresBetween reports whether every underscore in text sits between
// two digits.
func underscoresBetween(text string, digit func(byte) bool) bool {
	for i := 0; i < len(text); i++ {
		if text[i] != '_' {
			continue
		}
		if i == 0 || i == len(text)-1 || !digit(text[i-1]) || !digit(text[i+1]) {
			return false
		}
	}
	return true
}

func (p *parser) scanDigits() {
	for !p.eof() && (isDigit(p.peek()) || p.peek() == '_') {
		p.pos++
	}
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

func (p *parser) parseName() (any, error) {
	start := p.pos
	for !p.eof() && isIdentPart(p.peek()) {
		p.pos++
	}
	switch name := p.src[start:p.pos]; name {
	case "True":
		return true, nil
	case "False":
		return false, nil
	case "None":
		return nil, nil
	default:
		return nil, p.errorf(start, "name %q is not a literal", name)
	}
}

// atStringPrefix reports whether the identifier at pos is a string prefix
// such as b, r, u, rb immediately followed by a quote.
func (p *parser) atStringPrefix() bool {
	i := p.pos
	for i < len(p.src) && i-p.pos < 2 && isIdentStart(p.src[i]) {
		i++
	}
	if i >= len(p.src) || (p.src[i] != '\'' && p.src[i] != '"') {
		return false
	}
	_, _, ok := prefixFlags(p.src[p.pos:i])
	return ok
}

func prefixFlags(prefix string) (raw, bytes, ok bool) {
	switch strings.ToLower(prefix) {
	case "":
		return false, false, true
	case "u":
		return false, false, true
	case "r":
		return true, false, true
	case "b":
		return false, true, true
	case "rb", "br":
		return true, true, true
	}
	return false, false, false
}

// parseStrings reads one or more adjacent string literals and concatenates
// them.
func (p *parser) parseStrings() (any, error) {
	start := p.pos
	var (
		sb      strings.Builder
		isBytes bool
		count   int
	)
	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		c := p.peek()
		if c != '\'' && c != '"' && !(isIdentStart(c) && p.atStringPrefix()) {
			break
		}
		s, b, err := p.parseOneString()
		if err != nil {
			return nil, err
		}
		if count > 0 && b != isBytes {
			return nil, p.errorf(start, "cannot mix bytes and str literals")
		}
		isBytes = b
		sb.WriteString(s)
		count++
	}
	if isBytes {
		return []byte(sb.String()), nil
	}
	return sb.String(), nil
}

func (p *parser) parseOneString() (string, bool, error) {
	prefixStart := p.pos
	for p.peek() != '\'' && p.peek() != '"' {
		p.pos++
	}
	raw, isBytes, ok := prefixFlags(p.src[prefixStart:p.pos])
	if !ok {
		return "", false, p.errorf(prefixStart, "unsupported string prefix %q", p.src[prefixStart:p.pos])
	}

	quote := p.peek()
	delim := string(quote)
	if strings.HasPrefix(p.src[p.pos:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}
	open := p.pos
	p.pos += len(delim)

	var sb strings.Builder
	for {
		if p.eof() {
			return "", false, p.errorf(open, "unterminated string")
		}
		if strings.HasPrefix(p.src[p.pos:], delim) {
			p.pos += len(delim)
			return sb.String(), isBytes, nil
		}
		c := p.peek()
		if c == '\n' && len(delim) == 1 {
			return "", false, p.errorf(open, "unterminated string")
		}
		if c != '\\' {
			if isBytes && c >= utf8.RuneSelf {
				return "", false, p.errorf(p.pos, "bytes can only contain ASCII characters")
			}
			sb.WriteByte(c)
			p.pos++
			continue
		}
		if raw {
			sb.WriteByte('\\')
			p.pos++
			if !p.eof() {
				sb.WriteByte(p.peek())
				p.pos++
			}
			continue
		}
		if err := p.parseEscape(&sb, isBytes); err != nil {
			return "", false, err
		}
	}
}

func (p *parser) parseEscape(sb *strings.Builder, isBytes bool) error {
	escStart := p.pos
	p.pos++ // backslash
	if p.eof() {
		return p.errorf(escStart, "unterminated string")
	}
	c := p.peek()
	p.pos++
	switch c {
	case '\n':
	case '\\', '\'', '"':
		sb.WriteByte(c)
	case 'a':
		sb.WriteByte('\a')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 't':
		sb.WriteByte('\t')
	case 'v':
		sb.WriteByte('\v')
	case '0', '1', '2', '3', '4', '5', '6', '7':
		n := int(c - '0')
		for i := 0; i < 2 && !p.eof() && p.peek() >= '0' && p.peek() <= '7'; i++ {
			n = n*8 + int(p.peek()-'0')
			p.pos++
		}
		writeCode(sb, n, isBytes)
	case 'x':
		return p.hexEscape(sb, escStart, 2, isBytes)
	case 'u', 'U':
		if isBytes {
			sb.WriteByte('\\')
			sb.WriteByte(c)
			return nil
		}
		width := 4
		if c == 'U' {
			width = 8
		}
		return p.hexEscape(sb, escStart, width, false)
	default:
		sb.WriteByte('\\')
		sb.WriteByte(c)
	}
	return nil
}

func (p *parser) hexEscape(sb *strings.Builder, escStart, width int, isBytes bool) error {
	if p.pos+width > len(p.src) {
		return p.errorf(escStart, "truncated escape")
	}
	n, err := strconv.ParseUint(p.src[p.pos:p.pos+width], 16, 32)
	if err != nil || n > math.MaxInt32 || (width > 2 && !utf8.ValidRune(rune(n))) {
		return p.errorf(escStart, "invalid escape %q", p.src[escStart:p.pos+width])
	}
	p.pos += width
	writeCode(sb, int(n), isBytes)
	return nil
}

func writeCode(sb *strings.Builder, n int, isBytes bool) {
	if isBytes || n < utf8.RuneSelf {
		sb.WriteByte(byte(n))
		return
	}
	sb.WriteRune(rune(n))
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.peek() {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			p.pos++
		case '\\':
			// explicit line continuation
			if p.pos+1 < len(p.src) && p.src[p.pos+1] == '\n' {
				p.pos += 2
				continue
			}
			return
		default:
			return
		}
	}
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }
func (p *parser) peek() byte { return p.src[p.pos] }
func (p *parser) peekRune() rune {
	r, _ := utf8.DecodeRuneInString(p.src[p.pos:])
	return r
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isHexDigit(c byte) bool { return isDigit(c) || (c|0x20 >= 'a' && c|0x20 <= 'f') }
func isIdentStart(c byte) bool { return c == '_' || (c|0x20 >= 'a' && c|0x20 <= 'z') || c >= utf8.RuneSelf }
func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

package formula

import (
	"strconv"
	"strings"
)

// lexer splits formula text into tokens.
type lexer struct {
	src string
	pos int
}

func isLetter(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// tokenize returns the full token stream, terminated by tokEOF.
func tokenize(src string) ([]token, error) {
	l := &lexer{src: src}
	tokens := make([]token, 0, max(len(src)/3, 8))
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.kind == tokEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) errorf(pos int, msg string) error {
	return &SyntaxError{Source: l.src, Pos: pos, Msg: msg}
}

func (l *lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && strings.IndexByte(" \t\r\n", l.src[l.pos]) >= 0 {
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.src[l.pos]
	switch {
	case isDigit(c) || (c == '.' && isDigit(l.peekAt(1))):
		return l.number()
	case isLetter(c):
		for l.pos < len(l.src) && (isLetter(l.src[l.pos]) || isDigit(l.src[l.pos])) {
			l.pos++
		}
		text := l.src[start:l.pos]
		if kind, ok := keywords[text]; ok {
			return token{kind: kind, pos: start, text: text}, nil
		}
		return token{kind: tokIdent, pos: start, text: text}, nil
	case c == '"' || c == '\'':
		return l.string(c)
	}

	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	switch two {
	case "**":
		return l.emit(tokPower, 2), nil
	case "//":
		return l.emit(tokFloorDiv, 2), nil
	case "==":
		return l.emit(tokEq, 2), nil
	case "!=":
		return l.emit(tokNe, 2), nil
	case "<=":
		return l.emit(tokLe, 2), nil
	case ">=":
		return l.emit(tokGe, 2), nil
	case "&&":
		return l.emit(tokAnd, 2), nil
	case "||":
		return l.emit(tokOr, 2), nil
	}

	switch c {
	case '+':
		return l.emit(tokPlus, 1), nil
	case '-':
		return l.emit(tokMinus, 1), nil
	case '*':
		return l.emit(tokStar, 1), nil
	case '/':
		return l.emit(tokSlash, 1), nil
	case '%':
		return l.emit(tokPercent, 1), nil
	case '<':
		return l.emit(tokLt, 1), nil
	case '>':
		return l.emit(tokGt, 1), nil
	case '!':
		return l.emit(tokNot, 1), nil
	case '=':
		return l.emit(tokAssign, 1), nil
	case '(':
		return l.emit(tokLParen, 1), nil
	case ')':
		return l.emit(tokRParen, 1), nil
	case '[':
		return l.emit(tokLBracket, 1), nil
	case ']':
		return l.emit(tokRBracket, 1), nil
	case ',':
		return l.emit(tokComma, 1), nil
	case '.':
		return l.emit(tokDot, 1), nil
	}
	return token{}, l.errorf(start, "unexpected character "+strconv.QuoteRune(rune(c)))
}

func (l *lexer) emit(kind tokenKind, width int) token {
	tok := token{kind: kind, pos: l.pos, text: l.src[l.pos : l.pos+width]}
	l.pos += width
	return tok
}

func (l *lexer) number() (token, error) {
	start := l.pos
	if l.src[l.pos] == '0' && (l.peekAt(1) == 'x' || l.peekAt(1) == 'X') {
		l.pos += 2
		for l.pos < len(l.src) && strings.IndexByte("0123456789abcdefABCDEF", l.src[l.pos]) >= 0 {
			l.pos++
		}
		text := l.src[start:l.pos]
		n, err := strconv.ParseUint(text[2:], 16, 64)
		if err != nil {
			return token{}, l.errorf(start, "invalid hex literal "+strconv.Quote(text))
		}
		return token{kind: tokNumber, pos: start, text: text, num: float64(n)}, nil
	}

	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' && !isLetter(l.peekAt(1)) {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		if l.pos >= len(l.src) || !isDigit(l.src[l.pos]) {
			l.pos = save
		} else {
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		}
	}

	text := l.src[start:l.pos]
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, l.errorf(start, "invalid number "+strconv.Quote(text))
	}
	if l.pos < len(l.src) && isLetter(l.src[l.pos]) {
		return token{}, l.errorf(l.pos, "identifier directly after number")
	}
	return token{kind: tokNumber, pos: start, text: text, num: n}, nil
}

func (l *lexer) string(quote byte) (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for {
		if l.pos >= len(l.src) {
			return token{}, l.errorf(start, "unterminated string")
		}
		c := l.src[l.pos]
		l.pos++
		switch c {
		case quote:
			return token{kind: tokString, pos: start, text: b.String()}, nil
		case '\\':
			if l.pos >= len(l.src) {
				return token{}, l.errorf(start, "unterminated string")
			}
			esc := l.src[l.pos]
			l.pos++
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '\'', '"':
				b.WriteByte(esc)
			default:
				b.WriteByte('\\')
				b.WriteByte(esc)
			}
		default:
			b.WriteByte(c)
		}
	}
}

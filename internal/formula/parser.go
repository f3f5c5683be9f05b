package formula

import (
	"fmt"
	"strings"
)

// maxDepth bounds expression nesting so hostile input cannot exhaust the stack.
const maxDepth = 200

// Expr is a compiled formula. It is immutable and safe to evaluate from
// several goroutines.
type Expr struct {
	name   string
	source string
	root   node
}

// Compile parses source into an Expr labelled name. The label is carried
// into evaluation errors.
func Compile(name, source string) (*Expr, error) {
	if strings.TrimSpace(source) == "" {
		return nil, &SyntaxError{Source: source, Pos: 0, Msg: "empty formula"}
	}
	tokens, err := tokenize(source)
	if err != nil {
		return nil, err
	}
	p := &parser{src: source, tokens: tokens}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.unexpected(tok)
	}
	return &Expr{name: name, source: source, root: root}, nil
}

// Parse compiles an unnamed formula.
func Parse(source string) (*Expr, error) {
	return Compile("", source)
}

// Name returns the label given to Compile.
func (e *Expr) Name() string { return e.name }

// Source returns the formula text.
func (e *Expr) Source() string { return e.source }

// String implements fmt.Stringer.
func (e *Expr) String() string { return e.source }

// OuterCall returns the identifier of the outermost function call, if the
// whole formula is a call of a plain name such as DevDouble(...).
func (e *Expr) OuterCall() (string, bool) {
	call, ok := e.root.(*callExpr)
	if !ok {
		return "", false
	}
	id, ok := call.callee.(*ident)
	if !ok {
		return "", false
	}
	return id.name, true
}

type parser struct {
	src    string
	tokens []token
	pos    int
	depth  int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) accept(kinds ...tokenKind) (token, bool) {
	tok := p.peek()
	for _, k := range kinds {
		if tok.kind == k {
			p.pos++
			return tok, true
		}
	}
	return tok, false
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.peek()
	if tok.kind != kind {
		return tok, p.errorf(tok.pos, "expected %s, found %s", kind, describe(tok))
	}
	p.pos++
	return tok, nil
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &SyntaxError{Source: p.src, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) unexpected(tok token) error {
	return p.errorf(tok.pos, "unexpected %s", describe(tok))
}

func describe(tok token) string {
	switch tok.kind {
	case tokIdent, tokNumber:
		return fmt.Sprintf("%s %q", tok.kind, tok.text)
	case tokString:
		return "string literal"
	default:
		return tok.kind.String()
	}
}

func (p *parser) enter(pos int) error {
	p.depth++
	if p.depth > maxDepth {
		return p.errorf(pos, "expression nested too deeply")
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseExpr() (node, error) {
	if err := p.enter(p.peek().pos); err != nil {
		return nil, err
	}
	defer p.leave()
	return p.parseOr()
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.accept(tokOr)
		if !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalExpr{pos: tok.pos, op: tokOr, left: left, right: right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.accept(tokAnd)
		if !ok {
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &logicalExpr{pos: tok.pos, op: tokAnd, left: left, right: right}
	}
}

func (p *parser) parseNot() (node, error) {
	if tok, ok := p.accept(tokNot); ok {
		if err := p.enter(tok.pos); err != nil {
			return nil, err
		}
		defer p.leave()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{pos: tok.pos, op: tokNot, operand: operand}, nil
	}
	return p.parseCompare()
}

func isComparison(k tokenKind) bool {
	switch k {
	case tokEq, tokNe, tokLt, tokLe, tokGt, tokGe:
		return true
	}
	return false
}

func (p *parser) parseCompare() (node, error) {
	first, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if !isComparison(p.peek().kind) {
		return first, nil
	}

	cmp := &compareExpr{pos: p.peek().pos, operands: []node{first}}
	for isComparison(p.peek().kind) {
		op := p.advance()
		operand, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		cmp.ops = append(cmp.ops, op.kind)
		cmp.operands = append(cmp.operands, operand)
	}
	return cmp, nil
}

func (p *parser) parseSum() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.accept(tokPlus, tokMinus)
		if !ok {
			return left, nil
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{pos: tok.pos, op: tok.kind, left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.accept(tokStar, tokSlash, tokFloorDiv, tokPercent)
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{pos: tok.pos, op: tok.kind, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if tok, ok := p.accept(tokMinus, tokPlus); ok {
		if err := p.enter(tok.pos); err != nil {
			return nil, err
		}
		defer p.leave()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{pos: tok.pos, op: tok.kind, operand: operand}, nil
	}
	return p.parsePower()
}

// parsePower binds ** tighter than unary minus on its left and looser on its
// right, so -2**2 is -4 and 2**-1 is 0.5.
func (p *parser) parsePower() (node, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	tok, ok := p.accept(tokPower)
	if !ok {
		return base, nil
	}
	if err := p.enter(tok.pos); err != nil {
		return nil, err
	}
	defer p.leave()
	exp, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &binaryExpr{pos: tok.pos, op: tokPower, left: base, right: exp}, nil
}

func (p *parser) parsePostfix() (node, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch tok := p.peek(); tok.kind {
		case tokLParen:
			p.advance()
			expr, err = p.parseCall(tok.pos, expr)
		case tokLBracket:
			p.advance()
			var index node
			if index, err = p.parseExpr(); err == nil {
				_, err = p.expect(tokRBracket)
			}
			expr = &indexExpr{pos: tok.pos, target: expr, index: index}
		case tokDot:
			p.advance()
			var name token
			if name, err = p.expect(tokIdent); err == nil {
				expr = &memberExpr{pos: tok.pos, target: expr, name: name.text}
			}
		default:
			return expr, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseCall(pos int, callee node) (node, error) {
	call := &callExpr{pos: pos, callee: callee}
	if _, ok := p.accept(tokRParen); ok {
		return call, nil
	}
	seen := make(map[string]bool)
	for {
		tok := p.peek()
		if tok.kind == tokIdent && p.tokens[p.pos+1].kind == tokAssign {
			p.pos += 2
			if seen[tok.text] {
				return nil, p.errorf(tok.pos, "keyword argument %q repeated", tok.text)
			}
			seen[tok.text] = true
			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.kwargs = append(call.kwargs, keywordArg{name: tok.text, value: value})
		} else {
			if len(call.kwargs) > 0 {
				return nil, p.errorf(tok.pos, "positional argument follows keyword argument")
			}
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.args = append(call.args, arg)
		}

		if _, ok := p.accept(tokComma); ok {
			if _, ok := p.accept(tokRParen); ok {
				return call, nil
			}
			continue
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return call, nil
	}
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.advance()
	switch tok.kind {
	case tokNumber:
		return &numberLit{pos: tok.pos, value: tok.num}, nil
	case tokString:
		return &stringLit{pos: tok.pos, value: tok.text}, nil
	case tokTrue, tokFalse:
		return &boolLit{pos: tok.pos, value: tok.kind == tokTrue}, nil
	case tokNone:
		return &noneLit{pos: tok.pos}, nil
	case tokIdent:
		return &ident{pos: tok.pos, name: tok.text}, nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case tokLBracket:
		list := &listLit{pos: tok.pos}
		if _, ok := p.accept(tokRBracket); ok {
			return list, nil
		}
		for {
			item, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			list.items = append(list.items, item)
			if _, ok := p.accept(tokComma); ok {
				if _, ok := p.accept(tokRBracket); ok {
					return list, nil
				}
				continue
			}
			if _, err := p.expect(tokRBracket); err != nil {
				return nil, err
			}
			return list, nil
		}
	case tokEOF:
		return nil, p.errorf(tok.pos, "unexpected end of formula")
	default:
		return nil, p.unexpected(tok)
	}
}

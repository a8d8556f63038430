package predicate

import (
	"fmt"
	"strings"
)

type (
	expr interface {
		exprNode()
	}

	columnExpr struct {
		name string
	}

	literalExpr struct {
		value any // float64, string, or bool
	}

	nowExpr struct{}

	unaryExpr struct {
		op      string // "NOT" or "-"
		operand expr
	}

	binaryExpr struct {
		op    string
		left  expr
		right expr
	}
)

func (columnExpr) exprNode()  {}
func (literalExpr) exprNode() {}
func (nowExpr) exprNode()     {}
func (unaryExpr) exprNode()   {}
func (binaryExpr) exprNode()  {}

type parser struct {
	tokens []token
	pos    int
}

// parse builds the expression tree for a condition. Precedence from
// loosest to tightest: OR, AND, NOT, comparison, additive,
// multiplicative, unary minus.
func parse(condition string) (expr, error) {
	tokens, err := lex(condition)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}

	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrSyntax, tok.text, tok.pos)
	}

	return root, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}

	return tok
}

func (p *parser) matchKeyword(word string) bool {
	tok := p.peek()
	if tok.kind == tokenIdent && strings.EqualFold(tok.text, word) {
		p.advance()
		return true
	}

	return false
}

func (p *parser) parseOr() (expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.matchKeyword("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = binaryExpr{op: "OR", left: left, right: right}
	}

	return left, nil
}

func (p *parser) parseAnd() (expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.matchKeyword("AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		left = binaryExpr{op: "AND", left: left, right: right}
	}

	return left, nil
}

func (p *parser) parseNot() (expr, error) {
	if p.matchKeyword("NOT") {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		return unaryExpr{op: "NOT", operand: operand}, nil
	}

	return p.parseComparison()
}

func (p *parser) parseComparison() (expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.kind != tokenOperator || !isComparisonOp(tok.text) {
			return left, nil
		}

		p.advance()

		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}

		left = binaryExpr{op: normalizeComparisonOp(tok.text), left: left, right: right}
	}
}

func (p *parser) parseAdditive() (expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.kind != tokenOperator || (tok.text != "+" && tok.text != "-") {
			return left, nil
		}

		p.advance()

		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}

		left = binaryExpr{op: tok.text, left: left, right: right}
	}
}

func (p *parser) parseMultiplicative() (expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.kind != tokenOperator || (tok.text != "*" && tok.text != "/") {
			return left, nil
		}

		p.advance()

		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		left = binaryExpr{op: tok.text, left: left, right: right}
	}
}

func (p *parser) parseUnary() (expr, error) {
	tok := p.peek()
	if tok.kind == tokenOperator && tok.text == "-" {
		p.advance()

		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return unaryExpr{op: "-", operand: operand}, nil
	}

	return p.parsePrimary()
}

func (p *parser) parsePrimary() (expr, error) {
	tok := p.advance()

	switch tok.kind {
	case tokenNumber:
		return literalExpr{value: tok.num}, nil

	case tokenString:
		return literalExpr{value: tok.text}, nil

	case tokenLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		if closing := p.advance(); closing.kind != tokenRParen {
			return nil, fmt.Errorf("%w: expected ) at position %d", ErrSyntax, closing.pos)
		}

		return inner, nil

	case tokenIdent:
		switch {
		case strings.EqualFold(tok.text, "true"):
			return literalExpr{value: true}, nil
		case strings.EqualFold(tok.text, "false"):
			return literalExpr{value: false}, nil
		}

		// An identifier followed by ( is a function call.
		if p.peek().kind == tokenLParen {
			p.advance()

			if !strings.EqualFold(tok.text, "now") {
				return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, tok.text)
			}

			if closing := p.advance(); closing.kind != tokenRParen {
				return nil, fmt.Errorf("%w: expected ) at position %d", ErrSyntax, closing.pos)
			}

			return nowExpr{}, nil
		}

		return columnExpr{name: tok.text}, nil

	default:
		return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrSyntax, tok.text, tok.pos)
	}
}

func isComparisonOp(op string) bool {
	switch op {
	case "=", "==", "!=", "<>", "<", "<=", ">", ">=":
		return true
	default:
		return false
	}
}

// normalizeComparisonOp folds operator synonyms: == to =, <> to !=.
func normalizeComparisonOp(op string) string {
	switch op {
	case "==":
		return "="
	case "<>":
		return "!="
	default:
		return op
	}
}

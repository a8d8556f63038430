package predicate

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenOperator
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// lex splits a condition into tokens.
func lex(input string) ([]token, error) {
	var tokens []token

	i := 0
	for i < len(input) {
		c := input[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '(':
			tokens = append(tokens, token{kind: tokenLParen, text: "(", pos: i})
			i++

		case c == ')':
			tokens = append(tokens, token{kind: tokenRParen, text: ")", pos: i})
			i++

		case c == '\'' || c == '"':
			text, next, err := lexString(input, i)
			if err != nil {
				return nil, err
			}

			tokens = append(tokens, token{kind: tokenString, text: text, pos: i})
			i = next

		case c >= '0' && c <= '9':
			text, next := lexNumber(input, i)

			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q at position %d", ErrSyntax, text, i)
			}

			tokens = append(tokens, token{kind: tokenNumber, text: text, num: num, pos: i})
			i = next

		case isIdentStart(rune(c)):
			start := i
			for i < len(input) && isIdentPart(rune(input[i])) {
				i++
			}

			tokens = append(tokens, token{kind: tokenIdent, text: input[start:i], pos: start})

		default:
			op, next, err := lexOperator(input, i)
			if err != nil {
				return nil, err
			}

			tokens = append(tokens, token{kind: tokenOperator, text: op, pos: i})
			i = next
		}
	}

	tokens = append(tokens, token{kind: tokenEOF, pos: len(input)})

	return tokens, nil
}

// lexString reads a quoted literal. A doubled quote escapes itself.
func lexString(input string, start int) (string, int, error) {
	quote := input[start]

	var sb strings.Builder

	i := start + 1
	for i < len(input) {
		if input[i] == quote {
			if i+1 < len(input) && input[i+1] == quote {
				sb.WriteByte(quote)
				i += 2

				continue
			}

			return sb.String(), i + 1, nil
		}

		sb.WriteByte(input[i])
		i++
	}

	return "", 0, fmt.Errorf("%w: unterminated string at position %d", ErrSyntax, start)
}

func lexNumber(input string, start int) (string, int) {
	i := start
	for i < len(input) && input[i] >= '0' && input[i] <= '9' {
		i++
	}

	if i < len(input) && input[i] == '.' {
		i++
		for i < len(input) && input[i] >= '0' && input[i] <= '9' {
			i++
		}
	}

	return input[start:i], i
}

func lexOperator(input string, start int) (string, int, error) {
	two := ""
	if start+2 <= len(input) {
		two = input[start : start+2]
	}

	switch two {
	case "==", "!=", "<>", "<=", ">=":
		return two, start + 2, nil
	}

	switch input[start] {
	case '=', '<', '>', '+', '-', '*', '/':
		return string(input[start]), start + 1, nil
	}

	return "", 0, fmt.Errorf("%w: unexpected character %q at position %d", ErrSyntax, input[start], start)
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

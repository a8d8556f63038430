// Package predicate evaluates the SQL-subset conditions that contracts
// attach as custom checks, e.g. "timestamp <= now()" or
// "amount < 5000 OR (amount >= 5000 AND status = 'COMPLETED')".
//
// The grammar covers column references, string/number/bool literals,
// arithmetic (+ - * /), comparisons (= == != <> < <= > >=), the boolean
// connectives AND/OR/NOT, parentheses, and now(). Null operands collapse
// comparisons to false rather than propagating three-valued logic.
package predicate

import (
	"errors"
	"time"

	"github.com/datawarden-io/datawarden/internal/tabular"
)

// Sentinel errors for parsing and evaluation.
var (
	// ErrSyntax indicates a condition that does not parse.
	ErrSyntax = errors.New("syntax error")

	// ErrUnknownColumn indicates a reference to a column absent from the table.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrUnknownFunction indicates a function call other than now().
	ErrUnknownFunction = errors.New("unknown function")

	// ErrTypeMismatch indicates operands of incompatible types.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrDivisionByZero indicates a division with a zero divisor.
	ErrDivisionByZero = errors.New("division by zero")
)

// Predicate is a parsed condition ready to evaluate against table rows.
type Predicate struct {
	source string
	root   expr
}

// Parse compiles a condition into a Predicate.
func Parse(condition string) (*Predicate, error) {
	root, err := parse(condition)
	if err != nil {
		return nil, err
	}

	return &Predicate{source: condition, root: root}, nil
}

// Source returns the original condition text.
func (p *Predicate) Source() string { return p.source }

// Evaluate reports whether the row satisfies the predicate. The now
// argument is the value of now() within the condition.
func (p *Predicate) Evaluate(table *tabular.Table, row int, now time.Time) (bool, error) {
	v, err := evalExpr(p.root, table, row, now)
	if err != nil {
		return false, err
	}

	return truthy(v)
}

// CountViolations returns the number of rows that do NOT satisfy the
// predicate.
func (p *Predicate) CountViolations(table *tabular.Table, now time.Time) (int, error) {
	count := 0

	for row := 0; row < table.NumRows(); row++ {
		ok, err := p.Evaluate(table, row, now)
		if err != nil {
			return 0, err
		}

		if !ok {
			count++
		}
	}

	return count, nil
}

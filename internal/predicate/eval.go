package predicate

import (
	"fmt"
	"time"

	"github.com/datawarden-io/datawarden/internal/tabular"
)

// evalExpr computes the value of an expression for one row. Values are
// nil (null), float64, string, bool, or time.Time.
func evalExpr(e expr, table *tabular.Table, row int, now time.Time) (any, error) {
	switch node := e.(type) {
	case literalExpr:
		return node.value, nil

	case nowExpr:
		return now, nil

	case columnExpr:
		col, ok := table.Column(node.name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, node.name)
		}

		return columnValue(col, row), nil

	case unaryExpr:
		return evalUnary(node, table, row, now)

	case binaryExpr:
		return evalBinary(node, table, row, now)

	default:
		return nil, fmt.Errorf("%w: unhandled expression %T", ErrSyntax, e)
	}
}

// columnValue widens int64 cells to float64 so arithmetic and comparison
// work over one numeric type.
func columnValue(col *tabular.Column, row int) any {
	v := col.Value(row)
	if n, ok := v.(int64); ok {
		return float64(n)
	}

	return v
}

func evalUnary(node unaryExpr, table *tabular.Table, row int, now time.Time) (any, error) {
	v, err := evalExpr(node.operand, table, row, now)
	if err != nil {
		return nil, err
	}

	switch node.op {
	case "NOT":
		b, err := truthy(v)
		if err != nil {
			return nil, err
		}

		return !b, nil

	case "-":
		if v == nil {
			return nil, nil
		}

		n, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: cannot negate %T", ErrTypeMismatch, v)
		}

		return -n, nil

	default:
		return nil, fmt.Errorf("%w: unknown unary operator %q", ErrSyntax, node.op)
	}
}

func evalBinary(node binaryExpr, table *tabular.Table, row int, now time.Time) (any, error) {
	// AND and OR short-circuit on the left operand.
	if node.op == "AND" || node.op == "OR" {
		return evalLogical(node, table, row, now)
	}

	left, err := evalExpr(node.left, table, row, now)
	if err != nil {
		return nil, err
	}

	right, err := evalExpr(node.right, table, row, now)
	if err != nil {
		return nil, err
	}

	switch node.op {
	case "+", "-", "*", "/":
		return evalArithmetic(node.op, left, right)
	default:
		return compare(node.op, left, right)
	}
}

func evalLogical(node binaryExpr, table *tabular.Table, row int, now time.Time) (any, error) {
	left, err := evalExpr(node.left, table, row, now)
	if err != nil {
		return nil, err
	}

	lb, err := truthy(left)
	if err != nil {
		return nil, err
	}

	if node.op == "AND" && !lb {
		return false, nil
	}

	if node.op == "OR" && lb {
		return true, nil
	}

	right, err := evalExpr(node.right, table, row, now)
	if err != nil {
		return nil, err
	}

	return truthy(right)
}

// evalArithmetic applies + - * / to numeric operands. A null operand
// yields null.
func evalArithmetic(op string, left, right any) (any, error) {
	if left == nil || right == nil {
		return nil, nil
	}

	l, lok := left.(float64)
	r, rok := right.(float64)

	if !lok || !rok {
		return nil, fmt.Errorf("%w: %q needs numeric operands, got %T and %T", ErrTypeMismatch, op, left, right)
	}

	switch op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return nil, ErrDivisionByZero
		}

		return l / r, nil
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrSyntax, op)
	}
}

// compare applies a comparison operator. Null operands make the result
// false. Strings coerce to timestamps when compared against one.
func compare(op string, left, right any) (bool, error) {
	if left == nil || right == nil {
		return false, nil
	}

	if lt, ok := left.(time.Time); ok {
		if rs, ok := right.(string); ok {
			if parsed, pok := tabular.ParseTimestamp(rs); pok {
				return compareTimes(op, lt, parsed)
			}
		}
	}

	if rt, ok := right.(time.Time); ok {
		if ls, ok := left.(string); ok {
			if parsed, pok := tabular.ParseTimestamp(ls); pok {
				return compareTimes(op, parsed, rt)
			}
		}
	}

	switch l := left.(type) {
	case float64:
		r, ok := right.(float64)
		if !ok {
			return false, comparisonMismatch(op, left, right)
		}

		return compareOrdered(op, l, r), nil

	case string:
		r, ok := right.(string)
		if !ok {
			return false, comparisonMismatch(op, left, right)
		}

		return compareOrdered(op, l, r), nil

	case bool:
		r, ok := right.(bool)
		if !ok {
			return false, comparisonMismatch(op, left, right)
		}

		switch op {
		case "=":
			return l == r, nil
		case "!=":
			return l != r, nil
		default:
			return false, fmt.Errorf("%w: %q is not ordered for booleans", ErrTypeMismatch, op)
		}

	case time.Time:
		r, ok := right.(time.Time)
		if !ok {
			return false, comparisonMismatch(op, left, right)
		}

		return compareTimes(op, l, r)

	default:
		return false, comparisonMismatch(op, left, right)
	}
}

func comparisonMismatch(op string, left, right any) error {
	return fmt.Errorf("%w: cannot compare %T %s %T", ErrTypeMismatch, left, op, right)
}

func compareOrdered[T float64 | string](op string, l, r T) bool {
	switch op {
	case "=":
		return l == r
	case "!=":
		return l != r
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case ">=":
		return l >= r
	default:
		return false
	}
}

func compareTimes(op string, l, r time.Time) (bool, error) {
	switch op {
	case "=":
		return l.Equal(r), nil
	case "!=":
		return !l.Equal(r), nil
	case "<":
		return l.Before(r), nil
	case "<=":
		return l.Before(r) || l.Equal(r), nil
	case ">":
		return l.After(r), nil
	case ">=":
		return l.After(r) || l.Equal(r), nil
	default:
		return false, fmt.Errorf("%w: unknown comparison %q", ErrSyntax, op)
	}
}

// truthy converts a value used in boolean position. Null collapses to
// false.
func truthy(v any) (bool, error) {
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	default:
		return false, fmt.Errorf("%w: expected boolean, got %T", ErrTypeMismatch, v)
	}
}

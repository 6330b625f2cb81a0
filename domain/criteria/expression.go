package criteria

import (
	"fmt"
	"strings"
	"time"

	"entityservice/domain/shared"
)

// Expression is a node of a criteria tree.
// The set of node types is closed: Comparison, MultiValue and Composite.
type Expression interface {
	fmt.Stringer
	isExpression()
}

// Comparison leaf: field <operator> value.
type Comparison struct {
	Field    string
	Operator Operator
	Value    any
}

func (Comparison) isExpression() {}

func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}

// MultiValue leaf for operators that consume several values (BETWEEN and the
// date range operators).
type MultiValue struct {
	Field    string
	Operator Operator
	Values   []any
}

func (MultiValue) isExpression() {}

func (m MultiValue) String() string {
	parts := make([]string, len(m.Values))
	for i, v := range m.Values {
		parts[i] = fmt.Sprint(v)
	}
	return fmt.Sprintf("%s %s (%s)", m.Field, m.Operator, strings.Join(parts, ", "))
}

// Composite joins its children with AND or OR.
// A composite without children matches everything.
type Composite struct {
	Type     CompositeType
	Children []Expression
}

func (Composite) isExpression() {}

func (c Composite) String() string {
	parts := make([]string, len(c.Children))
	for i, child := range c.Children {
		parts[i] = child.String()
	}
	return "(" + strings.Join(parts, " "+string(c.Type)+" ") + ")"
}

// IsEmpty reports whether expr filters nothing out.
func IsEmpty(expr Expression) bool {
	if expr == nil {
		return true
	}
	if c, ok := expr.(Composite); ok {
		for _, child := range c.Children {
			if !IsEmpty(child) {
				return false
			}
		}
		return true
	}
	return false
}

// NewMultiValue builds a multi value leaf and checks the operator arity.
func NewMultiValue(field string, op Operator, values ...any) (MultiValue, error) {
	if !op.IsMultiValue() {
		return MultiValue{}, shared.NewTranslationError(field, fmt.Sprintf("operator %s is not a multi value operator", op))
	}
	if len(values) != op.Arity() {
		return MultiValue{}, shared.NewTranslationError(field,
			fmt.Sprintf("operator %s expects %d values, got %d", op, op.Arity(), len(values)))
	}
	return MultiValue{Field: field, Operator: op, Values: values}, nil
}

// ============================================================================
// Builders
// ============================================================================

func Eq(field string, value any) Comparison  { return Comparison{field, OpEq, value} }
func Neq(field string, value any) Comparison { return Comparison{field, OpNeq, value} }
func Gt(field string, value any) Comparison  { return Comparison{field, OpGt, value} }
func Gte(field string, value any) Comparison { return Comparison{field, OpGte, value} }
func Lt(field string, value any) Comparison  { return Comparison{field, OpLt, value} }
func Lte(field string, value any) Comparison { return Comparison{field, OpLte, value} }

// IsNull matches rows where field is NULL.
func IsNull(field string) Comparison { return Comparison{field, OpIs, nil} }

// IsNotNull matches rows where field is not NULL.
func IsNotNull(field string) Comparison { return Comparison{field, OpNeq, nil} }

// In matches rows whose field is one of values.
func In(field string, values ...any) Comparison { return Comparison{field, OpIn, values} }

// NotIn matches rows whose field is none of values.
func NotIn(field string, values ...any) Comparison { return Comparison{field, OpNin, values} }

// Contains case-insensitive substring match.
func Contains(field, value string) Comparison { return Comparison{field, OpContains, value} }

// NotContains negated case-insensitive substring match.
func NotContains(field, value string) Comparison { return Comparison{field, OpNotContains, value} }

// StartsWith case-insensitive prefix match.
func StartsWith(field, value string) Comparison { return Comparison{field, OpStartsWith, value} }

// EndsWith case-insensitive suffix match.
func EndsWith(field, value string) Comparison { return Comparison{field, OpEndsWith, value} }

// Between inclusive range match.
func Between(field string, low, high any) MultiValue {
	return MultiValue{Field: field, Operator: OpBetween, Values: []any{low, high}}
}

// And joins expressions; nil and empty children are dropped.
func And(exprs ...Expression) Composite { return composite(TypeAnd, exprs) }

// Or joins expressions; nil and empty children are dropped.
func Or(exprs ...Expression) Composite { return composite(TypeOr, exprs) }

func composite(t CompositeType, exprs []Expression) Composite {
	children := make([]Expression, 0, len(exprs))
	for _, e := range exprs {
		if !IsEmpty(e) {
			children = append(children, e)
		}
	}
	return Composite{Type: t, Children: children}
}

// ============================================================================
// Date ranges
// ============================================================================

// CurrentMonth matches field within the calendar month of now.
func CurrentMonth(field string, now time.Time) MultiValue {
	start := monthStart(now)
	return dateRange(field, OpCurrentMonth, start, start.AddDate(0, 1, 0))
}

// PreviousMonth matches field within the calendar month before now.
func PreviousMonth(field string, now time.Time) MultiValue {
	end := monthStart(now)
	return dateRange(field, OpPreviousMonth, end.AddDate(0, -1, 0), end)
}

// CurrentYear matches field within the calendar year of now.
func CurrentYear(field string, now time.Time) MultiValue {
	start := yearStart(now)
	return dateRange(field, OpCurrentYear, start, start.AddDate(1, 0, 0))
}

// PreviousYear matches field within the calendar year before now.
func PreviousYear(field string, now time.Time) MultiValue {
	end := yearStart(now)
	return dateRange(field, OpPreviousYear, end.AddDate(-1, 0, 0), end)
}

// dateRange: the upper bound is inclusive, one second before next.
func dateRange(field string, op Operator, start, next time.Time) MultiValue {
	return MultiValue{Field: field, Operator: op, Values: []any{start, next.Add(-time.Second)}}
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func yearStart(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

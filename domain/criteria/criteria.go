package criteria

import (
	"fmt"
	"sort"
	"strings"

	"entityservice/domain/shared"
)

// Direction sort direction of an ordering.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Ordering one ORDER BY term.
type Ordering struct {
	Field     string
	Direction Direction
}

// Criteria is a where expression plus ordering and offset/limit.
//
// Criteria values are immutable: every builder method returns a modified copy
// and leaves the receiver untouched. A nil *Criteria is valid and means
// "everything, unordered, unbounded".
type Criteria struct {
	where       Expression
	orderings   []Ordering
	firstResult *int
	maxResults  *int
}

// New creates an empty criteria.
func New() *Criteria {
	return &Criteria{}
}

// FromMapping builds an AND of equality comparisons, one per key.
// Keys are visited in sorted order so the result is deterministic.
func FromMapping(m map[string]any) *Criteria {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	c := New()
	for _, k := range keys {
		c = c.AndWhere(Eq(k, m[k]))
	}
	return c
}

// Normalize accepts a *Criteria, a Criteria, a field to value mapping or nil
// and returns a *Criteria. Anything else is ErrInvalidInput.
func Normalize(v any) (*Criteria, error) {
	switch c := v.(type) {
	case nil:
		return New(), nil
	case *Criteria:
		if c == nil {
			return New(), nil
		}
		return c, nil
	case Criteria:
		return &c, nil
	case map[string]any:
		return FromMapping(c), nil
	case Expression:
		return New().Where(c), nil
	default:
		return nil, shared.NewValidationError("", "criteria",
			fmt.Sprintf("criteria must be a *Criteria or a map[string]any, got %T", v))
	}
}

func (c *Criteria) clone() *Criteria {
	if c == nil {
		return New()
	}
	cp := &Criteria{
		where:       c.where,
		orderings:   append([]Ordering(nil), c.orderings...),
		firstResult: c.firstResult,
		maxResults:  c.maxResults,
	}
	return cp
}

// Where replaces the where expression.
func (c *Criteria) Where(expr Expression) *Criteria {
	cp := c.clone()
	if IsEmpty(expr) {
		cp.where = nil
	} else {
		cp.where = expr
	}
	return cp
}

// AndWhere joins expr to the current where expression with AND.
func (c *Criteria) AndWhere(expr Expression) *Criteria {
	return c.join(TypeAnd, expr)
}

// OrWhere joins expr to the current where expression with OR.
func (c *Criteria) OrWhere(expr Expression) *Criteria {
	return c.join(TypeOr, expr)
}

func (c *Criteria) join(t CompositeType, expr Expression) *Criteria {
	cp := c.clone()
	if IsEmpty(expr) {
		return cp
	}
	if cp.where == nil {
		cp.where = expr
		return cp
	}
	// flatten into an existing composite of the same type
	if existing, ok := cp.where.(Composite); ok && existing.Type == t {
		children := append(append([]Expression(nil), existing.Children...), expr)
		cp.where = Composite{Type: t, Children: children}
		return cp
	}
	cp.where = Composite{Type: t, Children: []Expression{cp.where, expr}}
	return cp
}

// OrderBy appends an ordering term. The direction is case-insensitive;
// anything other than DESC sorts ascending.
func (c *Criteria) OrderBy(field string, dir Direction) *Criteria {
	cp := c.clone()
	d := Asc
	if Direction(strings.ToUpper(string(dir))) == Desc {
		d = Desc
	}
	cp.orderings = append(cp.orderings, Ordering{Field: field, Direction: d})
	return cp
}

// WithFirstResult sets the offset. Negative values clear it.
func (c *Criteria) WithFirstResult(n int) *Criteria {
	cp := c.clone()
	if n < 0 {
		cp.firstResult = nil
	} else {
		cp.firstResult = &n
	}
	return cp
}

// WithMaxResults sets the limit. Negative values clear it.
func (c *Criteria) WithMaxResults(n int) *Criteria {
	cp := c.clone()
	if n < 0 {
		cp.maxResults = nil
	} else {
		cp.maxResults = &n
	}
	return cp
}

// WhereExpression returns the where expression, nil when unfiltered.
func (c *Criteria) WhereExpression() Expression {
	if c == nil {
		return nil
	}
	return c.where
}

// Orderings returns a copy of the ordering terms.
func (c *Criteria) Orderings() []Ordering {
	if c == nil {
		return nil
	}
	return append([]Ordering(nil), c.orderings...)
}

// FirstResult returns the offset and whether one is set.
func (c *Criteria) FirstResult() (int, bool) {
	if c == nil || c.firstResult == nil {
		return 0, false
	}
	return *c.firstResult, true
}

// MaxResults returns the limit and whether one is set.
func (c *Criteria) MaxResults() (int, bool) {
	if c == nil || c.maxResults == nil {
		return 0, false
	}
	return *c.maxResults, true
}

// WithoutPaging drops offset and limit, e.g. for counting.
func (c *Criteria) WithoutPaging() *Criteria {
	cp := c.clone()
	cp.firstResult = nil
	cp.maxResults = nil
	return cp
}

// String renders a readable form, used in logs.
func (c *Criteria) String() string {
	if c == nil {
		return "<all>"
	}
	var b strings.Builder
	if c.where == nil {
		b.WriteString("<all>")
	} else {
		b.WriteString(c.where.String())
	}
	for i, o := range c.orderings {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(o.Field + " " + string(o.Direction))
	}
	if c.maxResults != nil {
		fmt.Fprintf(&b, " LIMIT %d", *c.maxResults)
	}
	if c.firstResult != nil {
		fmt.Fprintf(&b, " OFFSET %d", *c.firstResult)
	}
	return b.String()
}

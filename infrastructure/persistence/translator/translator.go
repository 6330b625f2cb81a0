// Package translator turns criteria trees into gorm clause expressions.
package translator

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"entityservice/domain/criteria"
	"entityservice/domain/shared"
)

// ColumnResolver maps a criteria field to a database column name.
type ColumnResolver func(field string) (string, error)

// SchemaResolver resolves fields against a parsed gorm schema, by struct
// field name or column name. Unknown fields are translation errors.
func SchemaResolver(s *schema.Schema) ColumnResolver {
	return func(field string) (string, error) {
		if f := s.LookUpField(field); f != nil && f.DBName != "" {
			return f.DBName, nil
		}
		for _, f := range s.Fields {
			if strings.EqualFold(f.Name, field) && f.DBName != "" {
				return f.DBName, nil
			}
		}
		return "", shared.NewTranslationError(field, fmt.Sprintf("unknown field %q for %s", field, s.Name))
	}
}

// Translator walks a criteria tree and emits named parameter expressions:
//
//	Eq("user.name", "ann")  =>  `user`.`name` = @user_name   {user_name: "ann"}
//
// Parameters accumulate across Translate calls until ClearParameters, so
// several trees can be combined into one query without name collisions.
type Translator struct {
	rootAlias string
	resolve   ColumnResolver
	params    []sql.NamedArg
	names     map[string]struct{}
}

// New creates a translator. rootAlias qualifies columns without an explicit
// table prefix; resolve may be nil to use field names as column names.
func New(rootAlias string, resolve ColumnResolver) *Translator {
	return &Translator{
		rootAlias: rootAlias,
		resolve:   resolve,
		names:     make(map[string]struct{}),
	}
}

// Parameters bound so far, in binding order.
func (t *Translator) Parameters() []sql.NamedArg {
	return append([]sql.NamedArg(nil), t.params...)
}

// ClearParameters forgets every bound parameter.
func (t *Translator) ClearParameters() {
	t.params = nil
	t.names = make(map[string]struct{})
}

// Translate returns the expression for expr, nil when expr filters nothing.
func (t *Translator) Translate(expr criteria.Expression) (clause.Expression, error) {
	switch e := expr.(type) {
	case nil:
		return nil, nil
	case criteria.Composite:
		return t.composite(e)
	case criteria.Comparison:
		return t.comparison(e)
	case criteria.MultiValue:
		return t.multiValue(e)
	default:
		return nil, shared.NewTranslationError("", fmt.Sprintf("unknown expression %T", expr))
	}
}

// Apply adds the where expression, ordering and offset/limit of c to db.
func (t *Translator) Apply(db *gorm.DB, c *criteria.Criteria) (*gorm.DB, error) {
	where, err := t.Translate(c.WhereExpression())
	if err != nil {
		return nil, err
	}
	if where != nil {
		db = db.Where(where)
	}
	for _, o := range c.Orderings() {
		col, err := t.column(o.Field)
		if err != nil {
			return nil, err
		}
		db = db.Order(clause.OrderByColumn{Column: col, Desc: o.Direction == criteria.Desc})
	}
	if offset, ok := c.FirstResult(); ok {
		db = db.Offset(offset)
	}
	if limit, ok := c.MaxResults(); ok {
		db = db.Limit(limit)
	}
	return db, nil
}

func (t *Translator) composite(c criteria.Composite) (clause.Expression, error) {
	exprs := make([]clause.Expression, 0, len(c.Children))
	for _, child := range c.Children {
		e, err := t.Translate(child)
		if err != nil {
			return nil, err
		}
		if e != nil {
			exprs = append(exprs, e)
		}
	}

	switch c.Type {
	case criteria.TypeAnd:
		if len(exprs) == 0 {
			return nil, nil
		}
		return clause.And(exprs...), nil
	case criteria.TypeOr:
		if len(exprs) == 0 {
			return nil, nil
		}
		return clause.Or(exprs...), nil
	default:
		return nil, shared.NewTranslationError("", fmt.Sprintf("unknown composite type %q", c.Type))
	}
}

func (t *Translator) comparison(c criteria.Comparison) (clause.Expression, error) {
	col, err := t.column(c.Field)
	if err != nil {
		return nil, err
	}

	switch c.Operator {
	case criteria.OpEq, criteria.OpIs:
		if c.Value == nil {
			return clause.Expr{SQL: "? IS NULL", Vars: []any{col}}, nil
		}
		return t.bind("? = @", col, c.Field, c.Value), nil
	case criteria.OpNeq:
		if c.Value == nil {
			return clause.Expr{SQL: "? IS NOT NULL", Vars: []any{col}}, nil
		}
		return t.bind("? <> @", col, c.Field, c.Value), nil
	case criteria.OpGt:
		return t.bind("? > @", col, c.Field, c.Value), nil
	case criteria.OpGte:
		return t.bind("? >= @", col, c.Field, c.Value), nil
	case criteria.OpLt:
		return t.bind("? < @", col, c.Field, c.Value), nil
	case criteria.OpLte:
		return t.bind("? <= @", col, c.Field, c.Value), nil
	case criteria.OpIn, criteria.OpNin:
		list := toList(c.Value)
		if len(list) == 0 {
			if c.Operator == criteria.OpIn {
				return clause.Expr{SQL: "1 = 0"}, nil
			}
			return nil, nil
		}
		if c.Operator == criteria.OpIn {
			return t.bind("? IN @", col, c.Field, list), nil
		}
		return t.bind("? NOT IN @", col, c.Field, list), nil
	case criteria.OpContains:
		return t.bind("LOWER(?) LIKE @", col, c.Field, "%"+lower(c.Value)+"%"), nil
	case criteria.OpNotContains:
		return t.bind("LOWER(?) NOT LIKE @", col, c.Field, "%"+lower(c.Value)+"%"), nil
	case criteria.OpStartsWith:
		return t.bind("LOWER(?) LIKE @", col, c.Field, lower(c.Value)+"%"), nil
	case criteria.OpEndsWith:
		return t.bind("LOWER(?) LIKE @", col, c.Field, "%"+lower(c.Value)), nil
	}
	return nil, shared.NewTranslationError(c.Field, fmt.Sprintf("unknown operator %q", c.Operator))
}

func (t *Translator) multiValue(m criteria.MultiValue) (clause.Expression, error) {
	if !m.Operator.IsMultiValue() {
		return nil, shared.NewTranslationError(m.Field, fmt.Sprintf("unknown operator %q", m.Operator))
	}
	if len(m.Values) != m.Operator.Arity() {
		return nil, shared.NewTranslationError(m.Field,
			fmt.Sprintf("operator %s expects %d values, got %d", m.Operator, m.Operator.Arity(), len(m.Values)))
	}
	col, err := t.column(m.Field)
	if err != nil {
		return nil, err
	}
	low := t.addParameter(m.Field, m.Values[0])
	high := t.addParameter(m.Field, m.Values[1])
	return clause.NamedExpr{
		SQL:  "? BETWEEN @" + low.Name + " AND @" + high.Name,
		Vars: []any{col, low, high},
	}, nil
}

// bind emits "<sql><param>" where sql holds one ? for the column and ends
// with the @ of the parameter.
func (t *Translator) bind(sqlPrefix string, col clause.Column, field string, value any) clause.Expression {
	p := t.addParameter(field, value)
	return clause.NamedExpr{SQL: sqlPrefix + p.Name, Vars: []any{col, p}}
}

// addParameter binds value under a name derived from field, suffixed with
// the number of parameters bound so far when the name is taken.
func (t *Translator) addParameter(field string, value any) sql.NamedArg {
	base := parameterName(field)
	name := base
	for n := len(t.params); ; n++ {
		if _, taken := t.names[name]; !taken {
			break
		}
		name = base + "_" + strconv.Itoa(n)
	}
	t.names[name] = struct{}{}
	p := sql.Named(name, value)
	t.params = append(t.params, p)
	return p
}

func (t *Translator) column(field string) (clause.Column, error) {
	table := t.rootAlias
	name := field
	if i := strings.LastIndex(field, "."); i >= 0 {
		table, name = field[:i], field[i+1:]
	}
	if t.resolve != nil && table == t.rootAlias {
		resolved, err := t.resolve(name)
		if err != nil {
			return clause.Column{}, err
		}
		name = resolved
	}
	return clause.Column{Table: table, Name: name}, nil
}

// parameterName keeps letters, digits and underscores; dots become underscores.
func parameterName(field string) string {
	var b strings.Builder
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "p"
	}
	return b.String()
}

func lower(v any) string {
	return strings.ToLower(fmt.Sprint(v))
}

func toList(v any) []any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

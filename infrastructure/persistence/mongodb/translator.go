// Package mongodb criteria over MongoDB collections (mongo-driver v2).
package mongodb

import (
	"fmt"
	"reflect"
	"regexp"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"entityservice/domain/criteria"
	"entityservice/domain/shared"
)

// Translator turns criteria into BSON filters and find options.
//
//	Or(Eq("status", "open"), Gt("rank", 3))
//	=> {$or: [{status: {$eq: "open"}}, {rank: {$gt: 3}}]}
type Translator struct {
	fields map[string]string
}

// NewTranslator renames criteria fields through fields, e.g. {"id": "_id"}.
func NewTranslator(fields map[string]string) *Translator {
	return &Translator{fields: fields}
}

func (t *Translator) field(name string) string {
	if mapped, ok := t.fields[name]; ok {
		return mapped
	}
	return name
}

// Filter returns an empty document when expr filters nothing.
func (t *Translator) Filter(expr criteria.Expression) (bson.D, error) {
	f, err := t.translate(expr)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return bson.D{}, nil
	}
	return f, nil
}

// FindOptions sort, skip and limit of c.
func (t *Translator) FindOptions(c *criteria.Criteria) *options.FindOptionsBuilder {
	opts := options.Find()
	if orderings := c.Orderings(); len(orderings) > 0 {
		sort := make(bson.D, 0, len(orderings))
		for _, o := range orderings {
			dir := 1
			if o.Direction == criteria.Desc {
				dir = -1
			}
			sort = append(sort, bson.E{Key: t.field(o.Field), Value: dir})
		}
		opts.SetSort(sort)
	}
	if offset, ok := c.FirstResult(); ok {
		opts.SetSkip(int64(offset))
	}
	if limit, ok := c.MaxResults(); ok {
		opts.SetLimit(int64(limit))
	}
	return opts
}

func (t *Translator) translate(expr criteria.Expression) (bson.D, error) {
	switch e := expr.(type) {
	case nil:
		return nil, nil
	case criteria.Composite:
		return t.composite(e)
	case criteria.Comparison:
		return t.comparison(e)
	case criteria.MultiValue:
		return t.multiValue(e)
	}
	return nil, shared.NewTranslationError("", fmt.Sprintf("unknown expression %T", expr))
}

func (t *Translator) composite(c criteria.Composite) (bson.D, error) {
	var key string
	switch c.Type {
	case criteria.TypeAnd:
		key = "$and"
	case criteria.TypeOr:
		key = "$or"
	default:
		return nil, shared.NewTranslationError("", fmt.Sprintf("unknown composite type %q", c.Type))
	}

	children := bson.A{}
	for _, child := range c.Children {
		f, err := t.translate(child)
		if err != nil {
			return nil, err
		}
		if f != nil {
			children = append(children, f)
		}
	}
	switch len(children) {
	case 0:
		return nil, nil
	case 1:
		return children[0].(bson.D), nil
	}
	return bson.D{{Key: key, Value: children}}, nil
}

func (t *Translator) comparison(c criteria.Comparison) (bson.D, error) {
	op := func(operator string, v any) bson.D {
		return bson.D{{Key: t.field(c.Field), Value: bson.D{{Key: operator, Value: v}}}}
	}

	switch c.Operator {
	case criteria.OpEq, criteria.OpIs:
		return op("$eq", c.Value), nil
	case criteria.OpNeq:
		return op("$ne", c.Value), nil
	case criteria.OpGt:
		return op("$gt", c.Value), nil
	case criteria.OpGte:
		return op("$gte", c.Value), nil
	case criteria.OpLt:
		return op("$lt", c.Value), nil
	case criteria.OpLte:
		return op("$lte", c.Value), nil
	case criteria.OpIn:
		return op("$in", toArray(c.Value)), nil
	case criteria.OpNin:
		values := toArray(c.Value)
		if len(values) == 0 {
			return nil, nil
		}
		return op("$nin", values), nil
	case criteria.OpContains:
		return op("$regex", pattern("", c.Value, "")), nil
	case criteria.OpNotContains:
		return op("$not", pattern("", c.Value, "")), nil
	case criteria.OpStartsWith:
		return op("$regex", pattern("^", c.Value, "")), nil
	case criteria.OpEndsWith:
		return op("$regex", pattern("", c.Value, "$")), nil
	}
	return nil, shared.NewTranslationError(c.Field, fmt.Sprintf("unknown operator %q", c.Operator))
}

func (t *Translator) multiValue(m criteria.MultiValue) (bson.D, error) {
	if !m.Operator.IsMultiValue() {
		return nil, shared.NewTranslationError(m.Field, fmt.Sprintf("unknown operator %q", m.Operator))
	}
	if len(m.Values) != m.Operator.Arity() {
		return nil, shared.NewTranslationError(m.Field,
			fmt.Sprintf("operator %s expects %d values, got %d", m.Operator, m.Operator.Arity(), len(m.Values)))
	}
	return bson.D{{Key: t.field(m.Field), Value: bson.D{
		{Key: "$gte", Value: m.Values[0]},
		{Key: "$lte", Value: m.Values[1]},
	}}}, nil
}

// pattern case-insensitive regex matching v literally.
func pattern(prefix string, v any, suffix string) bson.Regex {
	return bson.Regex{Pattern: prefix + regexp.QuoteMeta(fmt.Sprint(v)) + suffix, Options: "i"}
}

func toArray(v any) bson.A {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return bson.A{}
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return bson.A{v}
	}
	out := make(bson.A, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

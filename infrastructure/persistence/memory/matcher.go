package memory

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"

	"entityservice/domain/criteria"
	"entityservice/domain/shared"
)

// Fielder entities exposing their fields by name skip reflection.
type Fielder interface {
	Field(name string) (any, bool)
}

// Match evaluates expr against entity. A nil or empty expression matches.
func Match(entity any, expr criteria.Expression) (bool, error) {
	switch e := expr.(type) {
	case nil:
		return true, nil
	case criteria.Composite:
		return matchComposite(entity, e)
	case criteria.Comparison:
		return matchComparison(entity, e)
	case criteria.MultiValue:
		return matchMultiValue(entity, e)
	default:
		return false, shared.NewTranslationError("", fmt.Sprintf("unknown expression %T", expr))
	}
}

func matchComposite(entity any, c criteria.Composite) (bool, error) {
	if len(c.Children) == 0 {
		return true, nil
	}
	switch c.Type {
	case criteria.TypeAnd:
		for _, child := range c.Children {
			ok, err := Match(entity, child)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case criteria.TypeOr:
		for _, child := range c.Children {
			ok, err := Match(entity, child)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, shared.NewTranslationError("", fmt.Sprintf("unknown composite type %q", c.Type))
	}
}

func matchComparison(entity any, c criteria.Comparison) (bool, error) {
	actual, _ := FieldValue(entity, c.Field)

	switch c.Operator {
	case criteria.OpEq, criteria.OpIs:
		return equal(actual, c.Value), nil
	case criteria.OpNeq:
		return !equal(actual, c.Value), nil
	case criteria.OpGt, criteria.OpGte, criteria.OpLt, criteria.OpLte:
		if isNil(actual) || isNil(c.Value) {
			return false, nil
		}
		cmp, ok := compare(actual, c.Value)
		if !ok {
			return false, nil
		}
		switch c.Operator {
		case criteria.OpGt:
			return cmp > 0, nil
		case criteria.OpGte:
			return cmp >= 0, nil
		case criteria.OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case criteria.OpIn, criteria.OpNin:
		found := false
		for _, candidate := range toList(c.Value) {
			if equal(actual, candidate) {
				found = true
				break
			}
		}
		if c.Operator == criteria.OpIn {
			return found, nil
		}
		return !found, nil
	case criteria.OpContains, criteria.OpNotContains, criteria.OpStartsWith, criteria.OpEndsWith:
		if isNil(actual) {
			return false, nil
		}
		haystack := strings.ToLower(cast.ToString(actual))
		needle := strings.ToLower(cast.ToString(c.Value))
		switch c.Operator {
		case criteria.OpContains:
			return strings.Contains(haystack, needle), nil
		case criteria.OpNotContains:
			return !strings.Contains(haystack, needle), nil
		case criteria.OpStartsWith:
			return strings.HasPrefix(haystack, needle), nil
		default:
			return strings.HasSuffix(haystack, needle), nil
		}
	}
	return false, shared.NewTranslationError(c.Field, fmt.Sprintf("unknown operator %q", c.Operator))
}

func matchMultiValue(entity any, m criteria.MultiValue) (bool, error) {
	if !m.Operator.IsMultiValue() {
		return false, shared.NewTranslationError(m.Field, fmt.Sprintf("unknown operator %q", m.Operator))
	}
	if len(m.Values) != m.Operator.Arity() {
		return false, shared.NewTranslationError(m.Field,
			fmt.Sprintf("operator %s expects %d values, got %d", m.Operator, m.Operator.Arity(), len(m.Values)))
	}
	actual, _ := FieldValue(entity, m.Field)
	if isNil(actual) {
		return false, nil
	}
	low, okLow := compare(actual, m.Values[0])
	high, okHigh := compare(actual, m.Values[1])
	return okLow && okHigh && low >= 0 && high <= 0, nil
}

// ============================================================================
// Field access
// ============================================================================

// FieldValue reads a field of entity. Dotted names walk nested values.
// Lookup order: Fielder, maps, ToMap(), struct fields (by name, json or gorm
// column tag, case-insensitive), then getter methods (Title(), ID()).
func FieldValue(entity any, field string) (any, bool) {
	current := entity
	for _, part := range strings.Split(field, ".") {
		v, ok := fieldOf(current, part)
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}

func fieldOf(v any, name string) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case Fielder:
		return t.Field(name)
	case map[string]any:
		val, ok := t[name]
		return val, ok
	case interface{ ToMap() map[string]any }:
		val, ok := t.ToMap()[name]
		if ok {
			return val, true
		}
	}

	rv := reflect.ValueOf(v)
	if m, ok := methodValue(rv, name); ok {
		return m, true
	}
	rv = reflect.Indirect(rv)
	if rv.Kind() == reflect.Struct {
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			sf := rt.Field(i)
			if !sf.IsExported() {
				continue
			}
			if matchesField(sf, name) {
				return rv.Field(i).Interface(), true
			}
		}
	}
	return nil, false
}

func matchesField(sf reflect.StructField, name string) bool {
	if strings.EqualFold(sf.Name, name) {
		return true
	}
	if tag := strings.Split(sf.Tag.Get("json"), ",")[0]; tag != "" && tag == name {
		return true
	}
	for _, part := range strings.Split(sf.Tag.Get("gorm"), ";") {
		if col, ok := strings.CutPrefix(part, "column:"); ok && col == name {
			return true
		}
	}
	return false
}

// methodValue calls a no-argument getter named like the field.
func methodValue(rv reflect.Value, name string) (any, bool) {
	if !rv.IsValid() {
		return nil, false
	}
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		m := rt.Method(i)
		if !strings.EqualFold(m.Name, name) {
			continue
		}
		// receiver is the only input
		if m.Type.NumIn() != 1 || m.Type.NumOut() == 0 {
			continue
		}
		return rv.Method(i).Call(nil)[0].Interface(), true
	}
	return nil, false
}

// ============================================================================
// Value comparison
// ============================================================================

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func equal(a, b any) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}
	if cmp, ok := compare(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

// compare orders a and b as numbers, times or strings, in that preference.
func compare(a, b any) (int, bool) {
	a, b = deref(a), deref(b)

	if ta, ok := a.(time.Time); ok {
		tb, err := cast.ToTimeE(b)
		if err != nil {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	if tb, ok := b.(time.Time); ok {
		ta, err := cast.ToTimeE(a)
		if err != nil {
			return 0, false
		}
		return ta.Compare(tb), true
	}

	if isNumber(a) || isNumber(b) {
		fa, errA := cast.ToFloat64E(a)
		fb, errB := cast.ToFloat64E(b)
		if errA == nil && errB == nil {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
	}

	sa, errA := cast.ToStringE(a)
	sb, errB := cast.ToStringE(b)
	if errA != nil || errB != nil {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func isNumber(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func toList(v any) []any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

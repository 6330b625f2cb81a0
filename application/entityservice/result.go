package entityservice

import (
	"fmt"
	"iter"
	"reflect"

	"entityservice/domain/shared"
)

// Mapper rows convertible by ToArray.
type Mapper interface {
	ToMap() map[string]any
}

// Iterable sources that can produce a fresh sequence on demand.
type Iterable interface {
	All() iter.Seq[any]
}

// Result wraps the rows of a query.
//
// Slices are indexed eagerly. Lazy sources (iter.Seq[any] or an Iterable) are
// only walked on demand; Count materializes them once and caches the number.
// Lazy sequences must be restartable, since Rewind starts them again.
//
// The cursor (Current/Key/Next/Rewind/Valid/Prev) is owned by one consumer.
// On a lazy source it opens on the first cursor call after Initialize or
// Rewind, not before. Once opened it holds a running sequence until it is
// exhausted; callers that stop early must call Close.
// Prev rewinds and re-advances to Key()-1, which is O(n): results are expected
// to be small (paginated) pages.
type Result struct {
	source      any
	seq         iter.Seq[any]
	rows        []any // set for slice sources
	initialized bool

	count      int
	counted    bool
	fieldCount int
	fieldsSeen bool

	pull    func() (any, bool)
	stop    func()
	rewound bool // lazy cursor reset but not opened yet
	pos     int
	current any
}

// NewResult creates an empty result. Call Initialize to attach rows.
func NewResult() *Result {
	return &Result{pos: -1}
}

// NewResultFrom creates and initializes a result.
func NewResultFrom(source any) (*Result, error) {
	r := NewResult()
	if err := r.Initialize(source); err != nil {
		return nil, err
	}
	return r, nil
}

// Initialize attaches the data source: any slice, an iter.Seq[any], an
// iter.Seq[shared.Entity] or an Iterable. nil entries of slices are dropped. A result is initialized once.
func (r *Result) Initialize(source any) error {
	if r.initialized {
		return shared.NewValidationError("", "source", "result is already initialized")
	}

	switch src := source.(type) {
	case iter.Seq[any]:
		r.seq = src
	case func(yield func(any) bool):
		r.seq = src
	case iter.Seq[shared.Entity]:
		r.seq = func(yield func(any) bool) {
			for e := range src {
				if !yield(e) {
					return
				}
			}
		}
	case Iterable:
		r.seq = src.All()
	default:
		v := reflect.ValueOf(source)
		if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
			return shared.NewValidationError("", "source",
				fmt.Sprintf("result source must be a slice or a sequence, got %T", source))
		}
		rows := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			item := v.Index(i)
			if isNilValue(item) {
				continue
			}
			rows = append(rows, item.Interface())
		}
		r.rows = rows
		r.seq = func(yield func(any) bool) {
			for _, row := range rows {
				if !yield(row) {
					return
				}
			}
		}
		r.count, r.counted = len(rows), true
		if len(rows) > 0 {
			r.fieldCount, r.fieldsSeen = fieldCountOf(rows[0]), true
		}
	}

	r.source = source
	r.initialized = true
	r.Rewind()
	return nil
}

// Count number of rows. Lazy sources are materialized once.
func (r *Result) Count() int {
	if r.counted || !r.initialized {
		return r.count
	}
	n := 0
	for range r.seq {
		n++
	}
	r.count, r.counted = n, true
	return n
}

// FieldCount number of fields of the first row (map keys, struct fields or
// ToMap keys), 0 when empty or not introspectable.
func (r *Result) FieldCount() int {
	if r.fieldsSeen || !r.initialized {
		return r.fieldCount
	}
	for row := range r.seq {
		r.fieldCount = fieldCountOf(row)
		break
	}
	r.fieldsSeen = true
	return r.fieldCount
}

// DataSource original value given to Initialize.
func (r *Result) DataSource() any { return r.source }

// All iterates every row independently of the cursor.
func (r *Result) All() iter.Seq[any] {
	if !r.initialized {
		return func(func(any) bool) {}
	}
	return r.seq
}

// Entities rows that are entities, in order.
func (r *Result) Entities() []shared.Entity {
	var out []shared.Entity
	for row := range r.All() {
		if e, ok := row.(shared.Entity); ok {
			out = append(out, e)
		}
	}
	return out
}

// ToArray converts every row to a map. Rows must be maps or implement Mapper.
func (r *Result) ToArray() ([]map[string]any, error) {
	out := make([]map[string]any, 0, r.Count())
	i := 0
	for row := range r.All() {
		switch v := row.(type) {
		case map[string]any:
			out = append(out, v)
		case Mapper:
			out = append(out, v.ToMap())
		default:
			return nil, shared.NewValidationError("", "row",
				fmt.Sprintf("row %d of type %T is not convertible to a map", i, row))
		}
		i++
	}
	return out, nil
}

// ============================================================================
// Cursor
// ============================================================================

// Rewind moves the cursor to the first row.
func (r *Result) Rewind() {
	r.Close()
	if !r.initialized {
		return
	}
	if r.rows != nil {
		r.pos = 0
		r.syncSliceCurrent()
		return
	}
	r.rewound = true
}

// Valid reports whether the cursor points at a row.
func (r *Result) Valid() bool {
	if r.rows != nil {
		return r.pos >= 0 && r.pos < len(r.rows)
	}
	r.open()
	return r.pos >= 0 && r.pull != nil
}

// Current row under the cursor, nil when not Valid.
func (r *Result) Current() any {
	if !r.Valid() {
		return nil
	}
	return r.current
}

// Key position of the cursor, -1 when not Valid.
func (r *Result) Key() int {
	if !r.Valid() {
		return -1
	}
	return r.pos
}

// Next advances the cursor.
func (r *Result) Next() {
	if !r.Valid() {
		return
	}
	if r.rows != nil {
		r.pos++
		r.syncSliceCurrent()
		return
	}
	r.advance()
}

// Prev moves the cursor one row back by rewinding and re-advancing.
// Moving before the first row invalidates the cursor.
func (r *Result) Prev() {
	if !r.Valid() {
		return
	}
	target := r.pos - 1
	r.Rewind()
	if target < 0 {
		r.Close()
		r.pos = -1
		return
	}
	for r.Valid() && r.pos < target {
		r.Next()
	}
}

// Close releases the cursor of a lazy source. Rewind resets it.
func (r *Result) Close() {
	if r.stop != nil {
		r.stop()
	}
	r.pull, r.stop = nil, nil
	r.rewound = false
	r.current = nil
	r.pos = -1
}

func (r *Result) open() {
	if !r.rewound {
		return
	}
	r.rewound = false
	r.pull, r.stop = iter.Pull(r.seq)
	r.advance()
}

func (r *Result) advance() {
	v, ok := r.pull()
	if !ok {
		r.Close()
		return
	}
	r.pos++
	r.current = v
}

func (r *Result) syncSliceCurrent() {
	if r.pos >= 0 && r.pos < len(r.rows) {
		r.current = r.rows[r.pos]
	} else {
		r.current = nil
	}
}

// ============================================================================
// Helpers
// ============================================================================

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func fieldCountOf(row any) int {
	switch v := row.(type) {
	case map[string]any:
		return len(v)
	case Mapper:
		return len(v.ToMap())
	}
	rv := reflect.Indirect(reflect.ValueOf(row))
	switch rv.Kind() {
	case reflect.Struct:
		return rv.NumField()
	case reflect.Map:
		return rv.Len()
	}
	return 0
}

// Package criteria provides a storage independent representation of
// "filter on field by operator against value(s)", composable into AND/OR trees,
// together with ordering and offset/limit.
//
// Translators in the infrastructure layer turn a Criteria into backend queries
// (gorm clauses, BSON filters, in-memory predicates).
package criteria

// Operator is a comparison operator used by a leaf expression.
type Operator string

const (
	// Single value operators
	OpEq          Operator = "="  // field = value, IS NULL when value is nil
	OpNeq         Operator = "<>" // field <> value, IS NOT NULL when value is nil
	OpGt          Operator = ">"
	OpGte         Operator = ">="
	OpLt          Operator = "<"
	OpLte         Operator = "<="
	OpIs          Operator = "IS"  // same as OpEq
	OpIn          Operator = "IN"  // value is a list
	OpNin         Operator = "NIN" // value is a list
	OpContains    Operator = "CONTAINS"
	OpNotContains Operator = "NOT_CONTAINS"
	OpStartsWith  Operator = "STARTS_WITH"
	OpEndsWith    Operator = "ENDS_WITH"

	// Multi value operators
	OpBetween       Operator = "BETWEEN"
	OpCurrentMonth  Operator = "CURRENT_MONTH"
	OpPreviousMonth Operator = "PREVIOUS_MONTH"
	OpCurrentYear   Operator = "CURRENT_YEAR"
	OpPreviousYear  Operator = "PREVIOUS_YEAR"
)

// CompositeType joins the children of a composite expression.
type CompositeType string

const (
	TypeAnd CompositeType = "AND"
	TypeOr  CompositeType = "OR"
)

// Arity returns how many values an operator consumes.
// Multi value operators always need exactly two boundaries.
func (o Operator) Arity() int {
	if o.IsMultiValue() {
		return 2
	}
	return 1
}

// IsMultiValue reports whether o is BETWEEN or one of the date range operators.
func (o Operator) IsMultiValue() bool {
	switch o {
	case OpBetween, OpCurrentMonth, OpPreviousMonth, OpCurrentYear, OpPreviousYear:
		return true
	}
	return false
}

// IsPattern reports whether o is a case-insensitive pattern match.
func (o Operator) IsPattern() bool {
	switch o {
	case OpContains, OpNotContains, OpStartsWith, OpEndsWith:
		return true
	}
	return false
}

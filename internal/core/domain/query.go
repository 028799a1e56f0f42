package domain

// QueryOperator is the comparison applied by one query filter.
type QueryOperator string

const (
	OpEqual         QueryOperator = "EQUAL"
	OpNotEqual      QueryOperator = "NOT_EQUAL"
	OpGreaterEqual  QueryOperator = "GREATER_EQUAL"
	OpLessEqual     QueryOperator = "LESS_EQUAL"
	OpEqualsMany    QueryOperator = "EQUALS_MANY"
	OpArrayContains QueryOperator = "ARRAY_CONTAINS"
)

// QueryFilter pairs an operator with its comparison value. EQUALS_MANY
// expects a slice value; ARRAY_CONTAINS matches records whose array field
// contains the value.
type QueryFilter struct {
	Operator QueryOperator `json:"operator"`
	Value    any           `json:"value"`
}

// Query maps record fields to filters. The combined query is an AND over
// all entries. Backends are authoritative for ordering only when a sort key
// is given; otherwise order is unspecified.
type Query map[string]QueryFilter

// Eq is shorthand for an EQUAL filter.
func Eq(value any) QueryFilter { return QueryFilter{Operator: OpEqual, Value: value} }

// In is shorthand for an EQUALS_MANY filter.
func In(values []string) QueryFilter { return QueryFilter{Operator: OpEqualsMany, Value: values} }

// Gte is shorthand for a GREATER_EQUAL filter.
func Gte(value any) QueryFilter { return QueryFilter{Operator: OpGreaterEqual, Value: value} }

// Lte is shorthand for a LESS_EQUAL filter.
func Lte(value any) QueryFilter { return QueryFilter{Operator: OpLessEqual, Value: value} }

// Contains is shorthand for an ARRAY_CONTAINS filter.
func Contains(value any) QueryFilter {
	return QueryFilter{Operator: OpArrayContains, Value: value}
}

// SortDirection orders query results when a sort key is specified.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort names the field and direction for ordered queries.
type Sort struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

package domain

// ActionKind classifies the reusable code identity an Action represents.
type ActionKind string

const (
	ActionKindLLM       ActionKind = "LLM"
	ActionKindTool      ActionKind = "TOOL"
	ActionKindVectorDB  ActionKind = "VECTOR_DB"
	ActionKindML        ActionKind = "ML"
	ActionKindGuardrail ActionKind = "GUARDRAIL"
	ActionKindHuman     ActionKind = "HUMAN"
	ActionKindOther     ActionKind = "OTHER"
)

// SchemaUnknown marks an input or output schema that could not be derived
// from the source span.
const SchemaUnknown = "unknown"

// Action is the reusable identity of a piece of code (a tool, an LLM call,
// a retriever) referenced by one or more Tasks. Two actions are equal iff
// their CodeID is equal; deduplication rewrites task action references to
// the canonical instance.
type Action struct {
	ElementHeader `bson:",inline"`

	CodeID            string     `json:"code_id" bson:"code_id"`
	ActionKind        ActionKind `json:"kind,omitempty" bson:"kind,omitempty"`
	Language          string     `json:"language,omitempty" bson:"language,omitempty"`
	InputSchema       string     `json:"input_schema,omitempty" bson:"input_schema,omitempty"`
	OutputSchema      string     `json:"output_schema,omitempty" bson:"output_schema,omitempty"`
	IsGenerated       bool       `json:"is_generated" bson:"is_generated"`
	ConsumedResources []string   `json:"consumed_resources,omitempty" bson:"consumed_resources,omitempty"`
}

// NewAction builds an Action with a generated id when none is supplied.
func NewAction(elementID, codeID, name string) *Action {
	a := &Action{
		ElementHeader: ElementHeader{
			ElementID: elementID,
			Type:      KindAction,
			Name:      name,
		},
		CodeID: codeID,
	}
	a.EnsureID()
	return a
}

// Equal reports semantic equality: two actions collapse when their code
// identity matches.
func (a *Action) Equal(other *Action) bool {
	return other != nil && a.CodeID == other.CodeID
}

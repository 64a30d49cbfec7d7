package domain

type Intent string

const (
	IntentGenerateCode Intent = "generate_code"
	IntentExplain      Intent = "explain"
	IntentDebug        Intent = "debug"
	IntentExample      Intent = "example"
	IntentCompare      Intent = "compare"
	IntentIntegrate    Intent = "integrate"
	IntentGeneral      Intent = "general"
)

const CategoryGeneral = "general"

func (i Intent) Valid() bool {
	switch i {
	case IntentGenerateCode, IntentExplain, IntentDebug, IntentExample, IntentCompare, IntentIntegrate, IntentGeneral:
		return true
	default:
		return false
	}
}

// Query is the analysed form of one user query. It lives for a single
// pipeline invocation.
type Query struct {
	Original             string `json:"original"`
	Expanded             string `json:"expanded"`
	Intent               Intent `json:"intent"`
	Category             string `json:"category"`
	HypotheticalDocument string `json:"hypothetical_document,omitempty"`
}

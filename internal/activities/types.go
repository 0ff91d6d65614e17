package activities

// Category is the routing label produced by the classifier.
type Category string

const (
	CategoryDatabase    Category = "database"
	CategoryNonDatabase Category = "non-database"
)

// Categories lists the labels the classifier is asked to choose from.
func Categories() []Category {
	return []Category{CategoryDatabase, CategoryNonDatabase}
}

// ClassifyInput is the input of RouteQuery
type ClassifyInput struct {
	Query string `json:"query"`
}

// RoutingDecision is the classifier's structured answer. Category is kept
// verbatim; the controller decides what an unrecognised value means.
type RoutingDecision struct {
	Category    Category `json:"category"`
	Explanation string   `json:"explanation"`
	TokensUsed  int      `json:"tokens_used,omitempty"`
}

// routingAnswer is the shape the model is asked to produce.
type routingAnswer struct {
	Category    Category `json:"category" description:"The type of user query"`
	Explanation string   `json:"explanation" description:"Explanation of why this routing was chosen"`
}

// StepInput is handed to every path step. Previous carries the committed
// output of the preceding step and is empty for the first one.
type StepInput struct {
	Query    string   `json:"query"`
	Previous string   `json:"previous,omitempty"`
	Category Category `json:"category,omitempty"`
	RunID    string   `json:"run_id,omitempty"`
}

// StepOutput is the result of a path step.
type StepOutput struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
	Model      string `json:"model,omitempty"`
	ToolCalls  int    `json:"tool_calls,omitempty"`
	Attempt    int32  `json:"attempt"`
}

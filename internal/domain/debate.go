package domain

// Topic is the result of classifying the message that opens a debate.
type Topic struct {
	Name             string `json:"topic"`
	Category         string `json:"category"`
	Description      string `json:"description"`
	ControversyLevel int    `json:"controversy_level"`
}

// Default topic values used when classification fails.
const (
	DefaultTopicName = "General Discussion"
	DefaultCategory  = "Other"
)

// GenerateRequest is the input to a reply generator.
type GenerateRequest struct {
	Position    string
	Topic       string
	History     []Message
	UserMessage string
	// Language is "English" or "Spanish".
	Language string
	// Repetitive is set when the user keeps sending the same message.
	Repetitive bool
}

// ConsistencyRequest asks whether a candidate reply holds the assigned position.
type ConsistencyRequest struct {
	Candidate string
	Position  string
	Topic     string
	History   []Message
}

// ConsistencyVerdict is the external consistency check result.
type ConsistencyVerdict struct {
	Approved    bool     `json:"approved"`
	Consistent  bool     `json:"is_consistent"`
	Score       int      `json:"consistency_score"`
	Issues      []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

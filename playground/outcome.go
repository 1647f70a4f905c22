package playground

// OutcomeStatus tags an Outcome.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeError   OutcomeStatus = "error"
)

// Outcome is the result of one evaluation. Data is set on success. Error is
// the interpreter's message on failure and nil when it supplied none.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Data   string        `json:"data,omitempty"`
	Error  *string       `json:"error"`
}

// Success returns a successful Outcome carrying data.
func Success(data string) Outcome {
	return Outcome{Status: OutcomeSuccess, Data: data}
}

// Failure returns a failed Outcome. An empty message is stored as nil.
func Failure(message string) Outcome {
	o := Outcome{Status: OutcomeError}
	if message != "" {
		o.Error = &message
	}
	return o
}

// OK reports whether the evaluation succeeded.
func (o Outcome) OK() bool {
	return o.Status == OutcomeSuccess
}

// Message returns the failure message, or "" when there is none.
func (o Outcome) Message() string {
	if o.Error == nil {
		return ""
	}
	return *o.Error
}

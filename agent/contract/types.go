package contract

import "time"

// Route is the processing path the classifier selects for a query.
type Route string

const (
	RouteSimpleFacts      Route = "simple_facts"
	RouteDeepAnalysis     Route = "deep_analysis"
	RouteReportGeneration Route = "report_generation"
	RouteConversation     Route = "conversation"
)

func (r Route) Valid() bool {
	switch r {
	case RouteSimpleFacts, RouteDeepAnalysis, RouteReportGeneration, RouteConversation:
		return true
	}
	return false
}

// Decision is the classifier's verdict for one query. Degraded marks the
// fallback taken when the primary classifier could not be reached.
type Decision struct {
	Route    Route  `json:"route"`
	Degraded bool   `json:"degraded,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ToolCall records one tool invocation: the arguments it was given and
// either a structured result or a failure marker. Never mutated after the
// router records it.
type ToolCall struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	Result any            `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
	Failed bool           `json:"failed,omitempty"`
}

// Exchange is one query/answer pair with its tool-call trace, the atomic
// unit of conversational memory. Immutable once appended to a session.
type Exchange struct {
	ID        string     `json:"id"`
	Query     string     `json:"query"`
	Route     Route      `json:"route"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Answer    string     `json:"answer"`
	Degraded  bool       `json:"degraded,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Context is what the memory store hands back for building the next
// query's context: the summary of everything evicted plus the full
// current window in insertion order.
type Context struct {
	Summary string     `json:"summary,omitempty"`
	Window  []Exchange `json:"window,omitempty"`
}

// Outcome is what a route execution produced. Partial is set when some
// but not all planned invocations succeeded, or when the chain was
// halted early by the cycle guard.
type Outcome struct {
	Calls   []ToolCall `json:"calls,omitempty"`
	Partial bool       `json:"partial,omitempty"`
}

// Trace is the observability record returned alongside each answer.
type Trace struct {
	Route    Route      `json:"route"`
	Degraded bool       `json:"degraded,omitempty"`
	Partial  bool       `json:"partial,omitempty"`
	Calls    []ToolCall `json:"calls,omitempty"`
}

// Result is the inbound interface's reply: free-text answer plus trace.
type Result struct {
	Answer string `json:"answer"`
	Trace  Trace  `json:"trace"`
}

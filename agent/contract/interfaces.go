package contract

import (
	"context"
	"time"
)

// Classifier picks a route for an incoming query. Implementations may be
// rule-driven or model-assisted; an error means the capability was
// unreachable and the caller degrades to RouteConversation.
type Classifier interface {
	Classify(ctx context.Context, query string, convo Context) (Decision, error)
}

// Router executes the invocation plan for a route and returns the
// recorded tool calls. A returned error aborts the route (simple_facts
// fail-fast); partial failures on the other routes are reported through
// Outcome.Partial, not through the error.
type Router interface {
	Route(ctx context.Context, decision Decision, query string, convo Context) (Outcome, error)
}

// Composer turns a route outcome into the user-facing answer and the
// exchange to be appended to memory.
type Composer interface {
	Compose(query string, decision Decision, out Outcome, convo Context, now time.Time) (Exchange, error)
	ComposeFailure(query string, decision Decision, out Outcome, now time.Time) Exchange
}

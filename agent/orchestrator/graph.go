package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/contract"
	statex "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/state"
)

type GraphInput struct {
	SessionID string
	Query     string
}

// graphState carries one query through the pipeline:
// validate -> load session -> build context -> classify -> route ->
// compose -> append+save -> finalize. A route failure flips RouteFailed
// instead of aborting, so the marker exchange still reaches memory.
type graphState struct {
	SessionID string
	Query     string
	Now       time.Time

	Session *statex.Session
	Convo   contractx.Context

	Decision    contractx.Decision
	Outcome     contractx.Outcome
	RouteFailed bool

	Exchange contractx.Exchange
}

func (o *Orchestrator) compileHandleQueryGraph(ctx context.Context) (compose.Runnable[GraphInput, contractx.Result], error) {
	graph := compose.NewGraph[GraphInput, contractx.Result]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in GraphInput) (*graphState, error) {
			return validateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_or_create_session",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			return loadOrCreateSession(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_or_create_session: %w", err)
	}

	if err := graph.AddLambdaNode("build_context",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			return buildContext(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node build_context: %w", err)
	}

	if err := graph.AddLambdaNode("classify_query",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			return classifyQuery(ctx, in, o.classifier)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node classify_query: %w", err)
	}

	if err := graph.AddLambdaNode("route_tools",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			return routeTools(ctx, in, o.router)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node route_tools: %w", err)
	}

	if err := graph.AddLambdaNode("compose_answer",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			return composeAnswer(in, o.composer)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node compose_answer: %w", err)
	}

	if err := graph.AddLambdaNode("append_and_save",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			return appendAndSave(ctx, in, o.store, o.window, o.fold)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node append_and_save: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_result",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (contractx.Result, error) {
			return finalizeResult(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_result: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_or_create_session"},
		{"load_or_create_session", "build_context"},
		{"build_context", "classify_query"},
		{"classify_query", "route_tools"},
		{"route_tools", "compose_answer"},
		{"compose_answer", "append_and_save"},
		{"append_and_save", "finalize_result"},
		{"finalize_result", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.handle_query"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}

/* --------------------------------- nodes --------------------------------- */

func validateRequest(in GraphInput, nowFn func() time.Time) (*graphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, ErrInvalidQuery
	}

	return &graphState{
		SessionID: sessionID,
		Query:     query,
		Now:       nowFn().UTC(),
	}, nil
}

func loadOrCreateSession(ctx context.Context, in *graphState, store statex.Store) (*graphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	session, err := store.Load(ctx, in.SessionID)
	if err != nil {
		if !errors.Is(err, statex.ErrSessionNotFound) {
			return nil, err
		}
		session = statex.NewSession(in.SessionID, in.Now)
	}
	in.Session = session
	return in, nil
}

func buildContext(in *graphState) (*graphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}
	in.Convo = in.Session.Context()
	return in, nil
}

// classifyQuery never propagates classifier errors: an unreachable
// classifier degrades to the conversation route with the degraded flag.
func classifyQuery(ctx context.Context, in *graphState, classifier contractx.Classifier) (*graphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	decision, err := classifier.Classify(ctx, in.Query, in.Convo)
	if err != nil {
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("classifier unavailable, degrading to conversation")
		decision = contractx.Decision{
			Route:    contractx.RouteConversation,
			Degraded: true,
			Reason:   "classifier unavailable",
		}
	}
	if !decision.Route.Valid() {
		decision = contractx.Decision{
			Route:    contractx.RouteConversation,
			Degraded: true,
			Reason:   "classifier returned invalid route",
		}
	}

	in.Decision = decision
	return in, nil
}

// routeTools records a route failure instead of aborting so the pipeline
// still reaches the memory update with a marker exchange.
func routeTools(ctx context.Context, in *graphState, router contractx.Router) (*graphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	out, err := router.Route(ctx, in.Decision, in.Query, in.Convo)
	if err != nil {
		log.Warn().Err(err).
			Str("session_id", in.SessionID).
			Str("route", string(in.Decision.Route)).
			Msg("route execution failed")
		in.RouteFailed = true
	}
	in.Outcome = out
	return in, nil
}

func composeAnswer(in *graphState, composer contractx.Composer) (*graphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	if in.RouteFailed {
		in.Exchange = composer.ComposeFailure(in.Query, in.Decision, in.Outcome, in.Now)
		return in, nil
	}

	ex, err := composer.Compose(in.Query, in.Decision, in.Outcome, in.Convo, in.Now)
	if err != nil {
		return nil, err
	}
	in.Exchange = ex
	return in, nil
}

func appendAndSave(ctx context.Context, in *graphState, store statex.Store, window int, fold statex.FoldPolicy) (*graphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	if err := in.Session.Append(in.Exchange, window, fold, in.Now); err != nil {
		return nil, err
	}
	if err := store.Save(ctx, in.Session); err != nil {
		return nil, err
	}
	return in, nil
}

func finalizeResult(in *graphState) (contractx.Result, error) {
	if in == nil {
		return contractx.Result{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	return contractx.Result{
		Answer: in.Exchange.Answer,
		Trace: contractx.Trace{
			Route:    in.Decision.Route,
			Degraded: in.Exchange.Degraded,
			Partial:  in.Outcome.Partial || in.RouteFailed,
			Calls:    in.Outcome.Calls,
		},
	}, nil
}

package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/contract"
)

// Model classifies with a structured-output chat model. Errors from the
// model (unreachable capability, schema violation) are returned to the
// orchestrator, which degrades to the conversation route rather than
// surfacing them.
type Model struct {
	runner compose.Runnable[map[string]any, modelLLMOutput]
}

type modelLLMOutput struct {
	Route  string `json:"route"`
	Reason string `json:"reason,omitempty"`
}

func NewModel(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*Model, error) {
	runner, err := compileClassifierGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile classifier graph: %v", contractx.ErrModelInvoke, err)
	}
	return &Model{runner: runner}, nil
}

func (m *Model) Classify(ctx context.Context, query string, convo contractx.Context) (contractx.Decision, error) {
	if strings.TrimSpace(query) == "" {
		return contractx.Decision{}, fmt.Errorf("%w: query is required", contractx.ErrValidation)
	}

	payload := map[string]any{
		"query":         query,
		"summary":       convo.Summary,
		"recent_routes": recentRoutes(convo, 3),
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return contractx.Decision{}, fmt.Errorf("%w: marshal classifier payload: %v", contractx.ErrValidation, err)
	}

	out, err := m.runner.Invoke(ctx, map[string]any{
		"input": string(input),
	})
	if err != nil {
		return contractx.Decision{}, fmt.Errorf("%w: classifier invoke: %v", contractx.ErrModelInvoke, err)
	}

	route := contractx.Route(strings.TrimSpace(out.Route))
	if !route.Valid() {
		return contractx.Decision{}, fmt.Errorf("%w: unsupported route=%q", contractx.ErrSchemaViolation, out.Route)
	}

	return contractx.Decision{
		Route:  route,
		Reason: strings.TrimSpace(out.Reason),
	}, nil
}

func recentRoutes(convo contractx.Context, n int) []string {
	window := convo.Window
	if len(window) > n {
		window = window[len(window)-n:]
	}
	routes := make([]string, 0, len(window))
	for _, ex := range window {
		routes = append(routes, string(ex.Route))
	}
	return routes
}

// Package router executes the invocation plan for a classified route:
// which tools to call, in what order, with what failure policy.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	contractx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/contract"
	toolx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/tool"
	warehousex "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/warehouse"
)

const (
	defaultAnalysisBudget     = 4
	defaultSimpleFactsTimeout = 3 * time.Second
	defaultToolTimeout        = 10 * time.Second
	defaultHistoryMonths      = 6
)

type Config struct {
	// AnalysisBudget caps sequential invocations on the deep_analysis
	// chain (the per-route budget N).
	AnalysisBudget int
	// SimpleFactsTimeout is the tight latency budget for the single
	// simple_facts invocation.
	SimpleFactsTimeout time.Duration
	// ToolTimeout bounds every other tool invocation.
	ToolTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.AnalysisBudget <= 0 {
		c.AnalysisBudget = defaultAnalysisBudget
	}
	if c.SimpleFactsTimeout <= 0 {
		c.SimpleFactsTimeout = defaultSimpleFactsTimeout
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = defaultToolTimeout
	}
	return c
}

type Router struct {
	registry *toolx.Registry
	cfg      Config
	now      func() time.Time
}

func New(registry *toolx.Registry, cfg Config) (*Router, error) {
	if registry == nil {
		return nil, errors.New("tool registry is required")
	}
	return &Router{
		registry: registry,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}, nil
}

func (r *Router) Route(ctx context.Context, decision contractx.Decision, query string, convo contractx.Context) (contractx.Outcome, error) {
	switch decision.Route {
	case contractx.RouteSimpleFacts:
		return r.runSimpleFacts(ctx, query, convo)
	case contractx.RouteDeepAnalysis:
		return r.runDeepAnalysis(ctx, query, convo)
	case contractx.RouteReportGeneration:
		return r.runReport(ctx, query)
	case contractx.RouteConversation:
		return r.runConversation(ctx, query, convo)
	default:
		return contractx.Outcome{}, fmt.Errorf("%w: unsupported route=%q", contractx.ErrValidation, decision.Route)
	}
}

// runSimpleFacts makes at most one invocation under the tight budget and
// fails fast: a failed call fails the route, no retry.
func (r *Router) runSimpleFacts(ctx context.Context, query string, convo contractx.Context) (contractx.Outcome, error) {
	metric, ok := detectMetric(query, convo)
	if !ok {
		metric = "revenue_growth"
	}

	call := r.invoke(ctx, toolx.ToolKPISnapshot, map[string]any{"metric": metric}, r.cfg.SimpleFactsTimeout)
	out := contractx.Outcome{Calls: []contractx.ToolCall{call}}
	if call.Failed {
		out.Partial = true
		return out, fmt.Errorf("%w: %s: %s", contractx.ErrToolFailure, call.Tool, call.Error)
	}
	return out, nil
}

// chainStep is one planned link of a deep_analysis chain. Args receives
// the calls recorded so far, so later steps can consume earlier results;
// returning false skips the step (its dependency failed).
type chainStep struct {
	Tool string
	Args func(prior []contractx.ToolCall) (map[string]any, bool)
}

func (r *Router) runDeepAnalysis(ctx context.Context, query string, convo contractx.Context) (contractx.Outcome, error) {
	metric, ok := detectMetric(query, convo)
	if !ok {
		metric = "revenue_growth"
	}

	steps := []chainStep{
		{
			Tool: toolx.ToolKPISnapshot,
			Args: func([]contractx.ToolCall) (map[string]any, bool) {
				return map[string]any{"metric": metric}, true
			},
		},
		{
			Tool: toolx.ToolKPIHistory,
			Args: func([]contractx.ToolCall) (map[string]any, bool) {
				return map[string]any{"metric": metric, "months": defaultHistoryMonths}, true
			},
		},
		{
			// Chained: feeds on the history series retrieved above.
			Tool: toolx.ToolTrendAnalyze,
			Args: func(prior []contractx.ToolCall) (map[string]any, bool) {
				values, ok := historyValues(prior)
				if !ok {
					return nil, false
				}
				return map[string]any{"metric": metric, "values": values}, true
			},
		},
		{
			Tool: toolx.ToolBenchmarkCompare,
			Args: func([]contractx.ToolCall) (map[string]any, bool) {
				return map[string]any{"metric": metric, "segment": warehousex.SegmentIndustryAverage}, true
			},
		},
	}

	out, err := r.runChain(ctx, steps)
	if err != nil || ctx.Err() != nil {
		return out, err
	}

	// Narrative synthesis runs after retrieval, outside the retrieval
	// budget, and only when the model-backed tool is registered.
	if r.registry.Has(toolx.ToolInsightNarrative) {
		if findings, ok := encodeFindings(out.Calls); ok {
			call := r.invoke(ctx, toolx.ToolInsightNarrative,
				map[string]any{"question": query, "findings": findings}, r.cfg.ToolTimeout)
			out.Calls = append(out.Calls, call)
			if call.Failed {
				out.Partial = true
			}
		}
	}
	return out, nil
}

// encodeFindings serializes the successful retrievals for the narrative
// tool. No successful retrieval means nothing to narrate.
func encodeFindings(calls []contractx.ToolCall) (string, bool) {
	findings := make(map[string]any, len(calls))
	for _, call := range calls {
		if call.Failed || call.Result == nil {
			continue
		}
		findings[call.Tool] = call.Result
	}
	if len(findings) == 0 {
		return "", false
	}
	raw, err := json.Marshal(findings)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// runChain executes a chain sequentially under the analysis budget. The
// cycle guard fingerprints (tool, canonical args); a repeat halts the
// chain and returns what was gathered so far.
func (r *Router) runChain(ctx context.Context, steps []chainStep) (contractx.Outcome, error) {
	if len(steps) > r.cfg.AnalysisBudget {
		steps = steps[:r.cfg.AnalysisBudget]
	}

	out := contractx.Outcome{}
	seen := make(map[string]bool, len(steps))

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			// Cancelled: stop scheduling further calls.
			out.Partial = true
			return out, nil
		}

		args, runnable := step.Args(out.Calls)
		if !runnable {
			out.Partial = true
			continue
		}

		fp := fingerprint(step.Tool, args)
		if seen[fp] {
			log.Debug().Str("tool", step.Tool).Msg("cycle guard halted analysis chain")
			out.Partial = true
			return out, nil
		}
		seen[fp] = true

		call := r.invoke(ctx, step.Tool, args, r.cfg.ToolTimeout)
		out.Calls = append(out.Calls, call)
		if call.Failed {
			out.Partial = true
		}
	}
	return out, nil
}

// runReport executes the fixed section plan. Sections have no data
// dependencies, so they fan out concurrently; a failed section stays in
// the outcome as a failure marker and never aborts the others.
func (r *Router) runReport(ctx context.Context, query string) (contractx.Outcome, error) {
	period := parsePeriod(query, r.now())

	calls := make([]contractx.ToolCall, len(reportSections))
	g, gctx := errgroup.WithContext(ctx)
	for i, metric := range reportSections {
		tool := toolx.ToolKPISnapshot
		args := map[string]any{"metric": metric}
		if period.IsQuarter() {
			tool = toolx.ToolKPIQuarterly
			args = map[string]any{"metric": metric, "year": period.Year, "quarter": period.Quarter}
		}

		if err := gctx.Err(); err != nil {
			// Cancelled: stop scheduling and record the section as failed.
			calls[i] = contractx.ToolCall{Tool: tool, Args: args, Failed: true, Error: err.Error()}
			continue
		}

		g.Go(func() error {
			calls[i] = r.invoke(gctx, tool, args, r.cfg.ToolTimeout)
			return nil
		})
	}
	_ = g.Wait() // section failures are markers, not errors

	out := contractx.Outcome{Calls: calls}
	for _, call := range calls {
		if call.Failed {
			out.Partial = true
		}
	}
	return out, nil
}

// runConversation invokes at most one retrieval tool, and only when the
// query references prior data we can resolve from context.
func (r *Router) runConversation(ctx context.Context, query string, convo contractx.Context) (contractx.Outcome, error) {
	if !referencesPriorData(query) {
		return contractx.Outcome{}, nil
	}
	metric, ok := detectMetric(query, convo)
	if !ok {
		return contractx.Outcome{}, nil
	}

	tool := toolx.ToolKPISnapshot
	args := map[string]any{"metric": metric}
	if period := parsePeriod(query, r.now()); period.IsQuarter() {
		tool = toolx.ToolKPIQuarterly
		args = map[string]any{"metric": metric, "year": period.Year, "quarter": period.Quarter}
	}

	call := r.invoke(ctx, tool, args, r.cfg.ToolTimeout)
	out := contractx.Outcome{Calls: []contractx.ToolCall{call}}
	if call.Failed {
		out.Partial = true
	}
	return out, nil
}

// invoke resolves, validates, and runs a single tool call, recording the
// result or failure marker. Unknown tools and schema mismatches are
// rejected before invocation; timeouts mark the call failed without
// retrying.
func (r *Router) invoke(ctx context.Context, name string, args map[string]any, timeout time.Duration) contractx.ToolCall {
	call := contractx.ToolCall{Tool: name, Args: args}

	t, err := r.registry.Lookup(name)
	if err != nil {
		call.Failed = true
		call.Error = err.Error()
		return call
	}
	if err := t.ValidateArgs(args); err != nil {
		call.Failed = true
		call.Error = err.Error()
		return call
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := t.Invoker.Invoke(cctx, args)
	if err != nil {
		call.Failed = true
		call.Error = err.Error()
		log.Warn().Str("tool", name).Err(err).Msg("tool invocation failed")
		return call
	}
	call.Result = result
	return call
}

// fingerprint canonicalizes a call for the cycle guard: tool name plus
// args serialized with sorted keys.
func fingerprint(tool string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte(tool)
	for _, k := range keys {
		v, err := json.Marshal(args[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%v", args[k]))
		}
		buf = append(buf, '|')
		buf = append(buf, k...)
		buf = append(buf, '=')
		buf = append(buf, v...)
	}
	return string(buf)
}

// historyValues extracts the series values from the most recent
// successful kpi.history call.
func historyValues(calls []contractx.ToolCall) ([]float64, bool) {
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Tool != toolx.ToolKPIHistory || calls[i].Failed {
			continue
		}
		points, ok := calls[i].Result.([]warehousex.Point)
		if !ok {
			return nil, false
		}
		values := make([]float64, 0, len(points))
		for _, p := range points {
			values = append(values, p.Value)
		}
		return values, len(values) > 0
	}
	return nil, false
}

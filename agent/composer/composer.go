// Package composer turns route outcomes into user-facing answers and the
// exchange recorded in memory. It never exposes internal error strings:
// a failed retrieval reads as "unavailable", not as the error.
package composer

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	contractx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/contract"
	toolx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/tool"
	warehousex "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/warehouse"
)

const unavailableLine = "I couldn't retrieve the data needed to answer that right now. Please try again shortly."

type Composer struct{}

func New() *Composer {
	return &Composer{}
}

func (c *Composer) Compose(query string, decision contractx.Decision, out contractx.Outcome, convo contractx.Context, now time.Time) (contractx.Exchange, error) {
	var answer string
	switch decision.Route {
	case contractx.RouteSimpleFacts:
		answer = composeSimpleFacts(out)
	case contractx.RouteDeepAnalysis:
		answer = composeDeepAnalysis(out)
	case contractx.RouteReportGeneration:
		answer = composeReport(out)
	case contractx.RouteConversation:
		answer = composeConversation(out, convo)
	default:
		return contractx.Exchange{}, fmt.Errorf("%w: unsupported route=%q", contractx.ErrValidation, decision.Route)
	}

	if strings.TrimSpace(answer) == "" {
		answer = unavailableLine
	}

	return contractx.Exchange{
		ID:        uuid.NewString(),
		Query:     query,
		Route:     decision.Route,
		ToolCalls: out.Calls,
		Answer:    answer,
		Degraded:  decision.Degraded,
		Timestamp: now.UTC(),
	}, nil
}

// ComposeFailure produces the marker exchange for a failed route so
// memory still reflects that the query happened, without fabricated
// content.
func (c *Composer) ComposeFailure(query string, decision contractx.Decision, out contractx.Outcome, now time.Time) contractx.Exchange {
	return contractx.Exchange{
		ID:        uuid.NewString(),
		Query:     query,
		Route:     decision.Route,
		ToolCalls: out.Calls,
		Answer:    unavailableLine,
		Degraded:  true,
		Timestamp: now.UTC(),
	}
}

func composeSimpleFacts(out contractx.Outcome) string {
	snap, ok := findSnapshot(out.Calls)
	if !ok {
		return unavailableLine
	}

	line := fmt.Sprintf("The current %s is %s (as of %s)",
		warehousex.Label(snap.Metric), formatValue(snap.Value, snap.Unit), snap.Month)
	if snap.Target > 0 {
		line += fmt.Sprintf(", against a target of %s", formatValue(snap.Target, snap.Unit))
	}
	return line + "."
}

func composeDeepAnalysis(out contractx.Outcome) string {
	var parts []string

	if snap, ok := findSnapshot(out.Calls); ok {
		parts = append(parts, fmt.Sprintf("%s currently stands at %s (%s)",
			capitalize(warehousex.Label(snap.Metric)), formatValue(snap.Value, snap.Unit), snap.Month))
	}
	if trend, ok := findTrend(out.Calls); ok {
		switch trend.Direction {
		case toolx.TrendStable:
			parts = append(parts, fmt.Sprintf("the recent trend is flat (%.1f%% over %d months)",
				trend.ChangePct, trend.Points))
		default:
			parts = append(parts, fmt.Sprintf("the recent trend is %s %s (%.1f%% over %d months)",
				trend.Strength, string(trend.Direction), trend.ChangePct, trend.Points))
		}
	}
	if bench, ok := findBenchmark(out.Calls); ok {
		parts = append(parts, fmt.Sprintf("the %s sits at %s",
			strings.ReplaceAll(bench.Segment, "_", " "), formatValue(bench.Value, bench.Unit)))
	}
	if narrative, ok := findNarrative(out.Calls); ok {
		parts = append(parts, narrative)
	}

	if len(parts) == 0 {
		return unavailableLine
	}

	answer := strings.Join(parts, "; ") + "."
	if out.Partial {
		answer += " Some supporting data was unavailable, so this view is partial."
	}
	return answer
}

// composeReport references every successfully retrieved section and
// marks failed ones unavailable; the report never aborts.
func composeReport(out contractx.Outcome) string {
	var b strings.Builder
	b.WriteString("KPI report:")
	for _, call := range out.Calls {
		metric, _ := call.Args["metric"].(string)
		label := capitalize(warehousex.Label(metric))

		if call.Failed {
			fmt.Fprintf(&b, "\n- %s: unavailable", label)
			continue
		}
		switch result := call.Result.(type) {
		case warehousex.Snapshot:
			fmt.Fprintf(&b, "\n- %s: %s (%s)", label, formatValue(result.Value, result.Unit), result.Month)
		case warehousex.QuarterSummary:
			fmt.Fprintf(&b, "\n- %s: %s average for Q%d %d", label,
				formatValue(result.Average, result.Unit), result.Quarter, result.Year)
		default:
			fmt.Fprintf(&b, "\n- %s: unavailable", label)
		}
	}
	return b.String()
}

func composeConversation(out contractx.Outcome, convo contractx.Context) string {
	for _, call := range out.Calls {
		if call.Failed {
			continue
		}
		switch result := call.Result.(type) {
		case warehousex.QuarterSummary:
			return fmt.Sprintf("For Q%d %d, %s averaged %s per month (%s in total).",
				result.Quarter, result.Year, warehousex.Label(result.Metric),
				formatValue(result.Average, result.Unit), formatValue(result.Total, result.Unit))
		case warehousex.Snapshot:
			return fmt.Sprintf("Picking up from before: %s is at %s as of %s.",
				warehousex.Label(result.Metric), formatValue(result.Value, result.Unit), result.Month)
		}
	}

	if len(out.Calls) > 0 {
		// The one retrieval we tried failed.
		return unavailableLine
	}

	if len(convo.Window) > 0 {
		last := convo.Window[len(convo.Window)-1]
		return fmt.Sprintf("We were just looking at %q. I can pull current values, trends, benchmarks, or a full KPI report. Which would help?",
			firstLine(last.Query))
	}
	return "I can answer questions about call-center KPIs: revenue, customer satisfaction, call volume, cost per call, resolution rates and more. What would you like to know?"
}

/* ------------------------------ result lookup ----------------------------- */

func findSnapshot(calls []contractx.ToolCall) (warehousex.Snapshot, bool) {
	for _, call := range calls {
		if call.Failed {
			continue
		}
		if snap, ok := call.Result.(warehousex.Snapshot); ok {
			return snap, true
		}
	}
	return warehousex.Snapshot{}, false
}

func findTrend(calls []contractx.ToolCall) (toolx.TrendReport, bool) {
	for _, call := range calls {
		if call.Failed {
			continue
		}
		if trend, ok := call.Result.(toolx.TrendReport); ok {
			return trend, true
		}
	}
	return toolx.TrendReport{}, false
}

func findBenchmark(calls []contractx.ToolCall) (warehousex.Benchmark, bool) {
	for _, call := range calls {
		if call.Failed {
			continue
		}
		if bench, ok := call.Result.(warehousex.Benchmark); ok {
			return bench, true
		}
	}
	return warehousex.Benchmark{}, false
}

func findNarrative(calls []contractx.ToolCall) (string, bool) {
	for _, call := range calls {
		if call.Failed || call.Tool != toolx.ToolInsightNarrative {
			continue
		}
		if s, ok := call.Result.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}

/* -------------------------------- formatting ------------------------------ */

func formatValue(value float64, unit string) string {
	switch unit {
	case "RM":
		return "RM " + formatThousands(value)
	case "%":
		return fmt.Sprintf("%.1f%%", value)
	case "score":
		return fmt.Sprintf("%.1f/5", value)
	case "s":
		return fmt.Sprintf("%.0fs", value)
	case "calls":
		return formatThousands(value) + " calls"
	default:
		return fmt.Sprintf("%.2f", value)
	}
}

func formatThousands(v float64) string {
	cents := int64(math.Round(v * 100))
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole, frac := cents/100, cents%100

	s := fmt.Sprintf("%d", whole)
	var out []byte
	if neg {
		out = append(out, '-')
	}
	for i, ch := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, ch)
	}
	if frac != 0 {
		return fmt.Sprintf("%s.%02d", string(out), frac)
	}
	return string(out)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

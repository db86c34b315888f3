package composer

import (
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/contract"
	toolx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/tool"
	warehousex "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/warehouse"
)

var composeClock = time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)

func snapshotCall(metric string, value float64) contractx.ToolCall {
	return contractx.ToolCall{
		Tool: toolx.ToolKPISnapshot,
		Args: map[string]any{"metric": metric},
		Result: warehousex.Snapshot{
			Metric: metric,
			Month:  "2025-08",
			Value:  value,
			Unit:   warehousex.Unit(metric),
			Target: 1500000,
		},
	}
}

func TestComposeSimpleFacts(t *testing.T) {
	t.Parallel()

	c := New()
	out := contractx.Outcome{Calls: []contractx.ToolCall{snapshotCall("revenue_growth", 1540000)}}

	ex, err := c.Compose("What's our revenue?",
		contractx.Decision{Route: contractx.RouteSimpleFacts}, out, contractx.Context{}, composeClock)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	if !strings.Contains(ex.Answer, "RM 1,540,000") {
		t.Fatalf("answer missing formatted value: %q", ex.Answer)
	}
	if !strings.Contains(ex.Answer, "2025-08") {
		t.Fatalf("answer missing month: %q", ex.Answer)
	}
	if !strings.Contains(ex.Answer, "target of RM 1,500,000") {
		t.Fatalf("answer missing target: %q", ex.Answer)
	}
	if ex.ID == "" {
		t.Fatal("exchange needs an ID")
	}
	if ex.Route != contractx.RouteSimpleFacts {
		t.Fatalf("route = %s, want simple_facts", ex.Route)
	}
	if len(ex.ToolCalls) != 1 {
		t.Fatalf("exchange must carry the tool calls, got %d", len(ex.ToolCalls))
	}
	if !ex.Timestamp.Equal(composeClock) {
		t.Fatalf("timestamp = %v, want %v", ex.Timestamp, composeClock)
	}
}

func TestComposeSimpleFactsWithoutDataIsUnavailable(t *testing.T) {
	t.Parallel()

	c := New()
	out := contractx.Outcome{Calls: []contractx.ToolCall{
		{Tool: toolx.ToolKPISnapshot, Failed: true, Error: "db down"},
	}}

	ex, err := c.Compose("What's our revenue?",
		contractx.Decision{Route: contractx.RouteSimpleFacts}, out, contractx.Context{}, composeClock)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if ex.Answer != unavailableLine {
		t.Fatalf("answer = %q, want unavailable line", ex.Answer)
	}
	if strings.Contains(ex.Answer, "db down") {
		t.Fatal("internal error text must not leak into the answer")
	}
}

func TestComposeDeepAnalysisJoinsFindings(t *testing.T) {
	t.Parallel()

	c := New()
	out := contractx.Outcome{Calls: []contractx.ToolCall{
		snapshotCall("revenue_growth", 1540000),
		{
			Tool: toolx.ToolTrendAnalyze,
			Result: toolx.TrendReport{
				Metric: "revenue_growth", Direction: toolx.TrendUp,
				Strength: "strong", ChangePct: 12.4, Points: 6,
			},
		},
		{
			Tool: toolx.ToolBenchmarkCompare,
			Result: warehousex.Benchmark{
				Metric: "revenue_growth", Segment: warehousex.SegmentIndustryAverage,
				Value: 1200000, Unit: "RM",
			},
		},
	}}

	ex, err := c.Compose("why is revenue up?",
		contractx.Decision{Route: contractx.RouteDeepAnalysis}, out, contractx.Context{}, composeClock)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	for _, want := range []string{"RM 1,540,000", "strong up", "12.4%", "industry average", "RM 1,200,000"} {
		if !strings.Contains(ex.Answer, want) {
			t.Fatalf("answer missing %q: %q", want, ex.Answer)
		}
	}
	if strings.Contains(ex.Answer, "partial") {
		t.Fatalf("complete analysis must not carry the partial note: %q", ex.Answer)
	}
}

func TestComposeDeepAnalysisMarksPartial(t *testing.T) {
	t.Parallel()

	c := New()
	out := contractx.Outcome{
		Partial: true,
		Calls:   []contractx.ToolCall{snapshotCall("revenue_growth", 1540000)},
	}

	ex, err := c.Compose("why is revenue up?",
		contractx.Decision{Route: contractx.RouteDeepAnalysis}, out, contractx.Context{}, composeClock)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !strings.Contains(ex.Answer, "partial") {
		t.Fatalf("partial analysis must say so: %q", ex.Answer)
	}
}

func TestComposeReportReferencesEverySection(t *testing.T) {
	t.Parallel()

	c := New()
	out := contractx.Outcome{
		Partial: true,
		Calls: []contractx.ToolCall{
			snapshotCall("revenue_growth", 1540000),
			snapshotCall("customer_satisfaction", 4.2),
			snapshotCall("call_volume", 8500),
			{
				Tool:   toolx.ToolKPISnapshot,
				Args:   map[string]any{"metric": "cost_per_call"},
				Failed: true,
				Error:  "timeout",
			},
			snapshotCall("first_call_resolution", 78.5),
		},
	}

	ex, err := c.Compose("kpi report",
		contractx.Decision{Route: contractx.RouteReportGeneration}, out, contractx.Context{}, composeClock)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	for _, want := range []string{
		"Revenue:", "Customer satisfaction:", "Call volume:",
		"Cost per call: unavailable", "First-call resolution:",
	} {
		if !strings.Contains(ex.Answer, want) {
			t.Fatalf("report missing %q: %q", want, ex.Answer)
		}
	}
	if strings.Contains(ex.Answer, "timeout") {
		t.Fatal("internal error text must not leak into the report")
	}
}

func TestComposeReportQuarterlySections(t *testing.T) {
	t.Parallel()

	c := New()
	out := contractx.Outcome{Calls: []contractx.ToolCall{
		{
			Tool: toolx.ToolKPIQuarterly,
			Args: map[string]any{"metric": "revenue_growth", "year": 2025, "quarter": 2},
			Result: warehousex.QuarterSummary{
				Metric: "revenue_growth", Year: 2025, Quarter: 2,
				Average: 1480000, Total: 4440000, Unit: "RM",
			},
		},
	}}

	ex, err := c.Compose("q2 report",
		contractx.Decision{Route: contractx.RouteReportGeneration}, out, contractx.Context{}, composeClock)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !strings.Contains(ex.Answer, "average for Q2 2025") {
		t.Fatalf("quarterly section missing period: %q", ex.Answer)
	}
}

func TestComposeConversationQuarterFollowUp(t *testing.T) {
	t.Parallel()

	c := New()
	out := contractx.Outcome{Calls: []contractx.ToolCall{
		{
			Tool: toolx.ToolKPIQuarterly,
			Args: map[string]any{"metric": "revenue_growth", "year": 2025, "quarter": 2},
			Result: warehousex.QuarterSummary{
				Metric: "revenue_growth", Year: 2025, Quarter: 2,
				Average: 1480000, Total: 4440000, Unit: "RM",
			},
		},
	}}

	ex, err := c.Compose("what about last quarter?",
		contractx.Decision{Route: contractx.RouteConversation}, out, contractx.Context{}, composeClock)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	for _, want := range []string{"Q2 2025", "RM 1,480,000", "RM 4,440,000"} {
		if !strings.Contains(ex.Answer, want) {
			t.Fatalf("answer missing %q: %q", want, ex.Answer)
		}
	}
}

func TestComposeConversationWithoutCallsReferencesHistory(t *testing.T) {
	t.Parallel()

	c := New()
	convo := contractx.Context{Window: []contractx.Exchange{
		{ID: "prior", Query: "What's our revenue?", Route: contractx.RouteSimpleFacts},
	}}

	ex, err := c.Compose("hmm",
		contractx.Decision{Route: contractx.RouteConversation}, contractx.Outcome{}, convo, composeClock)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !strings.Contains(ex.Answer, "What's our revenue?") {
		t.Fatalf("answer should reference the prior query: %q", ex.Answer)
	}
}

func TestComposeConversationEmptySessionListsCapabilities(t *testing.T) {
	t.Parallel()

	c := New()
	ex, err := c.Compose("hi",
		contractx.Decision{Route: contractx.RouteConversation}, contractx.Outcome{}, contractx.Context{}, composeClock)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !strings.Contains(ex.Answer, "KPIs") {
		t.Fatalf("answer should describe capabilities: %q", ex.Answer)
	}
}

func TestComposeFailureProducesMarkerExchange(t *testing.T) {
	t.Parallel()

	c := New()
	out := contractx.Outcome{Calls: []contractx.ToolCall{
		{Tool: toolx.ToolKPISnapshot, Failed: true, Error: "db down"},
	}}

	ex := c.ComposeFailure("What's our revenue?",
		contractx.Decision{Route: contractx.RouteSimpleFacts}, out, composeClock)

	if !ex.Degraded {
		t.Fatal("failure marker must be degraded")
	}
	if ex.Answer != unavailableLine {
		t.Fatalf("answer = %q, want unavailable line", ex.Answer)
	}
	if ex.ID == "" || ex.Query != "What's our revenue?" {
		t.Fatalf("marker exchange incomplete: %#v", ex)
	}
	if len(ex.ToolCalls) != 1 {
		t.Fatalf("marker must carry attempted calls, got %d", len(ex.ToolCalls))
	}
}

func TestFormatValueByUnit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		value float64
		unit  string
		want  string
	}{
		{1540000, "RM", "RM 1,540,000"},
		{12.5, "RM", "RM 12.50"},
		{78.5, "%", "78.5%"},
		{4.2, "score", "4.2/5"},
		{285, "s", "285s"},
		{8500, "calls", "8,500 calls"},
	}
	for _, tc := range cases {
		if got := formatValue(tc.value, tc.unit); got != tc.want {
			t.Fatalf("formatValue(%v, %s) = %q, want %q", tc.value, tc.unit, got, tc.want)
		}
	}
}

func TestComposeDeepAnalysisIncludesNarrative(t *testing.T) {
	t.Parallel()

	c := New()
	out := contractx.Outcome{Calls: []contractx.ToolCall{
		snapshotCall("revenue_growth", 1540000),
		{
			Tool:   toolx.ToolInsightNarrative,
			Result: "Revenue growth is outpacing the industry and the trend looks durable.",
		},
	}}

	ex, err := c.Compose("why is revenue up?",
		contractx.Decision{Route: contractx.RouteDeepAnalysis}, out, contractx.Context{}, composeClock)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !strings.Contains(ex.Answer, "outpacing the industry") {
		t.Fatalf("answer missing narrative: %q", ex.Answer)
	}
}

func TestFormatThousandsRoundsHundredths(t *testing.T) {
	t.Parallel()

	cases := []struct {
		value float64
		want  string
	}{
		{12.999, "13"},
		{12.5, "12.50"},
		{12.986, "12.99"},
		{1400000, "1,400,000"},
		{1399999.996, "1,400,000"},
	}
	for _, tc := range cases {
		if got := formatThousands(tc.value); got != tc.want {
			t.Fatalf("formatThousands(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

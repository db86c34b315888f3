// Package classifier selects a processing route for an incoming query.
// The rule classifier is the deterministic default; an optional
// model-assisted classifier can sit in front of it.
package classifier

import (
	"context"
	"strings"

	contractx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/contract"
	warehousex "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/warehouse"
)

// Keyword tables drive a first-match-wins rule order: the most specific
// intent is checked first, so comparative language beats report language
// beats the conversational fallback.
var (
	directTerms = []string{
		"what is", "what's", "whats", "current", "how many", "how much",
		"today", "right now", "latest",
	}
	analysisTerms = []string{
		"why", "compared to", "compare", "versus", " vs ", "trend",
		"driver", "cause", "caused", "benchmark", "against the industry",
		"better or worse", "improve", "declin",
	}
	reportTerms = []string{
		"report", "summary", "summarize", "breakdown", "overview",
		"recap", "all kpis", "all metrics", "dashboard",
	}
)

type Rules struct{}

func NewRules() *Rules {
	return &Rules{}
}

// Classify never fails: the rule table always yields a route.
func (r *Rules) Classify(ctx context.Context, query string, convo contractx.Context) (contractx.Decision, error) {
	q := strings.ToLower(strings.TrimSpace(query))

	hasMetric := false
	if _, ok := warehousex.DetectMetric(q); ok {
		hasMetric = true
	}
	analytical := containsAny(q, analysisTerms)
	reporting := containsAny(q, reportTerms)

	switch {
	case hasMetric && containsAny(q, directTerms) && !analytical && !reporting:
		return contractx.Decision{
			Route:  contractx.RouteSimpleFacts,
			Reason: "direct metric question",
		}, nil
	case analytical:
		return contractx.Decision{
			Route:  contractx.RouteDeepAnalysis,
			Reason: "comparative or causal language",
		}, nil
	case reporting:
		return contractx.Decision{
			Route:  contractx.RouteReportGeneration,
			Reason: "multi-metric structured output requested",
		}, nil
	default:
		return contractx.Decision{
			Route:  contractx.RouteConversation,
			Reason: "follow-up or open-ended question",
		}, nil
	}
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

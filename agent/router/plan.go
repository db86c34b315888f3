package router

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/contract"
	warehousex "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/warehouse"
)

// reportSections is the fixed ordered section list for report_generation.
var reportSections = []string{
	"revenue_growth",
	"customer_satisfaction",
	"call_volume",
	"cost_per_call",
	"first_call_resolution",
}

var quarterPattern = regexp.MustCompile(`\bq([1-4])\b(?:\s*(\d{4}))?`)

var referentialTerms = []string{
	"last quarter", "previous quarter", "what about", "how about",
	"and before", "that", " it ", "same period", "back then",
}

// Period is a resolved reporting period. Quarter == 0 means "current".
type Period struct {
	Year    int
	Quarter int
}

func (p Period) IsQuarter() bool {
	return p.Quarter >= 1 && p.Quarter <= 4
}

// parsePeriod resolves period language in the query against the clock.
// "last quarter" means the most recently completed quarter, the same
// resolution the dashboard uses.
func parsePeriod(query string, now time.Time) Period {
	q := strings.ToLower(query)

	if m := quarterPattern.FindStringSubmatch(q); m != nil {
		quarter, _ := strconv.Atoi(m[1])
		year := now.Year()
		if m[2] != "" {
			year, _ = strconv.Atoi(m[2])
		}
		return Period{Year: year, Quarter: quarter}
	}

	if strings.Contains(q, "last quarter") || strings.Contains(q, "previous quarter") {
		return lastCompletedQuarter(now)
	}

	return Period{}
}

func lastCompletedQuarter(now time.Time) Period {
	year := now.Year()
	quarter := (int(now.Month())-1)/3 + 1
	quarter--
	if quarter == 0 {
		quarter = 4
		year--
	}
	return Period{Year: year, Quarter: quarter}
}

// detectMetric finds the metric the query talks about, falling back to
// the conversation context when the query only refers to prior data.
func detectMetric(query string, convo contractx.Context) (string, bool) {
	if metric, ok := warehousex.DetectMetric(query); ok {
		return metric, true
	}
	return metricFromContext(convo)
}

// metricFromContext scans the window newest-first for the most recently
// discussed metric.
func metricFromContext(convo contractx.Context) (string, bool) {
	for i := len(convo.Window) - 1; i >= 0; i-- {
		for _, call := range convo.Window[i].ToolCalls {
			if metric, ok := call.Args["metric"].(string); ok && warehousex.IsMetric(metric) {
				return metric, true
			}
		}
	}
	return "", false
}

// referencesPriorData reports whether the query leans on earlier
// exchanges rather than naming its subject outright.
func referencesPriorData(query string) bool {
	q := " " + strings.ToLower(strings.TrimSpace(query)) + " "
	for _, term := range referentialTerms {
		if strings.Contains(q, term) {
			return true
		}
	}
	return false
}

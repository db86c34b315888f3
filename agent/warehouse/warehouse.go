// Package warehouse exposes the call-center KPI dataset the retrieval
// tools read: monthly metric values, quarterly aggregates, and industry
// benchmarks. The schema and ETL that populate it are owned elsewhere.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMetricNotFound  = errors.New("metric not found")
	ErrSegmentNotFound = errors.New("benchmark segment not found")
	ErrNoData          = errors.New("no data for requested period")
)

// Snapshot is the latest monthly reading of one metric.
type Snapshot struct {
	Metric         string  `json:"metric"`
	Month          string  `json:"month"` // YYYY-MM
	Value          float64 `json:"value"`
	Unit           string  `json:"unit"`
	Target         float64 `json:"target,omitempty"`
	SeasonalFactor string  `json:"seasonal_factor,omitempty"`
}

// Point is one month of a metric series.
type Point struct {
	Month          string  `json:"month"`
	Value          float64 `json:"value"`
	SeasonalFactor string  `json:"seasonal_factor,omitempty"`
}

// QuarterSummary aggregates one metric over a calendar quarter.
type QuarterSummary struct {
	Metric  string  `json:"metric"`
	Year    int     `json:"year"`
	Quarter int     `json:"quarter"`
	Average float64 `json:"average"`
	Total   float64 `json:"total"`
	Unit    string  `json:"unit"`
	Months  []Point `json:"months,omitempty"`
}

// Benchmark is a metric value for a comparison segment, e.g. the
// industry average or the top performer.
type Benchmark struct {
	Metric  string  `json:"metric"`
	Segment string  `json:"segment"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
}

// Warehouse is the read-only query surface the tools are built on.
type Warehouse interface {
	Snapshot(ctx context.Context, metric string) (Snapshot, error)
	History(ctx context.Context, metric string, months int) ([]Point, error)
	Quarterly(ctx context.Context, metric string, year, quarter int) (QuarterSummary, error)
	Benchmark(ctx context.Context, metric, segment string) (Benchmark, error)
}

const (
	SegmentIndustryAverage = "industry_average"
	SegmentTopPerformer    = "top_performer"
)

// metricUnits doubles as the canonical metric list.
var metricUnits = map[string]string{
	"revenue_growth":        "RM",
	"customer_satisfaction": "score",
	"call_volume":           "calls",
	"cost_per_call":         "RM",
	"first_call_resolution": "%",
	"customer_retention":    "%",
	"average_handle_time":   "s",
	"average_wait_time":     "s",
	"call_abandonment":      "%",
	"profit_margin":         "%",
}

var metricLabels = map[string]string{
	"revenue_growth":        "revenue",
	"customer_satisfaction": "customer satisfaction",
	"call_volume":           "call volume",
	"cost_per_call":         "cost per call",
	"first_call_resolution": "first-call resolution",
	"customer_retention":    "customer retention",
	"average_handle_time":   "average handle time",
	"average_wait_time":     "average wait time",
	"call_abandonment":      "call abandonment",
	"profit_margin":         "profit margin",
}

// metricAliases maps query vocabulary to canonical metric names.
var metricAliases = []struct {
	terms  []string
	metric string
}{
	{[]string{"revenue", "sales", "income", "money"}, "revenue_growth"},
	{[]string{"satisfaction", "happy", "rating", "csat"}, "customer_satisfaction"},
	{[]string{"call volume", "volume", "traffic", "busy", "calls per"}, "call_volume"},
	{[]string{"cost per call", "cost", "expense", "budget", "spend"}, "cost_per_call"},
	{[]string{"first call resolution", "first-call resolution", "fcr", "resolution"}, "first_call_resolution"},
	{[]string{"retention", "churn"}, "customer_retention"},
	{[]string{"handle time", "aht"}, "average_handle_time"},
	{[]string{"wait time", "waiting", "queue"}, "average_wait_time"},
	{[]string{"abandonment", "abandon", "dropped"}, "call_abandonment"},
	{[]string{"profit", "margin"}, "profit_margin"},
}

func IsMetric(name string) bool {
	_, ok := metricUnits[name]
	return ok
}

func Unit(metric string) string {
	return metricUnits[metric]
}

func Label(metric string) string {
	if l, ok := metricLabels[metric]; ok {
		return l
	}
	return strings.ReplaceAll(metric, "_", " ")
}

// Metrics returns all canonical metric names in a stable order.
func Metrics() []string {
	return []string{
		"revenue_growth",
		"customer_satisfaction",
		"call_volume",
		"cost_per_call",
		"first_call_resolution",
		"customer_retention",
		"average_handle_time",
		"average_wait_time",
		"call_abandonment",
		"profit_margin",
	}
}

// DetectMetric scans a query for metric vocabulary and returns the
// canonical name of the first match. Alias order is fixed, so detection
// is deterministic.
func DetectMetric(query string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if exact := strings.ReplaceAll(q, " ", "_"); IsMetric(exact) {
		return exact, true
	}
	for _, alias := range metricAliases {
		for _, term := range alias.terms {
			if strings.Contains(q, term) {
				return alias.metric, true
			}
		}
	}
	return "", false
}

// QuarterMonths lists the YYYY-MM identifiers of a calendar quarter.
func QuarterMonths(year, quarter int) ([]string, error) {
	if quarter < 1 || quarter > 4 {
		return nil, fmt.Errorf("%w: quarter=%d", ErrNoData, quarter)
	}
	first := (quarter-1)*3 + 1
	months := make([]string, 0, 3)
	for m := first; m < first+3; m++ {
		months = append(months, fmt.Sprintf("%04d-%02d", year, m))
	}
	return months, nil
}

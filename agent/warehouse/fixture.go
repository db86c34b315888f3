package warehouse

import (
	"context"
	"fmt"
	"time"
)

// seasonal impact percentages by calendar month, split by the metric
// family each one moves. Mirrors the demo dataset the dashboards run on.
var seasonalPatterns = map[int]struct {
	Revenue      float64
	Satisfaction float64
	Volume       float64
	Pattern      string
}{
	1:  {-5, 0, -10, "post_holiday_dip"},
	2:  {20, 5, 15, "chinese_new_year_surge"},
	3:  {-8, -2, -5, "post_cny_normalization"},
	4:  {15, 3, 10, "ramadan_preparation_boost"},
	5:  {-12, -3, -8, "ramadan_business_slowdown"},
	6:  {25, 8, 20, "raya_celebration_surge"},
	7:  {12, 4, 8, "mid_year_corporate_budgets"},
	8:  {10, 2, 5, "merdeka_patriotic_spending"},
	9:  {8, 1, 3, "malaysia_day_boost"},
	10: {-6, -1, -4, "monsoon_season_dip"},
	11: {18, 6, 12, "deepavali_festival_boost"},
	12: {-3, 1, -2, "year_end_mixed_activity"},
}

var baseKPIs = map[string]float64{
	"revenue_growth":        1400000,
	"customer_satisfaction": 4.2,
	"call_volume":           8500,
	"cost_per_call":         12.50,
	"first_call_resolution": 78.5,
	"customer_retention":    89.2,
	"average_handle_time":   285,
	"average_wait_time":     45,
	"call_abandonment":      6.8,
	"profit_margin":         23.5,
}

var kpiTargets = map[string]float64{
	"revenue_growth":        1500000,
	"customer_satisfaction": 4.5,
	"call_volume":           9000,
	"cost_per_call":         11.00,
	"first_call_resolution": 82.0,
	"customer_retention":    92.0,
	"average_handle_time":   270,
	"average_wait_time":     40,
	"call_abandonment":      5.0,
	"profit_margin":         25.0,
}

var fixtureBenchmarks = map[string]map[string]float64{
	SegmentIndustryAverage: {
		"revenue_growth":        1200000,
		"customer_satisfaction": 3.8,
		"call_volume":           7200,
		"cost_per_call":         14.20,
		"first_call_resolution": 72.0,
		"customer_retention":    84.5,
		"average_handle_time":   320,
		"average_wait_time":     55,
		"call_abandonment":      8.5,
		"profit_margin":         19.8,
	},
	SegmentTopPerformer: {
		"revenue_growth":        1800000,
		"customer_satisfaction": 4.6,
		"call_volume":           11000,
		"cost_per_call":         9.80,
		"first_call_resolution": 86.0,
		"customer_retention":    94.0,
		"average_handle_time":   240,
		"average_wait_time":     28,
		"call_abandonment":      3.9,
		"profit_margin":         27.5,
	},
}

const fixtureMonths = 24

// Fixture is a deterministic in-memory warehouse generated from the base
// KPI values and the seasonal pattern table. Used for local runs and
// tests when no Postgres DSN is configured.
type Fixture struct {
	series map[string][]Point // oldest-first, per metric
	latest string             // YYYY-MM of the newest point
}

func NewFixture(now time.Time) *Fixture {
	f := &Fixture{series: make(map[string][]Point, len(baseKPIs))}

	anchor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for metric, base := range baseKPIs {
		points := make([]Point, 0, fixtureMonths)
		for i := fixtureMonths - 1; i >= 0; i-- {
			month := anchor.AddDate(0, -i, 0)
			season := seasonalPatterns[int(month.Month())]

			impact := 0.0
			switch metric {
			case "revenue_growth", "profit_margin", "cost_per_call":
				impact = season.Revenue
			case "customer_satisfaction", "first_call_resolution", "customer_retention":
				impact = season.Satisfaction
			default:
				impact = season.Volume
			}

			// Mild year-over-year growth so the series trends rather
			// than oscillating flat.
			growth := 1.0 + 0.04*float64(fixtureMonths-1-i)/float64(fixtureMonths)
			points = append(points, Point{
				Month:          month.Format("2006-01"),
				Value:          round2(base * growth * (1 + impact/100)),
				SeasonalFactor: season.Pattern,
			})
		}
		f.series[metric] = points
	}
	f.latest = anchor.Format("2006-01")
	return f
}

func (f *Fixture) Snapshot(ctx context.Context, metric string) (Snapshot, error) {
	points, ok := f.series[metric]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrMetricNotFound, metric)
	}
	last := points[len(points)-1]
	return Snapshot{
		Metric:         metric,
		Month:          last.Month,
		Value:          last.Value,
		Unit:           Unit(metric),
		Target:         kpiTargets[metric],
		SeasonalFactor: last.SeasonalFactor,
	}, nil
}

func (f *Fixture) History(ctx context.Context, metric string, months int) ([]Point, error) {
	points, ok := f.series[metric]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMetricNotFound, metric)
	}
	if months <= 0 {
		months = 6
	}
	if months > len(points) {
		months = len(points)
	}
	out := make([]Point, months)
	copy(out, points[len(points)-months:])
	return out, nil
}

func (f *Fixture) Quarterly(ctx context.Context, metric string, year, quarter int) (QuarterSummary, error) {
	points, ok := f.series[metric]
	if !ok {
		return QuarterSummary{}, fmt.Errorf("%w: %s", ErrMetricNotFound, metric)
	}
	months, err := QuarterMonths(year, quarter)
	if err != nil {
		return QuarterSummary{}, err
	}

	wanted := make(map[string]bool, len(months))
	for _, m := range months {
		wanted[m] = true
	}

	summary := QuarterSummary{Metric: metric, Year: year, Quarter: quarter, Unit: Unit(metric)}
	for _, p := range points {
		if wanted[p.Month] {
			summary.Total += p.Value
			summary.Months = append(summary.Months, p)
		}
	}
	if len(summary.Months) == 0 {
		return QuarterSummary{}, fmt.Errorf("%w: metric=%s %d-Q%d", ErrNoData, metric, year, quarter)
	}
	summary.Average = round2(summary.Total / float64(len(summary.Months)))
	return summary, nil
}

func (f *Fixture) Benchmark(ctx context.Context, metric, segment string) (Benchmark, error) {
	if segment == "" {
		segment = SegmentIndustryAverage
	}
	values, ok := fixtureBenchmarks[segment]
	if !ok {
		return Benchmark{}, fmt.Errorf("%w: %s", ErrSegmentNotFound, segment)
	}
	value, ok := values[metric]
	if !ok {
		return Benchmark{}, fmt.Errorf("%w: %s", ErrMetricNotFound, metric)
	}
	return Benchmark{Metric: metric, Segment: segment, Value: value, Unit: Unit(metric)}, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

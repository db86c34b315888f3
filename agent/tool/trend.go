package tool

import "fmt"

type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// TrendReport summarizes how a series moved: direction from comparing
// the first and second half means, strength from the relative change.
type TrendReport struct {
	Metric     string         `json:"metric"`
	Direction  TrendDirection `json:"direction"`
	Strength   string         `json:"strength"` // strong, moderate, weak
	ChangePct  float64        `json:"change_pct"`
	FirstHalf  float64        `json:"first_half_avg"`
	SecondHalf float64        `json:"second_half_avg"`
	Points     int            `json:"points"`
}

func analyzeTrend(metric string, values []float64) (TrendReport, error) {
	if len(values) < 2 {
		return TrendReport{}, fmt.Errorf("need at least 2 values, got %d", len(values))
	}

	mid := len(values) / 2
	first := mean(values[:mid])
	second := mean(values[mid:])

	report := TrendReport{
		Metric:     metric,
		FirstHalf:  first,
		SecondHalf: second,
		Points:     len(values),
	}

	if first == 0 {
		report.Direction = TrendStable
		report.Strength = "weak"
		return report, nil
	}

	change := (second - first) / first * 100
	report.ChangePct = change

	switch {
	case change > 2:
		report.Direction = TrendUp
	case change < -2:
		report.Direction = TrendDown
	default:
		report.Direction = TrendStable
	}

	abs := change
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 10:
		report.Strength = "strong"
	case abs >= 5:
		report.Strength = "moderate"
	default:
		report.Strength = "weak"
	}
	return report, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

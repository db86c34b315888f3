package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// PostgresConfig configures the KPI warehouse connection.
type PostgresConfig struct {
	DSN     string        `envconfig:"DSN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type monthlyRow struct {
	bun.BaseModel `bun:"table:kpi_monthly,alias:km"`

	Metric         string  `bun:"metric,pk"`
	Month          string  `bun:"month,pk"`
	Value          float64 `bun:"value"`
	Unit           string  `bun:"unit"`
	Target         float64 `bun:"target"`
	SeasonalFactor string  `bun:"seasonal_factor"`
}

type benchmarkRow struct {
	bun.BaseModel `bun:"table:kpi_benchmark,alias:kb"`

	Metric  string  `bun:"metric,pk"`
	Segment string  `bun:"segment,pk"`
	Value   float64 `bun:"value"`
	Unit    string  `bun:"unit"`
}

// Postgres reads KPI data from the warehouse tables via bun.
type Postgres struct {
	db *bun.DB
}

func NewPostgres(cfg PostgresConfig) (*Postgres, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("warehouse dsn is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithReadTimeout(timeout),
		pgdriver.WithWriteTimeout(timeout),
	))
	return &Postgres{db: bun.NewDB(sqldb, pgdialect.New())}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Snapshot(ctx context.Context, metric string) (Snapshot, error) {
	if !IsMetric(metric) {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrMetricNotFound, metric)
	}

	var row monthlyRow
	err := p.db.NewSelect().
		Model(&row).
		Where("metric = ?", metric).
		OrderExpr("month DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("%w: metric=%s", ErrNoData, metric)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("query snapshot: %w", err)
	}

	return Snapshot{
		Metric:         row.Metric,
		Month:          row.Month,
		Value:          row.Value,
		Unit:           row.Unit,
		Target:         row.Target,
		SeasonalFactor: row.SeasonalFactor,
	}, nil
}

func (p *Postgres) History(ctx context.Context, metric string, months int) ([]Point, error) {
	if !IsMetric(metric) {
		return nil, fmt.Errorf("%w: %s", ErrMetricNotFound, metric)
	}
	if months <= 0 {
		months = 6
	}

	var rows []monthlyRow
	err := p.db.NewSelect().
		Model(&rows).
		Where("metric = ?", metric).
		OrderExpr("month DESC").
		Limit(months).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: metric=%s", ErrNoData, metric)
	}

	// Rows come back newest-first; the series reads oldest-first.
	points := make([]Point, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		points = append(points, Point{
			Month:          rows[i].Month,
			Value:          rows[i].Value,
			SeasonalFactor: rows[i].SeasonalFactor,
		})
	}
	return points, nil
}

func (p *Postgres) Quarterly(ctx context.Context, metric string, year, quarter int) (QuarterSummary, error) {
	if !IsMetric(metric) {
		return QuarterSummary{}, fmt.Errorf("%w: %s", ErrMetricNotFound, metric)
	}
	months, err := QuarterMonths(year, quarter)
	if err != nil {
		return QuarterSummary{}, err
	}

	var rows []monthlyRow
	err = p.db.NewSelect().
		Model(&rows).
		Where("metric = ?", metric).
		Where("month IN (?)", bun.In(months)).
		OrderExpr("month ASC").
		Scan(ctx)
	if err != nil {
		return QuarterSummary{}, fmt.Errorf("query quarterly: %w", err)
	}
	if len(rows) == 0 {
		return QuarterSummary{}, fmt.Errorf("%w: metric=%s %d-Q%d", ErrNoData, metric, year, quarter)
	}

	summary := QuarterSummary{
		Metric:  metric,
		Year:    year,
		Quarter: quarter,
		Unit:    rows[0].Unit,
	}
	for _, row := range rows {
		summary.Total += row.Value
		summary.Months = append(summary.Months, Point{
			Month:          row.Month,
			Value:          row.Value,
			SeasonalFactor: row.SeasonalFactor,
		})
	}
	summary.Average = summary.Total / float64(len(rows))
	return summary, nil
}

func (p *Postgres) Benchmark(ctx context.Context, metric, segment string) (Benchmark, error) {
	if !IsMetric(metric) {
		return Benchmark{}, fmt.Errorf("%w: %s", ErrMetricNotFound, metric)
	}
	if strings.TrimSpace(segment) == "" {
		segment = SegmentIndustryAverage
	}

	var row benchmarkRow
	err := p.db.NewSelect().
		Model(&row).
		Where("metric = ?", metric).
		Where("segment = ?", segment).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Benchmark{}, fmt.Errorf("%w: %s", ErrSegmentNotFound, segment)
	}
	if err != nil {
		return Benchmark{}, fmt.Errorf("query benchmark: %w", err)
	}

	return Benchmark{
		Metric:  row.Metric,
		Segment: row.Segment,
		Value:   row.Value,
		Unit:    row.Unit,
	}, nil
}

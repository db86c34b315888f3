package tool

import (
	"context"
	"fmt"

	warehousex "github.com/tanpawarit/Callsight-Conversational-BI-Agent/agent/warehouse"
)

const (
	ToolKPISnapshot      = "kpi.snapshot"
	ToolKPIHistory       = "kpi.history"
	ToolKPIQuarterly     = "kpi.quarterly"
	ToolBenchmarkCompare = "benchmark.compare"
	ToolTrendAnalyze     = "trend.analyze"
	ToolInsightNarrative = "insight.narrative"
)

// Catalog builds the fixed tool set over a warehouse. The registry is
// meant to be sealed right after: register these once at startup.
func Catalog(wh warehousex.Warehouse) []Tool {
	return []Tool{
		{
			Name: ToolKPISnapshot,
			Desc: "Current value of a call-center KPI with target and month.",
			Params: map[string]Param{
				"metric": {Type: ParamString, Desc: "Canonical metric name", Required: true},
			},
			Invoker: InvokerFunc(func(ctx context.Context, args map[string]any) (any, error) {
				metric, err := stringArg(args, "metric")
				if err != nil {
					return nil, err
				}
				return wh.Snapshot(ctx, metric)
			}),
		},
		{
			Name: ToolKPIHistory,
			Desc: "Recent monthly series for a KPI, oldest first.",
			Params: map[string]Param{
				"metric": {Type: ParamString, Desc: "Canonical metric name", Required: true},
				"months": {Type: ParamInteger, Desc: "Number of months (default 6)"},
			},
			Invoker: InvokerFunc(func(ctx context.Context, args map[string]any) (any, error) {
				metric, err := stringArg(args, "metric")
				if err != nil {
					return nil, err
				}
				return wh.History(ctx, metric, intArg(args, "months", 6))
			}),
		},
		{
			Name: ToolKPIQuarterly,
			Desc: "Quarterly aggregate (average and total) for a KPI.",
			Params: map[string]Param{
				"metric":  {Type: ParamString, Desc: "Canonical metric name", Required: true},
				"year":    {Type: ParamInteger, Desc: "Calendar year", Required: true},
				"quarter": {Type: ParamInteger, Desc: "Quarter 1-4", Required: true},
			},
			Invoker: InvokerFunc(func(ctx context.Context, args map[string]any) (any, error) {
				metric, err := stringArg(args, "metric")
				if err != nil {
					return nil, err
				}
				return wh.Quarterly(ctx, metric, intArg(args, "year", 0), intArg(args, "quarter", 0))
			}),
		},
		{
			Name: ToolBenchmarkCompare,
			Desc: "KPI value for a comparison segment (industry average or top performer).",
			Params: map[string]Param{
				"metric":  {Type: ParamString, Desc: "Canonical metric name", Required: true},
				"segment": {Type: ParamString, Desc: "industry_average or top_performer"},
			},
			Invoker: InvokerFunc(func(ctx context.Context, args map[string]any) (any, error) {
				metric, err := stringArg(args, "metric")
				if err != nil {
					return nil, err
				}
				segment, _ := args["segment"].(string)
				return wh.Benchmark(ctx, metric, segment)
			}),
		},
		{
			Name: ToolTrendAnalyze,
			Desc: "Direction and strength of a KPI series.",
			Params: map[string]Param{
				"metric": {Type: ParamString, Desc: "Canonical metric name", Required: true},
				"values": {Type: ParamArray, Desc: "Series values, oldest first", Required: true},
			},
			Invoker: InvokerFunc(func(ctx context.Context, args map[string]any) (any, error) {
				metric, err := stringArg(args, "metric")
				if err != nil {
					return nil, err
				}
				values, err := floatSliceArg(args, "values")
				if err != nil {
					return nil, err
				}
				return analyzeTrend(metric, values)
			}),
		},
	}
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

func intArg(args map[string]any, name string, def int) int {
	switch v := args[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func floatSliceArg(args map[string]any, name string) ([]float64, error) {
	switch v := args[name].(type) {
	case []float64:
		return v, nil
	case []any:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			f, ok := item.(float64)
			if !ok {
				if n, isInt := item.(int); isInt {
					f = float64(n)
				} else {
					return nil, fmt.Errorf("%s must contain numbers", name)
				}
			}
			out = append(out, f)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s is required", name)
}

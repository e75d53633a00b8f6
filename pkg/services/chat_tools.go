package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/charts"
	"github.com/duraeco/duraeco-engine/pkg/llm"
)

// ChartRenderer is the visualization surface the chat tools need.
// charts.Renderer satisfies it.
type ChartRenderer interface {
	RenderChart(ctx context.Context, spec charts.ChartSpec) (string, error)
	RenderMap(ctx context.Context, title string, points []charts.MapPoint) (string, error)
}

// NewChatToolRegistry wires the assistant's tool set. The visualization
// tools are registered but unavailable when no object storage is configured,
// so the model never sees them yet unknown-tool handling stays uniform.
func NewChatToolRegistry(
	gateway QueryGateway,
	renderer ChartRenderer,
	hotspots HotspotService,
	info InfoService,
	chartsAvailable bool,
	logger *zap.Logger,
) *llm.ToolRegistry {
	registry := llm.NewToolRegistry()
	toolLogger := logger.Named("chat-tools")

	registry.Register(llm.RegisteredTool{
		Definition: llm.NewToolDefinition(
			"execute_sql_query",
			"Run a read-only SQL SELECT against the waste reporting database. "+
				"Tables: reports, analysis_results, waste_types, hotspots, hotspot_reports. "+
				"Results are capped at 100 rows.",
			map[string]llm.ParameterProperty{
				"query": {Type: "string", Description: "A single SELECT statement"},
			},
			[]string{"query"},
		),
		Available: true,
		Handler: func(ctx context.Context, arguments string) (string, error) {
			var args struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}

			result, err := gateway.ExecuteQuery(ctx, args.Query)
			if err != nil {
				return "", err
			}

			payload, err := json.Marshal(result)
			if err != nil {
				return "", fmt.Errorf("failed to encode result: %w", err)
			}
			toolLogger.Debug("execute_sql_query completed", zap.Int("rows", result.RowCount))
			return string(payload), nil
		},
	})

	registry.Register(llm.RegisteredTool{
		Definition: llm.NewToolDefinition(
			"generate_visualization",
			"Render a bar, line, or pie chart from labeled values and return a link to it.",
			map[string]llm.ParameterProperty{
				"title":      {Type: "string", Description: "Chart title"},
				"chart_type": {Type: "string", Description: "Type of chart", Enum: []string{"bar", "line", "pie"}},
				"labels":     {Type: "array", Description: "Category labels", Items: &llm.ParameterProperty{Type: "string"}},
				"values":     {Type: "array", Description: "One numeric value per label", Items: &llm.ParameterProperty{Type: "number"}},
			},
			[]string{"chart_type", "labels", "values"},
		),
		Available: chartsAvailable,
		Handler: func(ctx context.Context, arguments string) (string, error) {
			var args struct {
				Title     string    `json:"title"`
				ChartType string    `json:"chart_type"`
				Labels    []string  `json:"labels"`
				Values    []float64 `json:"values"`
			}
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}

			url, err := renderer.RenderChart(ctx, charts.ChartSpec{
				Title:  args.Title,
				Type:   charts.ChartType(args.ChartType),
				Labels: args.Labels,
				Values: args.Values,
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf(`{"chart_url": %q}`, url), nil
		},
	})

	registry.Register(llm.RegisteredTool{
		Definition: llm.NewToolDefinition(
			"create_map_visualization",
			"Render an interactive map of the currently active waste hotspots and return a link to it.",
			map[string]llm.ParameterProperty{
				"title": {Type: "string", Description: "Map title"},
			},
			nil,
		),
		Available: chartsAvailable,
		Handler: func(ctx context.Context, arguments string) (string, error) {
			var args struct {
				Title string `json:"title"`
			}
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			if args.Title == "" {
				args.Title = "Active waste hotspots"
			}

			active, err := hotspots.ListActive(ctx)
			if err != nil {
				return "", err
			}
			if len(active) == 0 {
				return `{"message": "There are no active hotspots to map."}`, nil
			}

			points := make([]charts.MapPoint, 0, len(active))
			for _, h := range active {
				points = append(points, charts.MapPoint{
					Latitude:  h.CenterLatitude,
					Longitude: h.CenterLongitude,
					Label:     fmt.Sprintf("%s: %d reports, severity %.1f", h.Name, h.TotalReports, h.AverageSeverity),
					Severity:  int(h.AverageSeverity + 0.5),
				})
			}

			url, err := renderer.RenderMap(ctx, args.Title, points)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf(`{"map_url": %q, "hotspot_count": %d}`, url, len(active)), nil
		},
	})

	registry.Register(llm.RegisteredTool{
		Definition: llm.NewToolDefinition(
			"get_platform_info",
			"Look up curated information about the platform itself: what it is, how reporting works, hotspots, severity scoring, and available data.",
			map[string]llm.ParameterProperty{
				"topic": {Type: "string", Description: "Information topic", Enum: []string{"about", "reporting", "hotspots", "severity", "data"}},
			},
			[]string{"topic"},
		),
		Available: true,
		Handler: func(ctx context.Context, arguments string) (string, error) {
			var args struct {
				Topic string `json:"topic"`
			}
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}

			content, err := info.GetTopic(args.Topic)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf(`{"topic": %q, "content": %q}`, args.Topic, content), nil
		},
	})

	return registry
}

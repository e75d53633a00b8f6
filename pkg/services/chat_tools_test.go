package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/charts"
	"github.com/duraeco/duraeco-engine/pkg/llm"
	"github.com/duraeco/duraeco-engine/pkg/models"
)

type chatToolsFixture struct {
	registry *llm.ToolRegistry
	gateway  *mockQueryGateway
	renderer *mockRenderer
	hotspots *mockHotspotService
}

func newChatToolsFixture(chartsAvailable bool) *chatToolsFixture {
	f := &chatToolsFixture{
		gateway:  &mockQueryGateway{},
		renderer: &mockRenderer{},
		hotspots: &mockHotspotService{},
	}
	f.registry = NewChatToolRegistry(f.gateway, f.renderer, f.hotspots, NewInfoService(), chartsAvailable, zap.NewNop())
	return f
}

func toolNames(defs []llm.ToolDefinition) []string {
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return names
}

func TestChatToolRegistry_Definitions(t *testing.T) {
	full := toolNames(newChatToolsFixture(true).registry.Definitions())
	want := []string{"create_map_visualization", "execute_sql_query", "generate_visualization", "get_platform_info"}
	if len(full) != len(want) {
		t.Fatalf("tools = %v, want %v", full, want)
	}
	for i := range want {
		if full[i] != want[i] {
			t.Fatalf("tools = %v, want %v", full, want)
		}
	}

	limited := toolNames(newChatToolsFixture(false).registry.Definitions())
	for _, name := range limited {
		if strings.Contains(name, "visualization") {
			t.Errorf("visualization tool %s advertised without storage", name)
		}
	}
	if len(limited) != 2 {
		t.Errorf("tools without storage = %v, want query and info only", limited)
	}
}

func TestExecuteSQLQueryTool(t *testing.T) {
	f := newChatToolsFixture(true)
	f.gateway.ExecuteQueryFunc = func(ctx context.Context, rawQuery string) (*QueryResult, error) {
		return &QueryResult{
			Columns:  []string{"status", "n"},
			Rows:     []map[string]any{{"status": "analyzed", "n": 12}},
			RowCount: 1,
		}, nil
	}

	out, err := f.registry.ExecuteTool(context.Background(), "execute_sql_query",
		`{"query": "SELECT status, COUNT(*) AS n FROM reports GROUP BY status"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result QueryResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("tool output is not valid JSON: %v", err)
	}
	if result.RowCount != 1 || result.Rows[0]["status"] != "analyzed" {
		t.Errorf("result = %+v", result)
	}
	if len(f.gateway.Queries) != 1 || !strings.Contains(f.gateway.Queries[0], "GROUP BY status") {
		t.Errorf("gateway received %v", f.gateway.Queries)
	}
}

func TestExecuteSQLQueryTool_BadArguments(t *testing.T) {
	f := newChatToolsFixture(true)

	if _, err := f.registry.ExecuteTool(context.Background(), "execute_sql_query", `{"query": 42}`); err == nil {
		t.Fatal("expected error for malformed arguments")
	}
	if len(f.gateway.Queries) != 0 {
		t.Error("malformed arguments must not reach the gateway")
	}
}

func TestGenerateVisualizationTool(t *testing.T) {
	f := newChatToolsFixture(true)
	var spec charts.ChartSpec
	f.renderer.RenderChartFunc = func(ctx context.Context, s charts.ChartSpec) (string, error) {
		spec = s
		return "http://blob.test/charts/abc.html", nil
	}

	out, err := f.registry.ExecuteTool(context.Background(), "generate_visualization",
		`{"title": "Reports by status", "chart_type": "bar", "labels": ["submitted", "analyzed"], "values": [3, 12]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var payload struct {
		ChartURL string `json:"chart_url"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("tool output is not valid JSON: %v", err)
	}
	if payload.ChartURL != "http://blob.test/charts/abc.html" {
		t.Errorf("chart_url = %q", payload.ChartURL)
	}
	if spec.Type != charts.ChartTypeBar || len(spec.Labels) != 2 || spec.Values[1] != 12 {
		t.Errorf("renderer received %+v", spec)
	}
}

func TestVisualizationToolsUnavailableWithoutStorage(t *testing.T) {
	f := newChatToolsFixture(false)

	out, err := f.registry.ExecuteTool(context.Background(), "generate_visualization",
		`{"chart_type": "bar", "labels": ["a"], "values": [1]}`)
	if err != nil {
		t.Fatalf("unavailable tools report errors in-band: %v", err)
	}
	if !strings.Contains(out, "not available") {
		t.Errorf("expected an availability error, got %q", out)
	}
}

func TestCreateMapVisualizationTool(t *testing.T) {
	f := newChatToolsFixture(true)
	f.hotspots.ListActiveFunc = func(ctx context.Context) ([]*models.Hotspot, error) {
		return []*models.Hotspot{
			{Name: "Hotspot near (-8.5500, 125.5600)", CenterLatitude: -8.55, CenterLongitude: 125.56, TotalReports: 4, AverageSeverity: 6.4},
		}, nil
	}

	var gotTitle string
	var gotPoints []charts.MapPoint
	f.renderer.RenderMapFunc = func(ctx context.Context, title string, points []charts.MapPoint) (string, error) {
		gotTitle, gotPoints = title, points
		return "http://blob.test/maps/abc.html", nil
	}

	out, err := f.registry.ExecuteTool(context.Background(), "create_map_visualization", `{}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotTitle != "Active waste hotspots" {
		t.Errorf("default title = %q", gotTitle)
	}
	if len(gotPoints) != 1 || gotPoints[0].Severity != 6 {
		t.Errorf("points = %+v", gotPoints)
	}
	if !strings.Contains(out, "http://blob.test/maps/abc.html") || !strings.Contains(out, `"hotspot_count": 1`) {
		t.Errorf("tool output = %q", out)
	}
}

func TestCreateMapVisualizationTool_NoHotspots(t *testing.T) {
	f := newChatToolsFixture(true)

	out, err := f.registry.ExecuteTool(context.Background(), "create_map_visualization", `{}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "no active hotspots") {
		t.Errorf("tool output = %q", out)
	}
}

func TestGetPlatformInfoTool(t *testing.T) {
	f := newChatToolsFixture(true)

	out, err := f.registry.ExecuteTool(context.Background(), "get_platform_info", `{"topic": "hotspots"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "500 meters") {
		t.Errorf("hotspot topic content missing: %q", out)
	}
}

func TestUnknownToolReportedInBand(t *testing.T) {
	f := newChatToolsFixture(true)

	out, err := f.registry.ExecuteTool(context.Background(), "drop_all_tables", `{}`)
	if err != nil {
		t.Fatalf("unknown tools report errors in-band: %v", err)
	}
	if !strings.Contains(out, "unknown tool") {
		t.Errorf("tool output = %q", out)
	}
}

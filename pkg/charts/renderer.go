// Package charts renders self-contained HTML visualization artifacts and
// publishes them through the blob store so chat responses can link to them.
package charts

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
	"github.com/duraeco/duraeco-engine/pkg/storage"
)

// ChartType selects the rendering used for a data series.
type ChartType string

const (
	ChartTypeBar  ChartType = "bar"
	ChartTypeLine ChartType = "line"
	ChartTypePie  ChartType = "pie"
)

// ChartSpec describes a single-series chart.
type ChartSpec struct {
	Title  string
	Type   ChartType
	Labels []string
	Values []float64
}

// MapPoint is one marker on a rendered map.
type MapPoint struct {
	Latitude  float64
	Longitude float64
	Label     string
	Severity  int
}

// Renderer turns chart and map specs into hosted HTML artifacts.
type Renderer struct {
	store  storage.BlobStore
	logger *zap.Logger
}

// NewRenderer creates a renderer backed by the given blob store.
func NewRenderer(store storage.BlobStore, logger *zap.Logger) *Renderer {
	return &Renderer{
		store:  store,
		logger: logger.Named("charts"),
	}
}

// RenderChart validates the spec, renders it, and returns the artifact URL.
func (r *Renderer) RenderChart(ctx context.Context, spec ChartSpec) (string, error) {
	if err := validateSpec(spec); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := chartTemplate.Execute(&buf, chartData(spec)); err != nil {
		return "", fmt.Errorf("failed to render chart: %w", err)
	}

	key := fmt.Sprintf("charts/%s.html", uuid.New().String())
	url, err := r.store.Upload(ctx, key, buf.Bytes(), "text/html")
	if err != nil {
		return "", fmt.Errorf("%w: failed to publish chart: %v", apperrors.ErrDependencyFailure, err)
	}

	r.logger.Info("Published chart artifact",
		zap.String("type", string(spec.Type)),
		zap.String("key", key))
	return url, nil
}

// RenderMap renders a marker map and returns the artifact URL.
func (r *Renderer) RenderMap(ctx context.Context, title string, points []MapPoint) (string, error) {
	if len(points) == 0 {
		return "", fmt.Errorf("%w: a map needs at least one point", apperrors.ErrValidation)
	}

	var buf bytes.Buffer
	if err := mapTemplate.Execute(&buf, mapData(title, points)); err != nil {
		return "", fmt.Errorf("failed to render map: %w", err)
	}

	key := fmt.Sprintf("maps/%s.html", uuid.New().String())
	url, err := r.store.Upload(ctx, key, buf.Bytes(), "text/html")
	if err != nil {
		return "", fmt.Errorf("%w: failed to publish map: %v", apperrors.ErrDependencyFailure, err)
	}

	r.logger.Info("Published map artifact",
		zap.Int("points", len(points)),
		zap.String("key", key))
	return url, nil
}

func validateSpec(spec ChartSpec) error {
	switch spec.Type {
	case ChartTypeBar, ChartTypeLine, ChartTypePie:
	default:
		return fmt.Errorf("%w: unsupported chart type %q", apperrors.ErrValidation, spec.Type)
	}
	if len(spec.Labels) == 0 || len(spec.Labels) != len(spec.Values) {
		return fmt.Errorf("%w: labels and values must be non-empty and equal length", apperrors.ErrValidation)
	}
	return nil
}

type chartView struct {
	Title  string
	Type   string
	Labels template.JS
	Values template.JS
}

func chartData(spec ChartSpec) chartView {
	return chartView{
		Title:  spec.Title,
		Type:   string(spec.Type),
		Labels: jsStringArray(spec.Labels),
		Values: jsFloatArray(spec.Values),
	}
}

type mapMarkerView struct {
	Lat      float64
	Lon      float64
	Label    template.JS
	Severity int
}

type mapView struct {
	Title     string
	CenterLat float64
	CenterLon float64
	Markers   []mapMarkerView
}

func mapData(title string, points []MapPoint) mapView {
	var sumLat, sumLon float64
	markers := make([]mapMarkerView, 0, len(points))
	for _, p := range points {
		sumLat += p.Latitude
		sumLon += p.Longitude
		markers = append(markers, mapMarkerView{
			Lat:      p.Latitude,
			Lon:      p.Longitude,
			Label:    jsString(p.Label),
			Severity: p.Severity,
		})
	}
	return mapView{
		Title:     title,
		CenterLat: sumLat / float64(len(points)),
		CenterLon: sumLon / float64(len(points)),
		Markers:   markers,
	}
}

func jsString(s string) template.JS {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "<", `\u003c`).Replace(s)
	return template.JS(`"` + escaped + `"`)
}

func jsStringArray(items []string) template.JS {
	parts := make([]string, len(items))
	for i, s := range items {
		parts[i] = string(jsString(s))
	}
	return template.JS("[" + strings.Join(parts, ",") + "]")
}

func jsFloatArray(values []float64) template.JS {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return template.JS("[" + strings.Join(parts, ",") + "]")
}

var chartTemplate = template.Must(template.New("chart").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="https://cdn.jsdelivr.net/npm/chart.js@4"></script>
<style>body{font-family:sans-serif;margin:2rem}#chart{max-width:900px}</style>
</head>
<body>
<h2>{{.Title}}</h2>
<canvas id="chart"></canvas>
<script>
new Chart(document.getElementById("chart"), {
  type: "{{.Type}}",
  data: {
    labels: {{.Labels}},
    datasets: [{
      label: "{{.Title}}",
      data: {{.Values}},
      backgroundColor: ["#2e7d32","#1565c0","#ef6c00","#6a1b9a","#c62828","#00838f","#9e9d24","#4e342e"]
    }]
  },
  options: { responsive: true, plugins: { legend: { display: {{if eq .Type "pie"}}true{{else}}false{{end}} } } }
});
</script>
</body>
</html>
`))

var mapTemplate = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>body{margin:0}#map{height:100vh}</style>
</head>
<body>
<div id="map"></div>
<script>
var map = L.map("map").setView([{{.CenterLat}}, {{.CenterLon}}], 12);
L.tileLayer("https://tile.openstreetmap.org/{z}/{x}/{y}.png", {
  attribution: "&copy; OpenStreetMap contributors"
}).addTo(map);
{{range .Markers}}
L.circleMarker([{{.Lat}}, {{.Lon}}], {
  radius: 6 + {{.Severity}},
  color: {{if ge .Severity 7}}"#c62828"{{else if ge .Severity 4}}"#ef6c00"{{else}}"#2e7d32"{{end}},
  fillOpacity: 0.7
}).addTo(map).bindPopup({{.Label}});
{{end}}
</script>
</body>
</html>
`))

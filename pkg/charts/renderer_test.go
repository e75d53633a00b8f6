package charts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
	"github.com/duraeco/duraeco-engine/pkg/storage"
)

func TestRenderChart_PublishesArtifact(t *testing.T) {
	store := storage.NewMockBlobStore()
	renderer := NewRenderer(store, zap.NewNop())

	url, err := renderer.RenderChart(context.Background(), ChartSpec{
		Title:  "Reports by waste type",
		Type:   ChartTypeBar,
		Labels: []string{"Plastic", "Organic", "Mixed Waste"},
		Values: []float64{12, 7, 4},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(url, "charts/") || !strings.HasSuffix(url, ".html") {
		t.Errorf("unexpected artifact url: %q", url)
	}
	if store.UploadCalls != 1 {
		t.Fatalf("expected 1 upload, got %d", store.UploadCalls)
	}

	var html string
	for _, data := range store.Objects {
		html = string(data)
	}
	for _, want := range []string{"Reports by waste type", `"Plastic"`, "[12,7,4]", `type: "bar"`} {
		if !strings.Contains(html, want) {
			t.Errorf("artifact missing %q", want)
		}
	}
}

func TestRenderChart_RejectsBadSpecs(t *testing.T) {
	renderer := NewRenderer(storage.NewMockBlobStore(), zap.NewNop())

	tests := []struct {
		name string
		spec ChartSpec
	}{
		{"unknown type", ChartSpec{Type: "scatter", Labels: []string{"a"}, Values: []float64{1}}},
		{"no data", ChartSpec{Type: ChartTypePie}},
		{"length mismatch", ChartSpec{Type: ChartTypeLine, Labels: []string{"a", "b"}, Values: []float64{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := renderer.RenderChart(context.Background(), tt.spec)
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRenderChart_UploadFailureWrapped(t *testing.T) {
	store := storage.NewMockBlobStore()
	store.UploadErr = errors.New("bucket unreachable")
	renderer := NewRenderer(store, zap.NewNop())

	_, err := renderer.RenderChart(context.Background(), ChartSpec{
		Type:   ChartTypeBar,
		Labels: []string{"a"},
		Values: []float64{1},
	})
	if !errors.Is(err, apperrors.ErrDependencyFailure) {
		t.Errorf("expected dependency failure, got %v", err)
	}
}

func TestRenderMap_PublishesArtifact(t *testing.T) {
	store := storage.NewMockBlobStore()
	renderer := NewRenderer(store, zap.NewNop())

	url, err := renderer.RenderMap(context.Background(), "Active hotspots", []MapPoint{
		{Latitude: -8.55, Longitude: 125.56, Label: "Hotspot near (-8.5500, 125.5600)", Severity: 7},
		{Latitude: -8.56, Longitude: 125.57, Label: `Quote " test`, Severity: 3},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(url, "maps/") {
		t.Errorf("unexpected artifact url: %q", url)
	}

	var html string
	for _, data := range store.Objects {
		html = string(data)
	}
	if !strings.Contains(html, "leaflet") {
		t.Error("map artifact should use leaflet")
	}
	if !strings.Contains(html, `\"`) {
		t.Error("labels must be escaped for the script context")
	}
}

func TestRenderMap_RequiresPoints(t *testing.T) {
	renderer := NewRenderer(storage.NewMockBlobStore(), zap.NewNop())
	if _, err := renderer.RenderMap(context.Background(), "empty", nil); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

// Package embeddings produces vector representations for report search.
// All operations are best effort: a failed embedding never fails the
// analysis pipeline, it just leaves the vector null.
package embeddings

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/llm"
)

// Embedder is the narrow model surface the indexer needs.
// llm.Client satisfies it.
type Embedder interface {
	CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error)
}

// Indexer computes image, text, and location embeddings for analyzed reports.
type Indexer struct {
	embedder Embedder
	pool     *llm.WorkerPool
	model    string
	logger   *zap.Logger
}

// NewIndexer creates an indexer. An empty model lets the client default apply.
func NewIndexer(embedder Embedder, pool *llm.WorkerPool, model string, logger *zap.Logger) *Indexer {
	return &Indexer{
		embedder: embedder,
		pool:     pool,
		model:    model,
		logger:   logger.Named("embeddings"),
	}
}

// EmbedText embeds free text. Returns nil when the model call fails.
func (i *Indexer) EmbedText(ctx context.Context, text string) []float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	vec, err := i.embedder.CreateEmbedding(ctx, text, i.model)
	if err != nil {
		i.logger.Warn("Text embedding failed, storing null vector", zap.Error(err))
		return nil
	}
	return toFloat64(vec)
}

// EmbedImage embeds a report image. The embedding model is text based, so
// the image payload is tried first for endpoints that accept it and the
// analysis digest is the fallback. Returns nil when both fail.
func (i *Indexer) EmbedImage(ctx context.Context, imageBase64, digest string) []float64 {
	if imageBase64 != "" {
		vec, err := i.embedder.CreateEmbedding(ctx, imageBase64, i.model)
		if err == nil {
			return toFloat64(vec)
		}
		i.logger.Debug("Direct image embedding rejected, falling back to digest", zap.Error(err))
	}
	return i.EmbedText(ctx, digest)
}

// EmbedAnalysis computes the image and location vectors for one analyzed
// report. Both model calls go through the shared worker pool so a burst of
// finishing analyses cannot flood the embedding endpoint.
func (i *Indexer) EmbedAnalysis(ctx context.Context, imageBase64, digest, locationText string) (imageVec, locationVec []float64) {
	items := []llm.WorkItem[[]float64]{
		{ID: "image", Run: func(ctx context.Context) ([]float64, error) {
			return i.EmbedImage(ctx, imageBase64, digest), nil
		}},
		{ID: "location", Run: func(ctx context.Context) ([]float64, error) {
			return i.EmbedText(ctx, locationText), nil
		}},
	}
	results := llm.Process(ctx, i.pool, items)
	return results[0].Result, results[1].Result
}

// AnalysisDigest builds the text used for the embedding fallback from the
// structured analysis fields.
func AnalysisDigest(wasteType, analysisNotes, fullDescription string) string {
	var parts []string
	for _, p := range []string{wasteType, analysisNotes, fullDescription} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ". ")
}

func toFloat64(vec []float32) []float64 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

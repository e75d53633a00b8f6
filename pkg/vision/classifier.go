// Package vision classifies waste report images through a multimodal model.
package vision

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/llm"
	"github.com/duraeco/duraeco-engine/pkg/models"
)

// Model is the narrow multimodal surface the classifier needs.
// llm.Client satisfies it.
type Model interface {
	AnalyzeImage(ctx context.Context, prompt string, imageBase64 string) (string, error)
}

// Outcome is the structured result of classifying one report image.
// Confidence is on the 0-100 scale the model is prompted for.
type Outcome struct {
	IsWaste             bool
	Confidence          float64
	WasteType           string
	HazardLevel         int
	Recyclable          bool
	SeverityScore       int
	PriorityLevel       string
	EstimatedVolume     string
	AnalysisNotes       string
	EnvironmentalImpact string
	SafetyConcerns      string
	ShortDescription    string
	FullDescription     string
}

// MaxShortDescriptionWords caps the derived report summary length.
const MaxShortDescriptionWords = 8

// Classifier runs the two-phase image classification protocol:
// a cheap waste-or-not check first, then a detailed categorization only
// when the first phase says the image shows waste.
type Classifier struct {
	model    Model
	logger   *zap.Logger
	attempts int
	backoff  time.Duration
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithAttempts overrides the total attempt count.
func WithAttempts(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithBackoff overrides the fixed delay between attempts.
func WithBackoff(d time.Duration) Option {
	return func(c *Classifier) { c.backoff = d }
}

// NewClassifier creates a classifier with 2 total attempts and a fixed
// 2 second delay between them.
func NewClassifier(model Model, logger *zap.Logger, opts ...Option) *Classifier {
	c := &Classifier{
		model:    model,
		logger:   logger.Named("vision"),
		attempts: 2,
		backoff:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type wasteCheck struct {
	ContainsWaste    bool    `json:"contains_waste"`
	Confidence       float64 `json:"confidence"`
	ShortDescription string  `json:"short_description"`
	Reason           string  `json:"reason"`
}

type detailedAnalysis struct {
	WasteType           string  `json:"waste_type"`
	Confidence          float64 `json:"confidence"`
	EstimatedVolume     string  `json:"estimated_volume"`
	SeverityScore       int     `json:"severity_score"`
	PriorityLevel       string  `json:"priority_level"`
	HazardLevel         int     `json:"hazard_level"`
	Recyclable          bool    `json:"recyclable"`
	AnalysisNotes       string  `json:"analysis_notes"`
	EnvironmentalImpact string  `json:"environmental_impact"`
	SafetyConcerns      string  `json:"safety_concerns"`
	ShortDescription    string  `json:"short_description"`
	FullDescription     string  `json:"full_description"`
}

// Classify analyzes a report image. It makes up to the configured number of
// attempts with a fixed delay between them, then returns the last error.
func (c *Classifier) Classify(ctx context.Context, imageBase64 string, lat, lon float64, userDescription string) (*Outcome, error) {
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		outcome, err := c.classifyOnce(ctx, imageBase64, lat, lon, userDescription)
		if err == nil {
			return outcome, nil
		}
		lastErr = err
		c.logger.Warn("Classification attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.attempts),
			zap.Error(err))

		if attempt < c.attempts {
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("image classification failed after %d attempts: %w", c.attempts, lastErr)
}

func (c *Classifier) classifyOnce(ctx context.Context, imageBase64 string, lat, lon float64, userDescription string) (*Outcome, error) {
	checkRaw, err := c.model.AnalyzeImage(ctx, wasteCheckPrompt(userDescription), imageBase64)
	if err != nil {
		return nil, fmt.Errorf("waste check: %w", err)
	}

	check, err := llm.ParseJSONResponse[wasteCheck](checkRaw)
	if err != nil {
		return nil, fmt.Errorf("waste check response unparseable: %w", err)
	}

	if !check.ContainsWaste {
		c.logger.Info("Image classified as non-waste",
			zap.Float64("confidence", check.Confidence))
		return nonWasteOutcome(check), nil
	}

	detailRaw, err := c.model.AnalyzeImage(ctx, detailedAnalysisPrompt(lat, lon, userDescription), imageBase64)
	if err != nil {
		return nil, fmt.Errorf("detailed analysis: %w", err)
	}

	detail, err := llm.ParseJSONResponse[detailedAnalysis](detailRaw)
	if err != nil {
		// The model answered but not in JSON. Salvage what we can rather
		// than burn an attempt.
		c.logger.Warn("Detailed analysis response unparseable, synthesizing fallback")
		return fallbackOutcome(check, detailRaw), nil
	}

	return normalizeOutcome(check, detail), nil
}

func nonWasteOutcome(check wasteCheck) *Outcome {
	notes := check.Reason
	if notes == "" {
		notes = "Image does not appear to show waste."
	}
	return &Outcome{
		IsWaste:          false,
		Confidence:       clampConfidence(check.Confidence),
		WasteType:        models.NonWasteTypeName,
		SeverityScore:    1,
		PriorityLevel:    "low",
		EstimatedVolume:  "0",
		AnalysisNotes:    notes,
		ShortDescription: "Not garbage.",
		FullDescription:  notes,
	}
}

// fallbackOutcome synthesizes a usable result from free-form model text.
func fallbackOutcome(check wasteCheck, rawText string) *Outcome {
	notes := strings.TrimSpace(rawText)
	if len(notes) > 500 {
		notes = notes[:500]
	}
	return &Outcome{
		IsWaste:          true,
		Confidence:       clampConfidence(check.Confidence),
		WasteType:        "Mixed Waste",
		SeverityScore:    5,
		PriorityLevel:    "medium",
		EstimatedVolume:  "unknown",
		AnalysisNotes:    notes,
		ShortDescription: ClampWords(check.ShortDescription, MaxShortDescriptionWords),
		FullDescription:  notes,
	}
}

func normalizeOutcome(check wasteCheck, detail detailedAnalysis) *Outcome {
	severity := detail.SeverityScore
	if severity < 1 {
		severity = 1
	}
	if severity > 10 {
		severity = 10
	}

	priority := strings.ToLower(strings.TrimSpace(detail.PriorityLevel))
	switch priority {
	case "low", "medium", "high", "critical":
	default:
		priority = "medium"
	}

	hazard := detail.HazardLevel
	if hazard < 1 {
		hazard = 1
	}
	if hazard > 5 {
		hazard = 5
	}

	wasteType := strings.TrimSpace(detail.WasteType)
	if wasteType == "" {
		wasteType = "Mixed Waste"
	}

	confidence := detail.Confidence
	if confidence == 0 {
		confidence = check.Confidence
	}
	confidence = clampConfidence(confidence)

	short := detail.ShortDescription
	if short == "" {
		short = check.ShortDescription
	}

	return &Outcome{
		IsWaste:             true,
		Confidence:          confidence,
		WasteType:           wasteType,
		HazardLevel:         hazard,
		Recyclable:          detail.Recyclable,
		SeverityScore:       severity,
		PriorityLevel:       priority,
		EstimatedVolume:     detail.EstimatedVolume,
		AnalysisNotes:       detail.AnalysisNotes,
		EnvironmentalImpact: detail.EnvironmentalImpact,
		SafetyConcerns:      detail.SafetyConcerns,
		ShortDescription:    ClampWords(short, MaxShortDescriptionWords),
		FullDescription:     detail.FullDescription,
	}
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ClampWords truncates text to at most n words.
func ClampWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[:n], " ")
}

var volumePattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParseVolume extracts a numeric volume from free text like
// "about 5 cubic meters". Returns 0 when no number is present.
func ParseVolume(text string) float64 {
	match := volumePattern.FindString(text)
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return v
}

func wasteCheckPrompt(userDescription string) string {
	var sb strings.Builder
	sb.WriteString("You are inspecting a photo submitted to a community waste reporting platform.\n")
	sb.WriteString("Determine whether the photo shows waste, garbage, litter, or illegal dumping.\n")
	if userDescription != "" {
		sb.WriteString("Reporter's note: ")
		sb.WriteString(userDescription)
		sb.WriteString("\n")
	}
	sb.WriteString("Respond with ONLY a JSON object:\n")
	sb.WriteString(`{"contains_waste": true/false, "confidence": 0-100, "short_description": "max 8 words", "reason": "one sentence"}`)
	return sb.String()
}

func detailedAnalysisPrompt(lat, lon float64, userDescription string) string {
	var sb strings.Builder
	sb.WriteString("The photo shows waste reported at coordinates ")
	sb.WriteString(fmt.Sprintf("(%.5f, %.5f).\n", lat, lon))
	if userDescription != "" {
		sb.WriteString("Reporter's note: ")
		sb.WriteString(userDescription)
		sb.WriteString("\n")
	}
	sb.WriteString("Analyze the waste in detail. Respond with ONLY a JSON object:\n")
	sb.WriteString(`{
  "waste_type": "category such as Plastic, Organic, Construction Debris, Electronic, Mixed Waste",
  "confidence": 0-100,
  "estimated_volume": "free text like 'about 2 cubic meters'",
  "severity_score": 1-10,
  "priority_level": "low/medium/high/critical",
  "hazard_level": 1-5,
  "recyclable": true/false,
  "analysis_notes": "what is visible and its condition",
  "environmental_impact": "expected impact if left in place",
  "safety_concerns": "hazards to people or animals",
  "short_description": "max 8 words",
  "full_description": "two or three sentences for the public report page"
}`)
	return sb.String()
}

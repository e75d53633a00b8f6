package models

import (
	"time"

	"github.com/google/uuid"
)

// PriorityLevel classifies how urgently a reported site needs attention.
type PriorityLevel string

const (
	PriorityLow      PriorityLevel = "low"
	PriorityMedium   PriorityLevel = "medium"
	PriorityHigh     PriorityLevel = "high"
	PriorityCritical PriorityLevel = "critical"
)

// ValidPriorityLevels contains all valid priority values.
var ValidPriorityLevels = []PriorityLevel{
	PriorityLow,
	PriorityMedium,
	PriorityHigh,
	PriorityCritical,
}

// IsValidPriorityLevel checks if the given priority is valid.
func IsValidPriorityLevel(p PriorityLevel) bool {
	for _, v := range ValidPriorityLevels {
		if v == p {
			return true
		}
	}
	return false
}

// NonWasteTypeName is the sentinel waste category for images that turn out
// not to show waste. Such reports still complete the analyzed lifecycle.
const NonWasteTypeName = "Not Garbage"

// WasteType is a category of waste resolved or created during analysis.
type WasteType struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	HazardLevel int       `json:"hazard_level"`
	Recyclable  bool      `json:"recyclable"`
	CreatedAt   time.Time `json:"created_at"`
}

// AnalysisResult holds the outcome of AI vision analysis for one report.
// At most one result exists per report. Confidence is on the 0-100 scale.
type AnalysisResult struct {
	ID                uuid.UUID     `json:"id"`
	ReportID          uuid.UUID     `json:"report_id"`
	WasteTypeID       *uuid.UUID    `json:"waste_type_id,omitempty"`
	IsWaste           bool          `json:"is_waste"`
	Confidence        float64       `json:"confidence"`
	EstimatedVolume   float64       `json:"estimated_volume"`
	SeverityScore     int           `json:"severity_score"`
	PriorityLevel     PriorityLevel `json:"priority_level"`
	AnalysisNotes     string        `json:"analysis_notes"`
	ImageEmbedding    []float64     `json:"-"`
	LocationEmbedding []float64     `json:"-"`
	AnalyzedAt        time.Time     `json:"analyzed_at"`
}

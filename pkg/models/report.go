package models

import (
	"time"

	"github.com/google/uuid"
)

// ReportStatus represents the lifecycle state of a waste report.
type ReportStatus string

const (
	// ReportStatusSubmitted is the initial state. Failed analyses revert here
	// so the report remains eligible for retry.
	ReportStatusSubmitted ReportStatus = "submitted"
	// ReportStatusAnalyzing marks a report claimed by an analysis worker.
	ReportStatusAnalyzing ReportStatus = "analyzing"
	// ReportStatusAnalyzed is the terminal state after successful analysis.
	ReportStatusAnalyzed ReportStatus = "analyzed"
)

// Report is a geotagged waste report submitted by a citizen.
type Report struct {
	ID              uuid.UUID    `json:"id"`
	UserID          uuid.UUID    `json:"user_id"`
	Latitude        float64      `json:"latitude"`
	Longitude       float64      `json:"longitude"`
	Description     string       `json:"description"`
	FullDescription string       `json:"full_description,omitempty"`
	ImageURL        *string      `json:"image_url,omitempty"`
	Status          ReportStatus `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// HasImage reports whether the report carries an image. Reports without an
// image are never analyzed.
func (r *Report) HasImage() bool {
	return r.ImageURL != nil && *r.ImageURL != ""
}

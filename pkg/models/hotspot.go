package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HotspotMinReports is the minimum number of analyzed reports within the
// clustering radius before a hotspot forms.
const HotspotMinReports = 3

// HotspotRadiusMeters is the default hotspot radius.
const HotspotRadiusMeters = 500

// Hotspot is a persistent cluster of geographically close waste reports.
type Hotspot struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	CenterLatitude  float64   `json:"center_latitude"`
	CenterLongitude float64   `json:"center_longitude"`
	RadiusMeters    int       `json:"radius_meters"`
	FirstReported   time.Time `json:"first_reported"`
	LastReported    time.Time `json:"last_reported"`
	TotalReports    int       `json:"total_reports"`
	AverageSeverity float64   `json:"average_severity"`
	Status          string    `json:"status"`
}

// HotspotName derives the display name for a hotspot centered at the
// given coordinates.
func HotspotName(lat, lon float64) string {
	return fmt.Sprintf("Hotspot near (%.4f, %.4f)", lat, lon)
}

// HotspotAction describes what the aggregator did for a completed analysis.
type HotspotAction string

const (
	// HotspotActionNone means fewer than the minimum nearby reports exist.
	HotspotActionNone HotspotAction = "none"
	// HotspotActionCreated means a new hotspot was formed.
	HotspotActionCreated HotspotAction = "created"
	// HotspotActionUpdated means an existing hotspot absorbed the report.
	HotspotActionUpdated HotspotAction = "updated"
	// HotspotActionDissolved means a hotspot fell below the minimum and was removed.
	HotspotActionDissolved HotspotAction = "dissolved"
)

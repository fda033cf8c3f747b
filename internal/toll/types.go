// Package toll defines core types shared across subsystems.
package toll

import (
	"strings"
	"time"
)

// FacilityType classifies a toll facility.
type FacilityType string

// Facility type values persisted with each record.
const (
	FacilityOther  FacilityType = "Other"
	FacilityBridge FacilityType = "Bridge"
	FacilityTunnel FacilityType = "Tunnel"
	FacilityRoad   FacilityType = "Road"
)

// ParseFacilityType maps a raw value onto a FacilityType.
// Unrecognized values, including the empty string, map to FacilityOther.
func ParseFacilityType(raw string) FacilityType {
	switch {
	case strings.EqualFold(raw, string(FacilityBridge)):
		return FacilityBridge
	case strings.EqualFold(raw, string(FacilityTunnel)):
		return FacilityTunnel
	case strings.EqualFold(raw, string(FacilityRoad)):
		return FacilityRoad
	default:
		return FacilityOther
	}
}

// TollRate is one validated toll-rate record. Every field has a defined
// default; validation degrades malformed fields to their defaults instead of
// rejecting the row.
type TollRate struct {
	StateOrProvince  string       `json:"state_or_province"`
	FacilityLabel    string       `json:"facility_label"`
	TollOperator     string       `json:"toll_operator"`
	FacilityType     FacilityType `json:"facility_type"`
	RoadType         string       `json:"road_type"`
	Interstate       bool         `json:"interstate"`
	FacilityOpenDate string       `json:"facility_open_date"`
	RevenueLaneMiles float64      `json:"revenue_lane_miles"`
	Revenue          float64      `json:"revenue"`
	LengthMiles      float64      `json:"length_miles"`
	Lane             float64      `json:"lane"`
	SourceType       string       `json:"source_type"`
	Reference        string       `json:"reference"`
	Year             int          `json:"year"`
}

// FetchResult describes one successfully retrieved artifact.
type FetchResult struct {
	URL        string        `json:"url"`
	Key        string        `json:"key"`
	BlobURI    string        `json:"blob_uri"`
	StatusCode int           `json:"status_code"`
	Attempts   int           `json:"attempts"`
	FetchedAt  time.Time     `json:"fetched_at"`
	Duration   time.Duration `json:"-"`
}

// FetchOutcome is the per-URL result collected by the fetch pool. Exactly one
// of Result/Err is meaningful.
type FetchOutcome struct {
	URL    string
	Result FetchResult
	Err    error
}

// SweepReport summarizes one fetch sweep. Partial success is the normal
// terminal state; the counts exist for observability, not thresholds.
type SweepReport struct {
	SweepID   string
	Outcomes  []FetchOutcome
	Succeeded int
	Failed    int
}

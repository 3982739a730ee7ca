package models

import "time"

// MPA is one marine protected area from the master catalog.
type MPA struct {
	SiteName  string  `json:"Site_Name"`
	WDPACode  string  `json:"WDPA_Code"`
	Latitude  float64 `json:"Latitude"`
	Longitude float64 `json:"Longitude"`
	AreaHa    float64 `json:"Area_ha"`
}

// AnalysisRun is a persisted analysis invocation.
type AnalysisRun struct {
	ID            string          `json:"id"`
	MPAName       string          `json:"mpa_name"`
	WDPACode      string          `json:"wdpa_code"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	Status        AnalysisStatus  `json:"status"`
	ErrorMsg      string          `json:"error,omitempty"`
	TotalHours    float64         `json:"total_fishing_hours"`
	UniqueVessels int             `json:"unique_vessels"`
	FailedPeriods []FailedRange   `json:"failed_periods,omitempty"`
	Result        *AnalysisResult `json:"result,omitempty"`
	DurationMs    int             `json:"duration_ms"`
	CreatedAt     time.Time       `json:"created_at"`
}

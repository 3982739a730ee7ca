package models

import "time"

// AnalysisStatus is the top-level outcome of an analysis request.
type AnalysisStatus string

const (
	AnalysisStatusSuccess AnalysisStatus = "success"
	AnalysisStatusError   AnalysisStatus = "error"
)

// NoActivityMessage is reported in the summary when every fetch succeeded but
// returned zero rows.
const NoActivityMessage = "No fishing activity detected in this period"

// AnalysisResult is the aggregated output consumed by report renderers. Field
// names and nesting are part of the contract with those renderers.
type AnalysisResult struct {
	RunID              string              `json:"run_id,omitempty"`
	Status             AnalysisStatus      `json:"status"`
	Error              string              `json:"error,omitempty"`
	MPAName            string              `json:"mpa_name"`
	WDPACode           string              `json:"wdpa_code,omitempty"`
	DateRange          *DateRange          `json:"date_range,omitempty"`
	TotalRecords       int                 `json:"total_records"`
	GeneratedAt        time.Time           `json:"generated_at"`
	Summary            *Summary            `json:"summary,omitempty"`
	Temporal           *Temporal           `json:"temporal,omitempty"`
	GearTypes          map[string]GearStat `json:"gear_types,omitempty"`
	Vessels            *VesselBreakdown    `json:"vessels,omitempty"`
	ConservationAlerts []ConservationAlert `json:"conservation_alerts,omitempty"`
	ProtectedFeatures  []string            `json:"protected_features,omitempty"`
	MultiYear          *MultiYearAnalysis  `json:"multi_year_analysis,omitempty"`
	FailedPeriods      []FailedRange       `json:"failed_periods,omitempty"`
}

// DateRange is the requested analysis window as ISO dates.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Summary holds headline totals.
type Summary struct {
	TotalFishingHours        float64 `json:"total_fishing_hours"`
	UniqueVessels            int     `json:"unique_vessels"`
	HarmfulFishingHours      float64 `json:"harmful_fishing_hours"`
	HarmfulFishingPercentage float64 `json:"harmful_fishing_percentage"`
	TrawlingHours            float64 `json:"trawling_hours"`
	DredgingHours            float64 `json:"dredging_hours"`
	Message                  string  `json:"message,omitempty"`
}

// Temporal holds per-month hour series keyed by YYYY-MM.
type Temporal struct {
	MonthlyHours    map[string]float64 `json:"monthly_hours"`
	MonthlyTrawling map[string]float64 `json:"monthly_trawling"`
	MonthlyDredging map[string]float64 `json:"monthly_dredging"`
	Trend           string             `json:"trend,omitempty"` // increasing|decreasing
}

// GearStat aggregates activity for one gear type label.
type GearStat struct {
	TotalHours  float64 `json:"total_hours"`
	VesselCount int     `json:"vessel_count"`
}

// VesselBreakdown holds per-vessel rollups and flag-state counts.
type VesselBreakdown struct {
	MostActive []VesselSummary `json:"most_active"`
	FlagStates map[string]int  `json:"flag_states"`
}

// VesselSummary is the rollup of all rows for one vessel.
type VesselSummary struct {
	VesselID        string  `json:"vessel_id"`
	ShipName        string  `json:"ship_name"`
	Flag            string  `json:"flag"`
	MMSI            string  `json:"mmsi"`
	PrimaryGearType string  `json:"primary_gear_type"`
	FishingHours    float64 `json:"fishing_hours"`
}

// ConservationAlert flags activity that threatens protected features.
type ConservationAlert struct {
	Type      string   `json:"type"`
	Severity  string   `json:"severity"`
	Message   string   `json:"message"`
	GearTypes []string `json:"gear_types"`
}

// MultiYearAnalysis is present only when the requested range spans more than
// one year.
type MultiYearAnalysis struct {
	YearsAnalyzed int                  `json:"years_analyzed"`
	YearlyTotals  []YearTotal          `json:"yearly_totals"`
	YearOverYear  []YearOverYearChange `json:"year_over_year"`
	Trend         TrendStats           `json:"trend"`
	Seasonal      SeasonalPattern      `json:"seasonal_pattern"`
}

// YearTotal is the activity total for one calendar year.
type YearTotal struct {
	Year          int     `json:"year"`
	TotalHours    float64 `json:"total_hours"`
	UniqueVessels int     `json:"unique_vessels"`
}

// YearOverYearChange compares two consecutive calendar years.
type YearOverYearChange struct {
	FromYear              int     `json:"from_year"`
	ToYear                int     `json:"to_year"`
	HoursChange           float64 `json:"hours_change"`
	HoursChangePercentage float64 `json:"hours_change_percentage"`
	VesselChange          int     `json:"vessel_change"`
}

// TrendMethod names how a multi-year trend was computed.
type TrendMethod string

const (
	TrendMethodLinearRegression TrendMethod = "linear_regression"
	TrendMethodSimpleChange     TrendMethod = "simple_change"
)

// TrendStats describes the direction and strength of yearly totals.
type TrendStats struct {
	Method           TrendMethod `json:"method"`
	Direction        string      `json:"direction"` // increasing|decreasing|stable
	Slope            float64     `json:"slope,omitempty"`
	Correlation      float64     `json:"correlation,omitempty"`
	Strength         string      `json:"strength,omitempty"` // strong|moderate|weak
	Significant      bool        `json:"significant"`
	PercentageChange float64     `json:"percentage_change"`
}

// SeasonalPattern is the mean monthly activity across all analysed years.
type SeasonalPattern struct {
	MonthlyAverages  map[string]float64 `json:"monthly_averages"` // keyed by two-digit month
	PeakMonth        int                `json:"peak_month"`
	LowMonth         int                `json:"low_month"`
	SeasonalityRatio float64            `json:"seasonality_ratio"`
}

package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used on every external boundary.
const DateLayout = "2006-01-02"

// MonthLayout is the key format for monthly buckets.
const MonthLayout = "2006-01"

// MaxQueryDays is the longest date range the upstream accepts in one query.
const MaxQueryDays = 365

// ExceedsQueryLimit reports whether [start, end] is longer than MaxQueryDays
// and therefore spans more than one yearly chunk.
func ExceedsQueryLimit(start, end time.Time) bool {
	return end.Sub(start) > MaxQueryDays*24*time.Hour
}

// Region identifies an upstream spatial region (an MPA in the WDPA dataset).
type Region struct {
	Dataset string `json:"dataset"` // e.g., "public-mpa-all"
	ID      string `json:"id"`      // WDPA code
}

// ActivityRecord is one row of apparent fishing activity for a vessel in a
// monthly bucket. Records are immutable once fetched.
type ActivityRecord struct {
	Date     time.Time `json:"date"` // first day of the month bucket, UTC
	VesselID string    `json:"vessel_id"`
	MMSI     string    `json:"mmsi,omitempty"`
	ShipName string    `json:"ship_name,omitempty"`
	Flag     string    `json:"flag,omitempty"`      // ISO3 country code
	GearType string    `json:"gear_type,omitempty"` // empty when upstream did not classify the vessel
	Hours    float64   `json:"hours"`
}

// Validate checks the invariants that every ingested record must satisfy.
func (r ActivityRecord) Validate() error {
	if r.Date.IsZero() {
		return fmt.Errorf("activity record for vessel %q has no date", r.VesselID)
	}
	if r.Hours < 0 {
		return fmt.Errorf("activity record for vessel %q has negative hours %v", r.VesselID, r.Hours)
	}
	return nil
}

// MonthKey returns the record's month bucket formatted as YYYY-MM.
func (r ActivityRecord) MonthKey() string {
	return r.Date.Format(MonthLayout)
}

// DateSubRange is an inclusive slice of a requested date range no longer than
// the upstream query limit.
type DateSubRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label int       `json:"year"` // calendar year of Start
}

// String renders the range as start..end.
func (r DateSubRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

// Days returns the number of days between Start and End.
func (r DateSubRange) Days() int {
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// FetchOutcome records the result of fetching one sub-range, including all
// retry attempts.
type FetchOutcome struct {
	Success  bool             `json:"success"`
	Records  []ActivityRecord `json:"-"`
	Range    DateSubRange     `json:"range"`
	Error    string           `json:"error,omitempty"`
	Err      error            `json:"-"` // last attempt's error, for errors.Is/As
	Attempts int              `json:"attempts"`
	Elapsed  time.Duration    `json:"elapsed"`
}

// FailedRange describes a sub-range for which every attempt failed.
type FailedRange struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Year     int    `json:"year"`
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}

// NewFailedRange builds a FailedRange from an unsuccessful outcome.
func NewFailedRange(outcome FetchOutcome) FailedRange {
	return FailedRange{
		Start:    outcome.Range.Start.Format(DateLayout),
		End:      outcome.Range.End.Format(DateLayout),
		Year:     outcome.Range.Label,
		Error:    outcome.Error,
		Attempts: outcome.Attempts,
	}
}

// CombinedDataset is the row-union of all successful fetches for one analysis,
// plus the sub-ranges that failed entirely.
type CombinedDataset struct {
	Records      []ActivityRecord
	FailedRanges []FailedRange
	Outcomes     []FetchOutcome
}

// Empty reports whether no activity rows were retrieved.
func (d CombinedDataset) Empty() bool {
	return len(d.Records) == 0
}

package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mpawatch/mpawatch/internal/models"
)

const (
	unknownShipName = "Unknown Vessel"
	unknownFlag     = "UNK"
	unknownGear     = "UNKNOWN"
)

// TrendPolicy holds the fixed thresholds used to label multi-year trends.
type TrendPolicy struct {
	StrongCorrelation   float64
	ModerateCorrelation float64
}

// DefaultTrendPolicy returns the standard correlation thresholds.
func DefaultTrendPolicy() TrendPolicy {
	return TrendPolicy{
		StrongCorrelation:   0.7,
		ModerateCorrelation: 0.4,
	}
}

// Engine turns a combined activity dataset into an AnalysisResult. It
// performs no I/O.
type Engine struct {
	policy TrendPolicy
	now    func() time.Time
}

// NewEngine creates an analysis engine.
func NewEngine(policy TrendPolicy) *Engine {
	return &Engine{policy: policy, now: time.Now}
}

// Analyze computes summary, temporal, gear, vessel and (for ranges longer
// than one year) multi-year statistics.
func (e *Engine) Analyze(dataset models.CombinedDataset, mpaName string, start, end time.Time) models.AnalysisResult {
	records := dataset.Records

	result := models.AnalysisResult{
		Status:       models.AnalysisStatusSuccess,
		MPAName:      mpaName,
		TotalRecords: len(records),
		GeneratedAt:  e.now().UTC(),
		DateRange: &models.DateRange{
			Start: start.Format(models.DateLayout),
			End:   end.Format(models.DateLayout),
		},
		FailedPeriods: dataset.FailedRanges,
	}

	result.Summary = summarize(records)
	result.Temporal = temporal(records)
	result.GearTypes = gearBreakdown(records)
	result.ConservationAlerts = conservationAlerts(result.GearTypes)
	result.Vessels = &models.VesselBreakdown{
		MostActive: vesselRollup(records),
		FlagStates: flagStates(records),
	}

	if models.ExceedsQueryLimit(start, end) {
		result.MultiYear = e.multiYear(records)
	}

	return result
}

func summarize(records []models.ActivityRecord) *models.Summary {
	var total, trawling, dredging float64
	vessels := make(map[string]struct{})

	for _, r := range records {
		total += r.Hours
		if r.VesselID != "" {
			vessels[r.VesselID] = struct{}{}
		}
		if IsTrawling(r.GearType) {
			trawling += r.Hours
		}
		if IsDredging(r.GearType) {
			dredging += r.Hours
		}
	}

	harmful := trawling + dredging
	percentage := 0.0
	if total > 0 {
		percentage = harmful / total * 100
	}

	return &models.Summary{
		TotalFishingHours:        round(total, 2),
		UniqueVessels:            len(vessels),
		HarmfulFishingHours:      round(harmful, 2),
		HarmfulFishingPercentage: round(percentage, 1),
		TrawlingHours:            round(trawling, 2),
		DredgingHours:            round(dredging, 2),
	}
}

func temporal(records []models.ActivityRecord) *models.Temporal {
	monthly := make(map[string]float64)
	trawling := make(map[string]float64)
	dredging := make(map[string]float64)

	for _, r := range records {
		key := r.MonthKey()
		monthly[key] += r.Hours
		if IsTrawling(r.GearType) {
			trawling[key] += r.Hours
		}
		if IsDredging(r.GearType) {
			dredging[key] += r.Hours
		}
	}

	t := &models.Temporal{
		MonthlyHours:    roundValues(monthly),
		MonthlyTrawling: roundValues(trawling),
		MonthlyDredging: roundValues(dredging),
	}

	if len(monthly) > 1 {
		keys := sortedKeys(monthly)
		// YYYY-MM keys sort chronologically.
		if monthly[keys[len(keys)-1]] > monthly[keys[0]] {
			t.Trend = "increasing"
		} else {
			t.Trend = "decreasing"
		}
	}

	return t
}

func gearBreakdown(records []models.ActivityRecord) map[string]models.GearStat {
	hours := make(map[string]float64)
	vessels := make(map[string]map[string]struct{})

	for _, r := range records {
		if r.GearType == "" {
			continue
		}
		hours[r.GearType] += r.Hours
		if vessels[r.GearType] == nil {
			vessels[r.GearType] = make(map[string]struct{})
		}
		if r.VesselID != "" {
			vessels[r.GearType][r.VesselID] = struct{}{}
		}
	}

	out := make(map[string]models.GearStat, len(hours))
	for gear, h := range hours {
		out[gear] = models.GearStat{
			TotalHours:  round(h, 2),
			VesselCount: len(vessels[gear]),
		}
	}
	return out
}

func conservationAlerts(gears map[string]models.GearStat) []models.ConservationAlert {
	var detected []string
	for _, gear := range sortedKeys(gears) {
		if IsHarmfulGearLabel(gear) {
			detected = append(detected, gear)
		}
	}

	alerts := []models.ConservationAlert{}
	if len(detected) > 0 {
		alerts = append(alerts, models.ConservationAlert{
			Type:      "harmful_gear",
			Severity:  "high",
			Message:   fmt.Sprintf("Harmful fishing methods detected: %s", strings.Join(detected, ", ")),
			GearTypes: detected,
		})
	}
	return alerts
}

type vesselAccumulator struct {
	summary    models.VesselSummary
	hours      float64
	gearCounts map[string]int
	gearOrder  []string
}

func vesselRollup(records []models.ActivityRecord) []models.VesselSummary {
	byVessel := make(map[string]*vesselAccumulator)
	var order []string

	for _, r := range records {
		if r.VesselID == "" {
			continue
		}

		acc, ok := byVessel[r.VesselID]
		if !ok {
			// Identity fields come from the first row seen for the vessel.
			acc = &vesselAccumulator{
				summary: models.VesselSummary{
					VesselID: r.VesselID,
					ShipName: valueOr(r.ShipName, unknownShipName),
					Flag:     valueOr(r.Flag, unknownFlag),
					MMSI:     r.MMSI,
				},
				gearCounts: make(map[string]int),
			}
			byVessel[r.VesselID] = acc
			order = append(order, r.VesselID)
		}

		acc.hours += r.Hours
		if r.GearType != "" {
			if acc.gearCounts[r.GearType] == 0 {
				acc.gearOrder = append(acc.gearOrder, r.GearType)
			}
			acc.gearCounts[r.GearType]++
		}
	}

	out := make([]models.VesselSummary, 0, len(order))
	for _, id := range order {
		acc := byVessel[id]
		acc.summary.FishingHours = round(acc.hours, 2)
		acc.summary.PrimaryGearType = primaryGear(acc)
		out = append(out, acc.summary)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FishingHours > out[j].FishingHours
	})
	return out
}

// primaryGear picks the most frequent gear; ties go to the first seen.
func primaryGear(acc *vesselAccumulator) string {
	best, bestCount := unknownGear, 0
	for _, gear := range acc.gearOrder {
		if c := acc.gearCounts[gear]; c > bestCount {
			best, bestCount = gear, c
		}
	}
	return best
}

func flagStates(records []models.ActivityRecord) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		if r.Flag != "" {
			counts[r.Flag]++
		}
	}
	return counts
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func roundValues(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = round(v, 2)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

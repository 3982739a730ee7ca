package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mpawatch/mpawatch/internal/models"
)

// minRegressionYears is the fewest yearly points a linear fit is attempted on.
const minRegressionYears = 3

func (e *Engine) multiYear(records []models.ActivityRecord) *models.MultiYearAnalysis {
	totals := yearlyTotals(records)

	return &models.MultiYearAnalysis{
		YearsAnalyzed: len(totals),
		YearlyTotals:  totals,
		YearOverYear:  yearOverYear(totals),
		Trend:         e.trend(totals),
		Seasonal:      seasonalPattern(records),
	}
}

// yearlyTotals returns one entry per calendar year that has activity, in
// ascending order. Years inside the window without rows are not reported.
func yearlyTotals(records []models.ActivityRecord) []models.YearTotal {
	hours := make(map[int]float64)
	vessels := make(map[int]map[string]struct{})

	for _, r := range records {
		y := r.Date.Year()
		hours[y] += r.Hours
		if r.VesselID == "" {
			continue
		}
		if vessels[y] == nil {
			vessels[y] = make(map[string]struct{})
		}
		vessels[y][r.VesselID] = struct{}{}
	}

	years := make([]int, 0, len(hours))
	for y := range hours {
		years = append(years, y)
	}
	sort.Ints(years)

	totals := make([]models.YearTotal, 0, len(years))
	for _, y := range years {
		totals = append(totals, models.YearTotal{
			Year:          y,
			TotalHours:    round(hours[y], 2),
			UniqueVessels: len(vessels[y]),
		})
	}
	return totals
}

func yearOverYear(totals []models.YearTotal) []models.YearOverYearChange {
	changes := make([]models.YearOverYearChange, 0, len(totals))
	for i := 1; i < len(totals); i++ {
		prev, cur := totals[i-1], totals[i]
		changes = append(changes, models.YearOverYearChange{
			FromYear:              prev.Year,
			ToYear:                cur.Year,
			HoursChange:           round(cur.TotalHours-prev.TotalHours, 2),
			HoursChangePercentage: round(percentChange(prev.TotalHours, cur.TotalHours), 1),
			VesselChange:          cur.UniqueVessels - prev.UniqueVessels,
		})
	}
	return changes
}

// percentChange is 100 when growing from zero and 0 when both values are zero.
func percentChange(prev, cur float64) float64 {
	if prev == 0 {
		if cur > 0 {
			return 100
		}
		return 0
	}
	return (cur - prev) / prev * 100
}

func (e *Engine) trend(totals []models.YearTotal) models.TrendStats {
	if len(totals) == 0 {
		return models.TrendStats{Method: models.TrendMethodSimpleChange, Direction: "stable"}
	}

	first, last := totals[0].TotalHours, totals[len(totals)-1].TotalHours
	change := round(percentChange(first, last), 1)

	if len(totals) < minRegressionYears {
		return models.TrendStats{
			Method:           models.TrendMethodSimpleChange,
			Direction:        directionOf(last - first),
			PercentageChange: change,
		}
	}

	xs := make([]float64, len(totals))
	ys := make([]float64, len(totals))
	for i, t := range totals {
		xs[i] = float64(t.Year)
		ys[i] = t.TotalHours
	}

	fit := linearFit(xs, ys)
	return models.TrendStats{
		Method:           models.TrendMethodLinearRegression,
		Direction:        directionOf(fit.slope),
		Slope:            round(fit.slope, 2),
		Correlation:      round(fit.r, 3),
		Strength:         e.strength(fit.r),
		Significant:      fit.significant(),
		PercentageChange: change,
	}
}

func (e *Engine) strength(r float64) string {
	switch abs := math.Abs(r); {
	case abs >= e.policy.StrongCorrelation:
		return "strong"
	case abs >= e.policy.ModerateCorrelation:
		return "moderate"
	default:
		return "weak"
	}
}

func directionOf(delta float64) string {
	switch {
	case delta > 0:
		return "increasing"
	case delta < 0:
		return "decreasing"
	default:
		return "stable"
	}
}

// seasonalPattern averages monthly totals per calendar month over the
// year-months that have data.
func seasonalPattern(records []models.ActivityRecord) models.SeasonalPattern {
	type yearMonth struct {
		year  int
		month time.Month
	}

	buckets := make(map[yearMonth]float64)
	for _, r := range records {
		buckets[yearMonth{r.Date.Year(), r.Date.Month()}] += r.Hours
	}

	var sums [13]float64
	var counts [13]int
	for ym, h := range buckets {
		sums[ym.month] += h
		counts[ym.month]++
	}

	pattern := models.SeasonalPattern{MonthlyAverages: make(map[string]float64)}

	maxAvg, minAvg := math.Inf(-1), math.Inf(1)
	for m := 1; m <= 12; m++ {
		if counts[m] == 0 {
			continue
		}
		avg := sums[m] / float64(counts[m])
		pattern.MonthlyAverages[fmt.Sprintf("%02d", m)] = round(avg, 2)

		if avg > maxAvg {
			maxAvg, pattern.PeakMonth = avg, m
		}
		if avg < minAvg {
			minAvg, pattern.LowMonth = avg, m
		}
	}

	if pattern.PeakMonth != 0 && minAvg > 0 {
		pattern.SeasonalityRatio = round(maxAvg/minAvg, 2)
	}
	return pattern
}

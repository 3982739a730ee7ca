package analysis

import "strings"

var (
	trawlingKeywords = []string{"trawl", "trawler", "bottom", "otter", "beam"}
	dredgingKeywords = []string{"dredge"}

	// harmfulGearLabels trigger a conservation alert when present in the
	// gear breakdown.
	harmfulGearLabels = []string{"trawlers", "dredge_fishing", "bottom_trawl", "beam_trawl"}
)

// IsTrawling reports whether a gear type label denotes trawling.
func IsTrawling(gearType string) bool {
	return containsAny(gearType, trawlingKeywords)
}

// IsDredging reports whether a gear type label denotes dredging.
func IsDredging(gearType string) bool {
	return containsAny(gearType, dredgingKeywords)
}

// IsHarmfulGearLabel reports whether a gear type label is one that damages
// the seafloor.
func IsHarmfulGearLabel(gearType string) bool {
	return containsAny(gearType, harmfulGearLabels)
}

func containsAny(value string, keywords []string) bool {
	if value == "" {
		return false
	}
	lower := strings.ToLower(value)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

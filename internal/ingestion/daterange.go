package ingestion

import (
	"time"

	"github.com/mpawatch/mpawatch/internal/models"
)

// MaxQueryDays is the longest range the upstream accepts in one query.
const MaxQueryDays = models.MaxQueryDays

// chunkSpanDays is the offset from a chunk's first day to its last.
const chunkSpanDays = 364

// SplitDateRange partitions [start, end] into contiguous, non-overlapping
// sub-ranges the upstream will accept. It returns false when the range fits
// in a single query and no split is needed.
func SplitDateRange(start, end time.Time) ([]models.DateSubRange, bool) {
	start = truncateDay(start)
	end = truncateDay(end)

	if !models.ExceedsQueryLimit(start, end) {
		return nil, false
	}

	var ranges []models.DateSubRange
	for chunkStart := start; !chunkStart.After(end); {
		chunkEnd := chunkStart.AddDate(0, 0, chunkSpanDays)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		ranges = append(ranges, models.DateSubRange{
			Start: chunkStart,
			End:   chunkEnd,
			Label: chunkStart.Year(),
		})

		chunkStart = chunkEnd.AddDate(0, 0, 1)
	}

	return ranges, true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

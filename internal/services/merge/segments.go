package merge

import (
	"math"

	"github.com/princekumarofficial/statements-service/internal/types"
)

// BuildSegments lays the files end to end in the given order. Each segment
// starts where the previous one ended and lasts the file's effective
// duration. The total is the sum of the segment durations.
func BuildSegments(files []types.VideoFile) ([]types.VideoSegmentMetadata, float64) {
	segments := make([]types.VideoSegmentMetadata, 0, len(files))
	cursor := 0.0
	for i, f := range files {
		d := roundMillis(f.EffectiveDuration())
		if d < 0 {
			d = 0
		}
		end := roundMillis(cursor + d)
		segments = append(segments, types.VideoSegmentMetadata{
			SegmentIndex:   i,
			StartTime:      cursor,
			EndTime:        end,
			Duration:       roundMillis(end - cursor),
			StatementIndex: f.VideoIndex,
		})
		cursor = end
	}
	return segments, cursor
}

// roundMillis keeps float sums from drifting off the millisecond grid.
func roundMillis(v float64) float64 {
	return math.Round(v*1000) / 1000
}

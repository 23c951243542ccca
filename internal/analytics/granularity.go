package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/blogpulse/blogpulse/internal/model"
	"github.com/blogpulse/blogpulse/internal/source"
)

// Granularity thresholds for Performance bucket selection.
const (
	monthThreshold = 365 * 24 * time.Hour
	weekThreshold  = 30 * 24 * time.Hour
)

// selectBucket picks the bucket width for a timestamp span: monthly beyond
// a year, weekly beyond a month, daily otherwise.
func selectBucket(span time.Duration) source.Bucket {
	switch {
	case span > monthThreshold:
		return source.BucketMonth
	case span > weekThreshold:
		return source.BucketWeek
	default:
		return source.BucketDay
	}
}

// growthSeries converts chronological bucket rows to points with
// period-over-period growth. The first bucket and any bucket following an
// empty one report 0 growth.
func growthSeries(rows []source.BucketRow) []model.Point {
	points := make([]model.Point, 0, len(rows))
	var prev int64
	for i, row := range rows {
		var growth float64
		if i > 0 && prev != 0 {
			growth = round2(float64(row.Count-prev) / float64(prev) * 100)
		}
		points = append(points, model.Point{
			X: fmt.Sprintf("%s (%d blogs)", row.Start.Format("2006-01-02"), row.DistinctBlogs),
			Y: row.Count,
			Z: growth,
		})
		prev = row.Count
	}
	return points
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

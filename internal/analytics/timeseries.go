package analytics

import (
	"sort"
	"time"

	"github.com/jeetkatariya/experimentation-platform/internal/domain"
)

// Granularity is the width of a time-series bucket.
type Granularity string

const (
	GranularityHour Granularity = "hour"
	GranularityDay  Granularity = "day"
	GranularityWeek Granularity = "week"
)

// Valid reports whether g is a supported granularity.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityHour, GranularityDay, GranularityWeek:
		return true
	}
	return false
}

// TimeSeriesPoint is one (bucket, variant) cell of the chart data.
type TimeSeriesPoint struct {
	Timestamp   time.Time
	VariantID   int64
	VariantName string
	Assignments int
	Events      int
	Conversions int
}

// TruncateToBucket floors t to the start of its bucket: the top of the hour,
// midnight of the day, or midnight of the Monday of its ISO week.
func TruncateToBucket(t time.Time, granularity Granularity) time.Time {
	switch granularity {
	case GranularityHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	case GranularityWeek:
		daysSinceMonday := (int(t.Weekday()) + 6) % 7
		monday := t.AddDate(0, 0, -daysSinceMonday)
		return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, t.Location())
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
}

type bucketCell struct {
	assignments int
	events      int
	converters  map[string]struct{}
}

// BuildTimeSeries groups assignments and attributed events into fixed buckets
// for charting. Only buckets whose start lies within [start, end] are kept.
// Output is independent of input ordering: points are sorted by bucket time
// ascending, then variant id ascending, so a re-run over the same snapshot
// reproduces identical output.
func BuildTimeSeries(
	assignments []domain.Assignment,
	attributed []AttributedEvent,
	variants []domain.Variant,
	start, end time.Time,
	granularity Granularity,
) []TimeSeriesPoint {
	variantNames := make(map[int64]string, len(variants))
	for _, v := range variants {
		variantNames[v.ID] = v.Name
	}

	buckets := make(map[time.Time]map[int64]*bucketCell)
	cell := func(bucket time.Time, variantID int64) *bucketCell {
		byVariant, ok := buckets[bucket]
		if !ok {
			byVariant = make(map[int64]*bucketCell)
			buckets[bucket] = byVariant
		}
		c, ok := byVariant[variantID]
		if !ok {
			c = &bucketCell{converters: make(map[string]struct{})}
			byVariant[variantID] = c
		}
		return c
	}

	inWindow := func(bucket time.Time) bool {
		return !bucket.Before(start) && !bucket.After(end)
	}

	for _, assignment := range assignments {
		bucket := TruncateToBucket(assignment.AssignedAt, granularity)
		if inWindow(bucket) {
			cell(bucket, assignment.VariantID).assignments++
		}
	}

	for _, ae := range attributed {
		bucket := TruncateToBucket(ae.Event.Timestamp, granularity)
		if inWindow(bucket) {
			c := cell(bucket, ae.VariantID)
			c.events++
			c.converters[ae.Event.UserID] = struct{}{}
		}
	}

	points := make([]TimeSeriesPoint, 0, len(buckets))
	for bucket, byVariant := range buckets {
		for variantID, c := range byVariant {
			name, known := variantNames[variantID]
			if !known {
				continue
			}
			points = append(points, TimeSeriesPoint{
				Timestamp:   bucket,
				VariantID:   variantID,
				VariantName: name,
				Assignments: c.assignments,
				Events:      c.events,
				Conversions: len(c.converters),
			})
		}
	}

	sort.Slice(points, func(i, j int) bool {
		if !points[i].Timestamp.Equal(points[j].Timestamp) {
			return points[i].Timestamp.Before(points[j].Timestamp)
		}
		return points[i].VariantID < points[j].VariantID
	})

	return points
}

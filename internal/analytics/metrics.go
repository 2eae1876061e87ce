package analytics

import (
	"math"
	"sort"

	"github.com/jeetkatariya/experimentation-platform/internal/domain"
)

// VariantMetrics holds the aggregated performance of a single variant.
type VariantMetrics struct {
	VariantID             int64
	VariantName           string
	TotalAssignments      int
	TotalEvents           int
	UniqueUsersWithEvents int
	ConversionRate        float64
	EventsPerUser         float64
	EventsByType          map[string]int
}

// Summary holds experiment-wide totals across all variants.
type Summary struct {
	TotalAssignments      int
	TotalEvents           int
	OverallConversionRate float64
}

// Aggregate computes per-variant metrics from attributed events and raw
// assignment counts, plus the experiment-wide summary and the event-type
// histogram across all variants.
//
// Conversion rate is unique converting users over total assignments, as a
// percentage. All rates degrade to 0 when a variant has no assignments; an
// empty input never faults. The metrics slice is sorted ascending by variant
// id so output ordering is deterministic.
func Aggregate(
	variants []domain.Variant,
	attributed []AttributedEvent,
	assignmentCounts map[int64]int,
) ([]VariantMetrics, Summary, map[string]int) {
	variantEvents := make(map[int64][]domain.Event)
	variantUsers := make(map[int64]map[string]struct{})
	eventsByType := make(map[string]int)

	for _, ae := range attributed {
		variantEvents[ae.VariantID] = append(variantEvents[ae.VariantID], ae.Event)
		users, ok := variantUsers[ae.VariantID]
		if !ok {
			users = make(map[string]struct{})
			variantUsers[ae.VariantID] = users
		}
		users[ae.Event.UserID] = struct{}{}
		eventsByType[ae.Event.EventType]++
	}

	metrics := make([]VariantMetrics, 0, len(variants))
	summary := Summary{}
	totalUniqueUsers := 0

	for _, variant := range variants {
		assignments := assignmentCounts[variant.ID]
		events := variantEvents[variant.ID]
		uniqueUsers := len(variantUsers[variant.ID])

		conversionRate := 0.0
		eventsPerUser := 0.0
		if assignments > 0 {
			conversionRate = round2(float64(uniqueUsers) / float64(assignments) * 100)
			eventsPerUser = round2(float64(len(events)) / float64(assignments))
		}

		byType := make(map[string]int)
		for _, event := range events {
			byType[event.EventType]++
		}

		metrics = append(metrics, VariantMetrics{
			VariantID:             variant.ID,
			VariantName:           variant.Name,
			TotalAssignments:      assignments,
			TotalEvents:           len(events),
			UniqueUsersWithEvents: uniqueUsers,
			ConversionRate:        conversionRate,
			EventsPerUser:         eventsPerUser,
			EventsByType:          byType,
		})

		summary.TotalAssignments += assignments
		summary.TotalEvents += len(events)
		totalUniqueUsers += uniqueUsers
	}

	sort.Slice(metrics, func(i, j int) bool { return metrics[i].VariantID < metrics[j].VariantID })

	if summary.TotalAssignments > 0 {
		summary.OverallConversionRate = round2(float64(totalUniqueUsers) / float64(summary.TotalAssignments) * 100)
	}

	return metrics, summary, eventsByType
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

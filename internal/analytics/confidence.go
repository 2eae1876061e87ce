package analytics

import "sort"

// Confidence is a qualitative trust level for an observed lift between the
// top two variants. It is a heuristic over sample size and effect size, not a
// statistical test.
type Confidence string

const (
	ConfidenceLow         Confidence = "low"
	ConfidenceMedium      Confidence = "medium"
	ConfidenceHigh        Confidence = "high"
	ConfidenceSignificant Confidence = "significant"
)

// ConfidenceLevel classifies how trustworthy the difference between a control
// and a treatment variant is, from (conversions, total assignments) pairs.
func ConfidenceLevel(controlConversions, controlTotal, treatmentConversions, treatmentTotal int) Confidence {
	if controlTotal < 30 || treatmentTotal < 30 {
		return ConfidenceLow
	}
	if controlTotal == 0 || treatmentTotal == 0 {
		return ConfidenceLow
	}

	controlRate := float64(controlConversions) / float64(controlTotal)
	treatmentRate := float64(treatmentConversions) / float64(treatmentTotal)

	var lift float64
	if controlRate == 0 {
		if treatmentRate > 0 {
			lift = 1.0
		}
	} else {
		lift = (treatmentRate - controlRate) / controlRate
	}
	if lift < 0 {
		lift = -lift
	}

	minSample := controlTotal
	if treatmentTotal < minSample {
		minSample = treatmentTotal
	}

	switch {
	case minSample >= 1000 && lift >= 0.1:
		return ConfidenceSignificant
	case minSample >= 500 && lift >= 0.15:
		return ConfidenceHigh
	case minSample >= 100 && lift >= 0.2:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// LeadingVariant picks the variant with the top conversion rate and scores
// the confidence of its lead over the runner-up. The lead is undefined (empty
// name, low confidence) when fewer than two variants exist or the top rate
// is zero.
func LeadingVariant(metrics []VariantMetrics) (string, Confidence) {
	if len(metrics) < 2 {
		return "", ConfidenceLow
	}

	ranked := make([]VariantMetrics, len(metrics))
	copy(ranked, metrics)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].ConversionRate > ranked[j].ConversionRate })

	top, second := ranked[0], ranked[1]
	if top.ConversionRate == 0 {
		return "", ConfidenceLow
	}

	confidence := ConfidenceLevel(
		int(second.ConversionRate*float64(second.TotalAssignments)/100),
		second.TotalAssignments,
		int(top.ConversionRate*float64(top.TotalAssignments)/100),
		top.TotalAssignments,
	)

	return top.VariantName, confidence
}

// Package analytics holds the pure computation core of the platform: variant
// selection, event attribution, metric aggregation, the confidence heuristic
// and time-series bucketing. Nothing in this package performs I/O or mutates
// shared state, so every function is safe for unbounded parallel use.
package analytics

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/jeetkatariya/experimentation-platform/internal/domain"
)

// Bucket computes the deterministic allocation bucket for a user within an
// experiment. It hashes "<experimentID>:<userID>" with SHA-256 and maps the
// first 8 bytes, read big-endian, into [0,100).
func Bucket(experimentID int64, userID string) uint64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", experimentID, userID)))
	return binary.BigEndian.Uint64(sum[:8]) % 100
}

// SelectVariant deterministically picks a variant for a user based on traffic
// allocation. The same (experiment, user, variants) input always yields the
// same variant, independent of the order variants are supplied in.
//
// Variants are walked in ascending id order, accumulating allocation; the
// first variant whose cumulative allocation exceeds the user's bucket wins.
// If floating-point drift leaves the bucket uncovered, the last variant in
// sorted order is returned.
func SelectVariant(experimentID int64, userID string, variants []domain.Variant) (domain.Variant, error) {
	if len(variants) == 0 {
		return domain.Variant{}, &domain.ConfigurationError{Reason: "experiment has no variants configured"}
	}

	sorted := make([]domain.Variant, len(variants))
	copy(sorted, variants)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	bucket := float64(Bucket(experimentID, userID))

	cumulative := 0.0
	for _, variant := range sorted {
		cumulative += variant.TrafficAllocation
		if bucket < cumulative {
			return variant, nil
		}
	}

	return sorted[len(sorted)-1], nil
}

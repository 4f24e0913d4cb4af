package selection

import (
	"cmp"
	"slices"

	"github.com/testhub/testhub-backend/internal/model"
)

// MergeDistribution sums the quantities of entries sharing a
// (type, format) key. The result is in canonical key order and drops
// zero-quantity entries, so merging is independent of input order.
func MergeDistribution(entries []model.DistributionEntry) []model.DistributionEntry {
	totals := make(map[Bucket]int, len(entries))
	for _, e := range entries {
		totals[Bucket{Type: e.QuestionType, Format: e.QuestionFormat}] += e.Quantity
	}

	merged := make([]model.DistributionEntry, 0, len(totals))
	for b, qty := range totals {
		if qty <= 0 {
			continue
		}
		merged = append(merged, model.DistributionEntry{
			QuestionType:   b.Type,
			QuestionFormat: b.Format,
			Quantity:       qty,
		})
	}
	slices.SortFunc(merged, func(a, b model.DistributionEntry) int {
		if c := rank(model.QuestionTypes, a.QuestionType) - rank(model.QuestionTypes, b.QuestionType); c != 0 {
			return c
		}
		if c := rank(model.QuestionFormats, a.QuestionFormat) - rank(model.QuestionFormats, b.QuestionFormat); c != 0 {
			return c
		}
		// Unknown values share a rank; fall back to lexical order.
		if a.QuestionType != b.QuestionType {
			return cmp.Compare(a.QuestionType, b.QuestionType)
		}
		return cmp.Compare(a.QuestionFormat, b.QuestionFormat)
	})
	return merged
}

// TotalQuantity is the number of questions a distribution asks for.
func TotalQuantity(entries []model.DistributionEntry) int {
	n := 0
	for _, e := range entries {
		n += e.Quantity
	}
	return n
}

func rank[T comparable](order []T, v T) int {
	if i := slices.Index(order, v); i >= 0 {
		return i
	}
	return len(order)
}

package repository

import (
	"slices"
	"strings"

	"github.com/amirphl/docnum/models"
)

// SortNewestFirst orders entries by ordering key, which is reverse chronological
func SortNewestFirst(entries []*models.NumberLog) {
	slices.SortFunc(entries, func(a, b *models.NumberLog) int {
		return strings.Compare(a.ID, b.ID)
	})
}

// SelectEntries filters, orders and pages entries read from a store that cannot
// keep them ordered across scopes. limit <= 0 means no limit.
func SelectEntries(entries []*models.NumberLog, filter models.NumberLogFilter, limit, offset int) []*models.NumberLog {
	matched := make([]*models.NumberLog, 0, len(entries))
	for _, entry := range entries {
		if filter.Matches(entry) {
			matched = append(matched, entry)
		}
	}
	SortNewestFirst(matched)
	return pageSlice(matched, limit, offset)
}

// AccumulateStatistics computes statistics over the matching entries
func AccumulateStatistics(entries []*models.NumberLog, filter models.NumberLogFilter) *models.NumberLogStatistics {
	stats := models.NewNumberLogStatistics()
	for _, entry := range entries {
		if filter.Matches(entry) {
			stats.Add(entry)
		}
	}
	return stats
}

func pageSlice[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

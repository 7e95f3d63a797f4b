package models

import (
	"cmp"
	"slices"
)

// DedupByID drops items repeating an earlier id, keeping the last copy, and sorts the rest by id.
// The same item can arrive twice from overlapping pages, channels or realtime streams.
func DedupByID[T Item](items []T) []T {
	byID := make(map[uint64]T, len(items))
	for _, item := range items {
		byID[item.GetID()] = item
	}

	out := make([]T, 0, len(byID))
	for _, item := range byID {
		out = append(out, item)
	}
	slices.SortFunc(out, func(a, b T) int { return cmp.Compare(a.GetID(), b.GetID()) })

	return out
}

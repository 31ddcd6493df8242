// Package clustering implements the merge, split and deprecation resolvers
// that keep the one-active-accession-per-locus invariant. Resolvers are pure
// where possible; the stateful appliers (Merger, Splitter, Deprecator) own
// the store writes and the history records.
package clustering

// DedupeBy returns items with later duplicates (by key) removed. Order is
// preserved and the first occurrence wins.
func DedupeBy[T any, K comparable](items []T, key func(T) K) []T {
	seen := make(map[K]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		k := key(item)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}

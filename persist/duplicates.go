package persist

// Duplicates returns every element of list that occurs more than once,
// preserving first-encounter order and reporting each offender once.
//
// The configuration layer applies this separately to top-level and per-user
// directory and file lists; a non-empty result blocks materialization.
func Duplicates[T comparable](list []T) []T {
	counts := make(map[T]int, len(list))
	for _, item := range list {
		counts[item]++
	}

	var dupes []T

	reported := make(map[T]bool)

	for _, item := range list {
		if counts[item] > 1 && !reported[item] {
			reported[item] = true
			dupes = append(dupes, item)
		}
	}

	return dupes
}

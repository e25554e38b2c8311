package geo

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/example/cafescout/internal/discovery/domain"
)

// nameCollator orders cafe names the way a Spanish-speaking user expects
// (accents and case folded).
var nameCollator = collate.New(language.Spanish, collate.IgnoreCase)

// SortCafes returns a sorted copy of the list. Distance sorts ascending with
// missing distances last, rating descending with nil as zero, name ascending
// with locale-aware collation. All orderings are stable.
func SortCafes(cafes []domain.CafeRecord, by domain.SortCriterion) []domain.CafeRecord {
	out := append([]domain.CafeRecord(nil), cafes...)
	switch by {
	case domain.SortByRating:
		sort.SliceStable(out, func(i, j int) bool {
			return ratingOrZero(out[i].Rating) > ratingOrZero(out[j].Rating)
		})
	case domain.SortByName:
		sort.SliceStable(out, func(i, j int) bool {
			return nameCollator.CompareString(out[i].Name, out[j].Name) < 0
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return distanceOrSentinel(out[i].DistanceKm) < distanceOrSentinel(out[j].DistanceKm)
		})
	}
	return out
}

// FilterByTags keeps cafes carrying at least one of the requested tags.
// An empty tag list passes everything.
func FilterByTags(cafes []domain.CafeRecord, tags []string) []domain.CafeRecord {
	if len(tags) == 0 {
		return cafes
	}
	wanted := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		wanted[t] = struct{}{}
	}
	out := make([]domain.CafeRecord, 0, len(cafes))
	for _, cafe := range cafes {
		for _, t := range cafe.Tags {
			if _, ok := wanted[t]; ok {
				out = append(out, cafe)
				break
			}
		}
	}
	return out
}

// Apply runs the full filter pipeline (tags, minimum rating, open-now) and
// sorts the survivors by the effective criterion.
func Apply(cafes []domain.CafeRecord, opts domain.FilterOptions) []domain.CafeRecord {
	filtered := FilterByTags(cafes, opts.Tags)
	if opts.MinRating > 0 || opts.OnlyOpen {
		kept := make([]domain.CafeRecord, 0, len(filtered))
		for _, cafe := range filtered {
			if ratingOrZero(cafe.Rating) < opts.MinRating {
				continue
			}
			if opts.OnlyOpen && !cafe.IsOpenNow {
				continue
			}
			kept = append(kept, cafe)
		}
		filtered = kept
	}
	return SortCafes(filtered, opts.Criterion())
}

// Closest returns the cafe with the smallest computed distance, falling back
// to the first element when no distances are known. The boolean is false for
// an empty list.
func Closest(cafes []domain.CafeRecord) (domain.CafeRecord, bool) {
	if len(cafes) == 0 {
		return domain.CafeRecord{}, false
	}
	best := cafes[0]
	for _, cafe := range cafes[1:] {
		if distanceOrSentinel(cafe.DistanceKm) < distanceOrSentinel(best.DistanceKm) {
			best = cafe
		}
	}
	return best, true
}

package calendar

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// MatchAllPattern lists every area.
const MatchAllPattern = ".*"

var nonWordChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// OutagesForArea returns the outages whose area name equals area exactly.
// An empty result is reported as a *NotFoundError.
func OutagesForArea(all []PowerOutage, area string) ([]PowerOutage, error) {
	var matched []PowerOutage
	for _, outage := range all {
		if outage.AreaName == area {
			matched = append(matched, outage)
		}
	}
	if len(matched) == 0 {
		return nil, &NotFoundError{Area: area}
	}
	return matched, nil
}

// ListAreas returns the sorted, distinct area names matching pattern.
// The pattern is unanchored, so "cape" matches any name containing it.
func ListAreas(all []PowerOutage, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &RegexError{Pattern: pattern, Err: err}
	}

	seen := make(map[string]struct{})
	for _, outage := range all {
		if _, ok := seen[outage.AreaName]; ok {
			continue
		}
		if re.MatchString(outage.AreaName) {
			seen[outage.AreaName] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

// ListAllAreas returns every distinct area name, sorted.
func ListAllAreas(all []PowerOutage) []string {
	areas, _ := ListAreas(all, MatchAllPattern)
	return areas
}

// FuzzySearch ranks the distinct area names against query, best match first.
// Names that do not contain the query as a subsequence are dropped. Equal
// scores keep alphabetical order.
func FuzzySearch(all []PowerOutage, query string) []SearchResult[Area] {
	names := ListAllAreas(all)
	normalized := make([]string, len(names))
	for i, name := range names {
		normalized[i] = normalizeSearchText(name)
	}

	matches := fuzzy.FindNoSort(normalizeSearchText(query), normalized)

	results := make([]SearchResult[Area], 0, len(matches))
	for _, m := range matches {
		results = append(results, SearchResult[Area]{
			Score:  m.Score,
			Result: NewNamedArea(names[m.Index]),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[j].Less(results[i])
	})
	return results
}

// normalizeSearchText lower-cases s and replaces anything outside [A-Za-z0-9_] with a space.
func normalizeSearchText(s string) string {
	return strings.ToLower(nonWordChars.ReplaceAllString(s, " "))
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

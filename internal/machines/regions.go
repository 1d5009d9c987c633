package machines

import "sort"

// CandidateRegions expands region into the ordered list of regions to try.
// A group name expands to its members, an unknown name is taken as a
// single region code, and an empty region yields every configured region
// (groups in name order, duplicates dropped).
func CandidateRegions(groups map[string][]string, region string) []string {
	if region != "" {
		if members, ok := groups[region]; ok {
			return append([]string(nil), members...)
		}
		return []string{region}
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]bool)
	var all []string
	for _, name := range names {
		for _, r := range groups[name] {
			if !seen[r] {
				seen[r] = true
				all = append(all, r)
			}
		}
	}
	return all
}

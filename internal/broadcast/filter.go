package broadcast

import "strings"

// parsePairsFilter parses the ?pairs=BASE/TARGET,BASE2/TARGET2 query
// param into a subscription set. An empty or blank param means
// "subscribe to all pairs".
func parsePairsFilter(raw string) map[string]struct{} {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]struct{}{}
	}

	pairs := map[string]struct{}{}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			pairs[p] = struct{}{}
		}
	}
	return pairs
}

package worker

import (
	"sort"
	"strings"
)

// MergeEnv добавляет extra к ambient (формат "K=V").
// Переменные, уже заданные в ambient, не перезаписываются.
func MergeEnv(ambient []string, extra map[string]string) []string {
	present := make(map[string]struct{}, len(ambient))
	for _, kv := range ambient {
		name, _, _ := strings.Cut(kv, "=")
		present[name] = struct{}{}
	}

	names := make([]string, 0, len(extra))
	for name := range extra {
		if _, ok := present[name]; ok || name == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	merged := make([]string, 0, len(ambient)+len(names))
	merged = append(merged, ambient...)
	for _, name := range names {
		merged = append(merged, name+"="+extra[name])
	}
	return merged
}

package template

import (
	"encoding/json"
	"strings"
)

// NormalizeConstants converts a template's declared variable list, in any of
// the encodings that have existed at the storage boundary, into one canonical
// deduplicated ordered list:
//
//   - a native string list is deduplicated and returned;
//   - a string that decodes as a JSON array is decoded, non-string elements
//     dropped;
//   - any other string is split on commas, pieces trimmed, empties dropped;
//   - everything else (nil, numbers, objects) yields an empty list.
//
// Old records still carry the older encodings, so every consumer goes through
// this function once at the repository boundary and never re-parses. It never
// fails: a corrupt encoding degrades to best-effort comma splitting.
func NormalizeConstants(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return []string{}
	case []string:
		return dedup(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return dedup(out)
	case string:
		return normalizeString(v)
	default:
		return []string{}
	}
}

func normalizeString(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}

	var decoded []any
	if err := json.Unmarshal([]byte(s), &decoded); err == nil {
		out := make([]string, 0, len(decoded))
		for _, item := range decoded {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return dedup(out)
	}

	// Legacy comma-separated encoding, also the fallback for anything that
	// does not decode as a JSON array.
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return dedup(out)
}

// dedup removes duplicates, keeping first occurrence order.
func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

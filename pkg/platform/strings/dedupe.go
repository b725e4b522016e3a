// Package strings provides helpers for multi-select request values.
package strings

import (
	"slices"
	"strings"
)

// ParseMulti flattens repeated and comma-separated query values into a
// trimmed, de-duplicated list. Order of first appearance is preserved.
//
// Example:
//
//	ParseMulti([]string{"HIV, Malaria", "HIV", " "})
//	// Returns: []string{"HIV", "Malaria"}
func ParseMulti(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, raw := range values {
		for _, v := range strings.Split(raw, ",") {
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				continue
			}
			if _, ok := seen[trimmed]; !ok {
				seen[trimmed] = struct{}{}
				result = append(result, trimmed)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// SortedUnique returns the distinct non-empty values in ascending order.
// It backs every "options" list a dashboard offers for a multi-select.
func SortedUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	slices.Sort(result)
	return result
}

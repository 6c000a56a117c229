// Package template implements the placeholder engine for newsletter
// templates: extraction, classification, declared-list normalization and
// rendering of flat {{identifier}} placeholders.
//
// This is deliberately not a general templating language. There are no
// conditionals, loops, filters or nested expressions, and rendering performs
// exactly one substitution pass so that operator-supplied values containing
// placeholder syntax are never re-expanded.
package template

import (
	"regexp"
	"sort"
)

// varPattern matches a placeholder: {{identifier}} with no surrounding
// whitespace inside the braces. Anything else between {{ and }} is left alone.
var varPattern = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// ExtractVariables scans text and returns the unique placeholder identifiers
// it contains, lexicographically sorted. Total over all inputs; an empty or
// placeholder-free string yields an empty slice.
func ExtractVariables(text string) []string {
	if text == "" {
		return []string{}
	}

	seen := make(map[string]struct{})
	for _, m := range varPattern.FindAllStringSubmatch(text, -1) {
		seen[m[1]] = struct{}{}
	}

	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

// Render replaces every {{identifier}} occurrence in text with the bound
// value. Placeholders with no binding are preserved verbatim, which keeps
// partial-data previews legible and shows the operator what is still missing.
// Single pass: replacement values are never re-scanned for placeholders.
func Render(text string, values map[string]string) string {
	if text == "" {
		return text
	}
	return varPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[2 : len(match)-2]
		if v, ok := values[name]; ok {
			return v
		}
		return match
	})
}

// RenderFields renders subject, HTML and text bodies against one value map.
func RenderFields(subject, html, text string, values map[string]string) (string, string, string) {
	return Render(subject, values), Render(html, values), Render(text, values)
}

package stats

import (
	"cmp"
	"slices"
	"strings"
)

// excludedLanguages holds lowercased detector labels that do not represent
// authored program code.
var excludedLanguages = map[string]struct{}{
	"html":             {},
	"markdown":         {},
	"dockerfile":       {},
	"roff":             {},
	"rich text format": {},
	"powershell":       {},
	"css":              {},
	"php":              {},
}

// IsExcludedLanguage reports whether a language label is dropped from language totals.
func IsExcludedLanguage(name string) bool {
	_, ok := excludedLanguages[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// NormalizeLanguages returns one entry per distinct language name, summing the
// byte values of every entry with that name and keeping the color of the first
// occurrence. The result is sorted descending by value; ties keep first-seen order.
func NormalizeLanguages(languages []Language) []Language {
	out := make([]Language, 0, len(languages))
	seen := make(map[string]struct{}, len(languages))
	for _, language := range languages {
		if _, ok := seen[language.LanguageName]; ok {
			continue
		}
		seen[language.LanguageName] = struct{}{}

		var total int64
		for _, candidate := range languages {
			if candidate.LanguageName == language.LanguageName {
				total += candidate.Value
			}
		}

		entry := Language{
			LanguageName: language.LanguageName,
			Value:        total,
		}
		if language.Color != nil {
			color := *language.Color
			entry.Color = &color
		}
		out = append(out, entry)
	}

	slices.SortStableFunc(out, func(a, b Language) int {
		return cmp.Compare(b.Value, a.Value)
	})
	return out
}

package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func color(value string) *string {
	return &value
}

func TestNormalizeLanguages(t *testing.T) {
	t.Parallel()

	in := []Language{
		{LanguageName: "Go", Color: color("#00ADD8"), Value: 100},
		{LanguageName: "Python", Color: color("#3572A5"), Value: 50},
		{LanguageName: "Go", Color: color("#ffffff"), Value: 25},
	}

	got := NormalizeLanguages(in)
	require.Len(t, got, 2)
	assert.Equal(t, "Go", got[0].LanguageName)
	assert.Equal(t, int64(125), got[0].Value)
	require.NotNil(t, got[0].Color)
	assert.Equal(t, "#00ADD8", *got[0].Color)
	assert.Equal(t, "Python", got[1].LanguageName)
	assert.Equal(t, int64(50), got[1].Value)
}

func TestNormalizeLanguagesOrdering(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		in        []Language
		wantNames []string
	}{
		{
			name: "later_duplicates_can_overtake",
			in: []Language{
				{LanguageName: "Rust", Value: 40},
				{LanguageName: "Go", Value: 30},
				{LanguageName: "Go", Value: 30},
			},
			wantNames: []string{"Go", "Rust"},
		},
		{
			name: "ties_keep_first_seen_order",
			in: []Language{
				{LanguageName: "Zig", Value: 10},
				{LanguageName: "C", Value: 10},
				{LanguageName: "Ada", Value: 10},
			},
			wantNames: []string{"Zig", "C", "Ada"},
		},
		{
			name:      "empty_input",
			in:        nil,
			wantNames: []string{},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := NormalizeLanguages(tc.in)
			names := make([]string, 0, len(got))
			for _, language := range got {
				names = append(names, language.LanguageName)
			}
			assert.Equal(t, tc.wantNames, names)
		})
	}
}

func TestNormalizeLanguagesNilColorAndPurity(t *testing.T) {
	t.Parallel()

	in := []Language{
		{LanguageName: "Shell", Value: 5},
		{LanguageName: "Shell", Color: color("#89e051"), Value: 5},
	}
	got := NormalizeLanguages(in)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Color, "color comes from the first occurrence even when null")
	assert.Equal(t, int64(5), in[0].Value)

	*in[1].Color = "#000000"
	assert.Nil(t, got[0].Color)
}

func TestIsExcludedLanguage(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"CSS", "css", "HTML", "Rich Text Format", " PowerShell ", "PHP", "Roff", "Dockerfile", "Markdown"} {
		assert.True(t, IsExcludedLanguage(name), name)
	}
	for _, name := range []string{"Go", "SCSS", "JavaScript", "Hack"} {
		assert.False(t, IsExcludedLanguage(name), name)
	}
}

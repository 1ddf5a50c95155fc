package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCalendar(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   []ContributionDay
		want []ContributionDay
	}{
		{
			name: "sums_duplicates_and_sorts",
			in: []ContributionDay{
				{Date: "2024-01-02", ContributionCount: 1},
				{Date: "2024-01-01", ContributionCount: 3},
				{Date: "2024-01-01", ContributionCount: 5},
			},
			want: []ContributionDay{
				{Date: "2024-01-01", ContributionCount: 8},
				{Date: "2024-01-02", ContributionCount: 1},
			},
		},
		{
			name: "collapses_three_entries_for_one_date",
			in: []ContributionDay{
				{Date: "2024-01-01", ContributionCount: 1},
				{Date: "2024-01-01", ContributionCount: 2},
				{Date: "2024-01-01", ContributionCount: 3},
			},
			want: []ContributionDay{
				{Date: "2024-01-01", ContributionCount: 6},
			},
		},
		{
			name: "collapses_runs_between_distinct_dates",
			in: []ContributionDay{
				{Date: "2024-03-01", ContributionCount: 1},
				{Date: "2024-02-01", ContributionCount: 1},
				{Date: "2024-03-01", ContributionCount: 1},
				{Date: "2024-02-01", ContributionCount: 1},
				{Date: "2024-03-01", ContributionCount: 1},
				{Date: "2024-02-01", ContributionCount: 1},
				{Date: "2024-01-01", ContributionCount: 4},
			},
			want: []ContributionDay{
				{Date: "2024-01-01", ContributionCount: 4},
				{Date: "2024-02-01", ContributionCount: 3},
				{Date: "2024-03-01", ContributionCount: 3},
			},
		},
		{
			name: "sorted_distinct_dates_unchanged",
			in: []ContributionDay{
				{Date: "2023-12-31", ContributionCount: 0},
				{Date: "2024-01-01", ContributionCount: 2},
				{Date: "2024-01-02", ContributionCount: 7},
			},
			want: []ContributionDay{
				{Date: "2023-12-31", ContributionCount: 0},
				{Date: "2024-01-01", ContributionCount: 2},
				{Date: "2024-01-02", ContributionCount: 7},
			},
		},
		{
			name: "timestamp_and_date_of_same_day_collapse",
			in: []ContributionDay{
				{Date: "2024-05-05", ContributionCount: 1},
				{Date: "2024-05-05T00:00:00Z", ContributionCount: 2},
			},
			want: []ContributionDay{
				{Date: "2024-05-05", ContributionCount: 3},
			},
		},
		{
			name: "empty_input",
			in:   nil,
			want: []ContributionDay{},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, NormalizeCalendar(tc.in))
		})
	}
}

func TestNormalizeCalendarDoesNotModifyInput(t *testing.T) {
	t.Parallel()

	in := []ContributionDay{
		{Date: "2024-01-02", ContributionCount: 1},
		{Date: "2024-01-01", ContributionCount: 3},
		{Date: "2024-01-01", ContributionCount: 5},
	}
	snapshot := append([]ContributionDay(nil), in...)

	out := NormalizeCalendar(in)
	require.Len(t, out, 2)
	assert.Equal(t, snapshot, in)

	out[0].ContributionCount = 100
	assert.Equal(t, 3, in[1].ContributionCount)
}

func TestNormalizeCalendarIsIdempotent(t *testing.T) {
	t.Parallel()

	in := []ContributionDay{
		{Date: "2022-07-04", ContributionCount: 2},
		{Date: "2021-07-04", ContributionCount: 1},
		{Date: "2022-07-04", ContributionCount: 9},
	}
	once := NormalizeCalendar(in)
	assert.Equal(t, once, NormalizeCalendar(once))
}

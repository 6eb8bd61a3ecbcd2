package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const brt = -180

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return v
}

func TestResolve(t *testing.T) {
	type want struct {
		start string
		end   string
		label string
	}

	tests := []struct {
		name   string
		period Period
		date   string
		offset int
		now    string
		want   want
	}{
		{
			name:   "today late evening local belongs to previous utc day",
			period: Today,
			offset: brt,
			now:    "2025-12-05T02:00:00Z",
			want: want{
				start: "2025-12-04T03:00:00Z",
				end:   "2025-12-05T03:00:00Z",
				label: "Today",
			},
		},
		{
			name:   "yesterday",
			period: Yesterday,
			offset: brt,
			now:    "2025-12-05T15:00:00Z",
			want: want{
				start: "2025-12-04T03:00:00Z",
				end:   "2025-12-05T03:00:00Z",
				label: "Yesterday",
			},
		},
		{
			name:   "last7 ends at now",
			period: Last7,
			offset: brt,
			now:    "2025-12-05T15:30:00Z",
			want: want{
				start: "2025-11-29T03:00:00Z",
				end:   "2025-12-05T15:30:00Z",
				label: "Last 7 days",
			},
		},
		{
			name:   "last30 ends at now",
			period: Last30,
			offset: brt,
			now:    "2025-12-05T15:30:00Z",
			want: want{
				start: "2025-11-06T03:00:00Z",
				end:   "2025-12-05T15:30:00Z",
				label: "Last 30 days",
			},
		},
		{
			name:   "custom date pins the local day",
			period: Custom,
			date:   "2025-03-10",
			offset: brt,
			now:    "2025-12-05T15:30:00Z",
			want: want{
				start: "2025-03-10T03:00:00Z",
				end:   "2025-03-11T03:00:00Z",
				label: "10/03/2025",
			},
		},
		{
			name:   "yesterday relative to reference date",
			period: Yesterday,
			date:   "2025-03-10",
			offset: brt,
			now:    "2025-12-05T15:30:00Z",
			want: want{
				start: "2025-03-09T03:00:00Z",
				end:   "2025-03-10T03:00:00Z",
				label: "Yesterday",
			},
		},
		{
			name:   "last7 with reference date ends at end of that day",
			period: Last7,
			date:   "2025-03-10",
			offset: brt,
			now:    "2025-12-05T15:30:00Z",
			want: want{
				start: "2025-03-04T03:00:00Z",
				end:   "2025-03-11T03:00:00Z",
				label: "Last 7 days",
			},
		},
		{
			name:   "unparsable date falls back to now",
			period: Custom,
			date:   "10/03/2025",
			offset: brt,
			now:    "2025-12-05T15:30:00Z",
			want: want{
				start: "2025-12-05T03:00:00Z",
				end:   "2025-12-06T03:00:00Z",
				label: "Today",
			},
		},
		{
			name:   "positive offset",
			period: Today,
			offset: 330,
			now:    "2025-12-04T20:00:00Z",
			want: want{
				start: "2025-12-04T18:30:00Z",
				end:   "2025-12-05T18:30:00Z",
				label: "Today",
			},
		},
		{
			name:   "utc",
			period: Today,
			offset: 0,
			now:    "2025-12-04T23:59:59Z",
			want: want{
				start: "2025-12-04T00:00:00Z",
				end:   "2025-12-05T00:00:00Z",
				label: "Today",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Resolve(tt.period, tt.date, tt.offset, mustTime(t, tt.now))

			assert.Equal(t, mustTime(t, tt.want.start), r.Start)
			assert.Equal(t, mustTime(t, tt.want.end), r.End)
			assert.Equal(t, tt.want.label, r.Label)
		})
	}
}

func TestResolve_IndependentOfHostZone(t *testing.T) {
	now := mustTime(t, "2025-12-05T02:00:00Z")
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("zoneinfo not available")
	}

	a := Resolve(Today, "", brt, now)
	b := Resolve(Today, "", brt, now.In(loc))

	assert.True(t, a.Start.Equal(b.Start))
	assert.True(t, a.End.Equal(b.End))
}

func TestParsePeriod(t *testing.T) {
	assert.Equal(t, Last7, ParsePeriod("last7"))
	assert.Equal(t, Last30, ParsePeriod(" LAST30 "))
	assert.Equal(t, Custom, ParsePeriod("custom"))
	assert.Equal(t, Today, ParsePeriod("fortnight"))
	assert.Equal(t, Today, ParsePeriod(""))
}

func TestRangeHelpers(t *testing.T) {
	now := mustTime(t, "2025-12-05T02:00:00Z")

	today := Resolve(Today, "", brt, now)
	assert.True(t, today.SingleDay())
	assert.Equal(t, "2025-12-04", today.LocalDate(now))
	assert.Equal(t, 23, today.LocalHour(now))
	assert.Equal(t, []string{"2025-12-04"}, today.Days())
	assert.True(t, today.Contains(today.Start))
	assert.False(t, today.Contains(today.End))

	week := Resolve(Last7, "", brt, now)
	assert.False(t, week.SingleDay())
	days := week.Days()
	require.Len(t, days, 7)
	assert.Equal(t, "2025-11-28", days[0])
	assert.Equal(t, "2025-12-04", days[6])

	first, last := week.DateBounds()
	assert.Equal(t, "2025-11-28", first)
	assert.Equal(t, "2025-12-04", last)
	assert.True(t, week.ContainsDate("2025-12-01"))
	assert.False(t, week.ContainsDate("2025-12-05"))
}

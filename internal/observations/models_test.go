package observations

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.String())
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d.Time())

	for _, bad := range []string{"", "2023-02-29", "2024-1-5", "05-01-2024", "2024-01-05T00:00:00Z"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestDateOfUsesUTCDay(t *testing.T) {
	cph := time.FixedZone("CET", 3600)
	// 00:30 local on Jan 6 is still Jan 5 in UTC.
	d := DateOf(time.Date(2024, 1, 6, 0, 30, 0, 0, cph))
	assert.Equal(t, "2024-01-05", d.String())
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2023, 12, 31)
	assert.Equal(t, "2024-01-01", d.AddDays(1).String())
	assert.Equal(t, "2023-12-28", d.AddDays(-3).String())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.After(d.AddDays(-1)))
	assert.True(t, d.Equal(NewDate(2023, 12, 31)))
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(DateRange{From: NewDate(2024, 1, 5), To: NewDate(2024, 1, 9)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"2024-01-05","to":"2024-01-09"}`, string(b))

	var r DateRange
	require.NoError(t, json.Unmarshal(b, &r))
	assert.Equal(t, 5, r.Days())

	assert.Error(t, json.Unmarshal([]byte(`{"from":"nope"}`), &r))
}

func TestDateRangeDates(t *testing.T) {
	r := DateRange{From: NewDate(2024, 2, 27), To: NewDate(2024, 3, 1)}

	var got []string
	for _, d := range r.Dates() {
		got = append(got, d.String())
	}
	assert.Equal(t, []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01"}, got)
	assert.True(t, r.Contains(NewDate(2024, 2, 29)))
	assert.False(t, r.Contains(NewDate(2024, 3, 2)))

	empty := DateRange{From: NewDate(2024, 3, 2), To: NewDate(2024, 3, 1)}
	assert.Equal(t, 0, empty.Days())
	assert.Empty(t, empty.Dates())
}

func TestDateRangeDaysSpansCenturies(t *testing.T) {
	r := DateRange{From: NewDate(1600, time.January, 1), To: NewDate(2024, time.January, 1)}
	assert.Equal(t, 154864, r.Days())

	r = DateRange{From: EarliestStart, To: NewDate(1900, time.December, 31)}
	assert.Equal(t, 365, r.Days())
}

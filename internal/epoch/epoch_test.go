package epoch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromTime_TruncatesToMinute(t *testing.T) {
	base := time.Date(2020, 3, 14, 15, 9, 0, 0, time.UTC)

	m := FromTime(base)
	assert.Equal(t, m, FromTime(base.Add(30*time.Second)))
	assert.Equal(t, m+1, FromTime(base.Add(time.Minute)))
}

func TestMinutes_RoundTrip(t *testing.T) {
	base := time.Date(2021, 7, 1, 12, 34, 0, 0, time.UTC)

	m := FromTime(base)
	assert.True(t, base.Equal(m.Time()))
}

func TestMinutes_Day(t *testing.T) {
	// Midnight and 23:59 of the same UTC day map to the same epoch day.
	midnight := time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC)
	lastMinute := time.Date(2022, 1, 2, 23, 59, 0, 0, time.UTC)
	nextDay := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, FromTime(midnight).Day(), FromTime(lastMinute).Day())
	assert.Equal(t, FromTime(midnight).Day()+1, FromTime(nextDay).Day())
}

func TestMinutes_DayMatchesKnownValue(t *testing.T) {
	// 1970-01-02 00:00 UTC is epoch day 1.
	m := FromTime(time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, Days(1), m.Day())
	assert.Equal(t, Minutes(MinutesPerDay), m)
}

// Package epoch represents time as small integer counters.
//
// Every timestamp that enters the ledger or the credential store is a
// Minutes value (whole minutes since the Unix epoch). Days is the same
// idea at day granularity and drives the daily economic tick. Both fit
// comfortably in an int32 for centuries, which keeps persisted state and
// journal payloads compact and makes command replay trivially exact: a
// command carries the Minutes it was issued at and replays with it.
package epoch

import "time"

// MinutesPerDay is the conversion factor between the two granularities.
const MinutesPerDay = 24 * 60

// Minutes is a point in time in whole minutes since the Unix epoch.
type Minutes int32

// Days is a point in time in whole days since the Unix epoch.
type Days int32

// Now returns the current wall-clock time in whole minutes.
func Now() Minutes {
	return FromTime(time.Now())
}

// FromTime converts a time.Time to whole minutes since the epoch.
func FromTime(t time.Time) Minutes {
	return Minutes(t.Unix() / 60)
}

// Time converts back to a time.Time (UTC, minute precision).
func (m Minutes) Time() time.Time {
	return time.Unix(int64(m)*60, 0).UTC()
}

// Day returns the epoch day this minute falls on.
func (m Minutes) Day() Days {
	return Days(m / MinutesPerDay)
}

// Today returns the current wall-clock epoch day.
func Today() Days {
	return Now().Day()
}

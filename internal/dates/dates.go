// Package dates converts between calendar dates and the dataset's integer
// date keys: seconds since 1960-01-01 UTC, day-aligned.
package dates

import (
	"fmt"
	"time"

	gserrors "github.com/tradegazette/gsearch/pkg/errors"
)

// DaySecs is the width of one day key.
const DaySecs int64 = 86400

const isoLayout = "2006-01-02"

var epoch = time.Date(1960, time.January, 1, 0, 0, 0, 0, time.UTC)

// FromISO converts "YYYY-MM-DD" into a date key.
func FromISO(iso string) (int64, error) {
	t, err := time.Parse(isoLayout, iso)
	if err != nil {
		return 0, fmt.Errorf("date %q: %w", iso, gserrors.ErrInvalidInput)
	}
	return int64(t.Sub(epoch) / time.Second), nil
}

// ToISO converts a date key back to "YYYY-MM-DD".
func ToISO(key int64) string {
	return epoch.Add(time.Duration(key) * time.Second).Format(isoLayout)
}

// DayKeysForRange expands an inclusive ISO date range into one day-aligned
// key per covered day. Reversed bounds are swapped.
func DayKeysForRange(fromISO, toISO string) ([]int64, error) {
	a, err := FromISO(fromISO)
	if err != nil {
		return nil, err
	}
	b, err := FromISO(toISO)
	if err != nil {
		return nil, err
	}
	if a > b {
		a, b = b, a
	}
	x := a - mod(a, DaySecs)
	y := b - mod(b, DaySecs)
	keys := make([]int64, 0, (y-x)/DaySecs+1)
	for ; x <= y; x += DaySecs {
		keys = append(keys, x)
	}
	return keys, nil
}

// mod is a non-negative modulus; date keys before 1960 are negative.
func mod(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

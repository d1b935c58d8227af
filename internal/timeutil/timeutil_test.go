package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tz = time.FixedZone("UTC+8", 8*3600)

func TestParseMinuteOfDay(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:00", 540, false},
		{"17:30", 1050, false},
		{"23:59", 1439, false},
		{"24:00", 1440, false},
		{"24:01", 0, true},
		{"25:00", 0, true},
		{"9:00", 0, true},
		{"09:60", 0, true},
		{"0900", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseMinuteOfDay(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidTimeFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestToInstant(t *testing.T) {
	day := time.Date(2024, 3, 4, 13, 45, 12, 0, tz) // Monday; time part is ignored

	got, err := ToInstant(day, "09:30", tz)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 9, 30, 0, 0, tz), got)

	_, err = ToInstant(day, "9:30", tz)
	require.ErrorIs(t, err, ErrInvalidTimeFormat)
}

func TestToInstantEndOfDay(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, tz)

	got, err := ToInstant(day, "24:00", tz)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, tz), got)
}

func TestMinuteOfDay(t *testing.T) {
	// 01:00 UTC is 09:00 in UTC+8.
	utc := time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 540, MinuteOfDay(utc, tz))
}

func TestOverlaps(t *testing.T) {
	at := func(h, m int) time.Time {
		return time.Date(2024, 3, 4, h, m, 0, 0, tz)
	}

	cases := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     time.Time
		buffer                         time.Duration
		want                           bool
	}{
		{"disjoint", at(9, 0), at(9, 30), at(10, 0), at(10, 30), 0, false},
		{"identical", at(9, 0), at(9, 30), at(9, 0), at(9, 30), 0, true},
		{"partial", at(9, 0), at(9, 30), at(9, 25), at(9, 55), 0, true},
		{"touching is not overlap", at(9, 0), at(9, 30), at(9, 30), at(10, 0), 0, false},
		{"touching within buffer", at(9, 0), at(9, 30), at(9, 30), at(10, 0), 5 * time.Minute, true},
		{"gap equal to buffer", at(9, 0), at(9, 30), at(9, 35), at(10, 5), 5 * time.Minute, false},
		{"gap inside buffer", at(9, 0), at(9, 30), at(9, 34), at(10, 4), 5 * time.Minute, true},
		{"contained", at(9, 0), at(10, 0), at(9, 15), at(9, 45), 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd, tc.buffer))
			// Symmetric with the same buffer on either operand's side.
			assert.Equal(t, tc.want, Overlaps(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd, tc.buffer))
		})
	}
}

package common

import (
	"math"
	"testing"

	"github.com/lib/pq/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	cases := []struct {
		in   string
		want Interval
		out  string
	}{
		{"1 year 2 mons 3 days 04:05:06", Interval{Months: 14, Days: 3, Micros: 14706 * 1000000}, "1 year 2 mons 3 days 04:05:06"},
		{"90 day", Interval{Days: 90}, "90 days"},
		{"1 day", Interval{Days: 1}, "1 day"},
		{"2 weeks", Interval{Days: 14}, "14 days"},
		{"3 month", Interval{Months: 3}, "3 mons"},
		{"1.5 hours", Interval{Micros: 5400 * 1000000}, "01:30:00"},
		{"30", Interval{Micros: 30 * 1000000}, "00:00:30"},
		{"1500 ms", Interval{Micros: 1500000}, "00:00:01.5"},
		{"-01:00", Interval{Micros: -3600 * 1000000}, "-01:00:00"},
		{"0 days", Interval{}, "00:00:00"},
	}
	for _, c := range cases {
		iv, err := ParseInterval(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, iv, c.in)
		assert.Equal(t, c.out, iv.String(), c.in)
	}

	for _, in := range []string{"", "3 fortnights", "1.5 days", "day", "1:x"} {
		_, err := ParseInterval(in)
		assert.Error(t, err, in)
	}
}

func TestIntervalCompareAndEncode(t *testing.T) {
	assert.Equal(t, 0, Interval{Months: 1}.Cmp(Interval{Days: 30}))
	assert.Equal(t, 0, Interval{Days: 1}.Cmp(Interval{Micros: usecsPerDay}))
	assert.Equal(t, -1, Interval{Days: 1}.Cmp(Interval{Days: 1, Micros: 1}))
	assert.Equal(t, -1, Interval{Micros: -1}.Cmp(Interval{}))
	assert.Equal(t, 1, Interval{Months: 1}.Cmp(Interval{Days: 29, Micros: usecsPerDay - 1}))

	iv := Interval{Months: -5, Days: 7, Micros: -123456789}
	b := iv.Encode()
	require.Len(t, b, IntervalSize)
	assert.Equal(t, iv, DecodeInterval(b))
	assert.Equal(t, iv.Neg().Neg(), iv)

	tm := NewTypeMap()
	typ := tm.MustLookup(oid.T_interval)
	a := IntervalValue(typ, Interval{Days: 2})
	c := IntervalValue(typ, Interval{Micros: 36 * 3600 * 1000000})
	assert.Equal(t, 1, CompareValue(a, c))
	assert.Equal(t, "2 days", a.String())
}

func TestTimestampPlusInterval(t *testing.T) {
	ts := func(s string) int64 {
		v, err := ParseTimestamp(s)
		require.NoError(t, err)
		return v
	}
	cases := []struct {
		from string
		iv   Interval
		want string
	}{
		//month end clamps
		{"2000-01-31 00:00:00", Interval{Months: 1}, "2000-02-29 00:00:00"},
		{"2000-03-31 00:00:00", Interval{Months: -1}, "2000-02-29 00:00:00"},
		{"2001-01-31 10:00:00", Interval{Months: 1}, "2001-02-28 10:00:00"},
		{"2000-01-15 00:00:00", Interval{Months: -13}, "1998-12-15 00:00:00"},
		{"1998-12-01 00:00:00", Interval{Days: -90}, "1998-09-02 00:00:00"},
		{"2000-01-01 23:00:00", Interval{Micros: 2 * 3600 * 1000000}, "2000-01-02 01:00:00"},
		{"1999-12-31 00:00:00", Interval{Months: 1, Days: 1, Micros: 1000000}, "2000-02-01 00:00:01"},
	}
	for _, c := range cases {
		got, err := TimestampPlusInterval(ts(c.from), c.iv)
		require.NoError(t, err, c.from)
		assert.Equal(t, c.want, FormatTimestamp(got), c.from)
	}

	_, err := TimestampPlusInterval(EndTimestamp-usecsPerDay, Interval{Months: 12})
	assert.ErrorIs(t, err, ErrDatetimeOutOfRange)
	_, err = TimestampPlusInterval(EndTimestamp-1, Interval{Micros: 1})
	assert.ErrorIs(t, err, ErrDatetimeOutOfRange)

	v, err := DateToTimestamp(1)
	require.NoError(t, err)
	assert.Equal(t, "2000-01-02 00:00:00", FormatTimestamp(v))
	_, err = DateToTimestamp(math.MaxInt32)
	assert.ErrorIs(t, err, ErrDatetimeOutOfRange)
}

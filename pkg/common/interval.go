// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// IntervalSize is the stored width: time int64, day int32, month int32.
const IntervalSize = 16

const (
	daysPerMonth = 30
	// valid timestamps are [MinTimestamp, EndTimestamp)
	MinTimestamp = int64(-211813488000000000)
	EndTimestamp = int64(9223371331200000000)
)

var ErrDatetimeOutOfRange = errors.New("datetime out of range")

// Interval keeps months, days and micros apart since a month has no
// fixed number of days.
type Interval struct {
	Months int32
	Days   int32
	Micros int64
}

func (iv Interval) Neg() Interval {
	return Interval{Months: -iv.Months, Days: -iv.Days, Micros: -iv.Micros}
}

// Cmp orders intervals by their length with 30 day months.
func (iv Interval) Cmp(o Interval) int {
	ad, au := iv.span()
	bd, bu := o.span()
	if ad != bd {
		return cmpOrdered(ad, bd)
	}
	return cmpOrdered(au, bu)
}

func (iv Interval) span() (days int64, usecs int64) {
	days = int64(iv.Months)*daysPerMonth + int64(iv.Days)
	days += floorDiv(iv.Micros, usecsPerDay)
	return days, floorMod(iv.Micros, usecsPerDay)
}

func (iv Interval) Encode() []byte {
	buf := make([]byte, IntervalSize)
	binary.LittleEndian.PutUint64(buf[0:], uint64(iv.Micros))
	binary.LittleEndian.PutUint32(buf[8:], uint32(iv.Days))
	binary.LittleEndian.PutUint32(buf[12:], uint32(iv.Months))
	return buf
}

func DecodeInterval(b []byte) Interval {
	if len(b) < IntervalSize {
		return Interval{}
	}
	return Interval{
		Micros: int64(binary.LittleEndian.Uint64(b[0:])),
		Days:   int32(binary.LittleEndian.Uint32(b[8:])),
		Months: int32(binary.LittleEndian.Uint32(b[12:])),
	}
}

func IntervalValue(typ *TypeInfo, iv Interval) Value {
	return Value{Typ: typ, Str: string(iv.Encode())}
}

// Interval decodes an interval value.
func (val Value) Interval() Interval {
	return DecodeInterval([]byte(val.Str))
}

func (iv Interval) String() string {
	var parts []string
	plural := func(n int64, unit string) {
		if n == 0 {
			return
		}
		s := fmt.Sprintf("%d %s", n, unit)
		if n != 1 && n != -1 {
			s += "s"
		}
		parts = append(parts, s)
	}
	plural(int64(iv.Months/12), "year")
	plural(int64(iv.Months%12), "mon")
	plural(int64(iv.Days), "day")
	if iv.Micros != 0 || len(parts) == 0 {
		us := iv.Micros
		sign := ""
		if us < 0 {
			sign = "-"
			us = -us
		}
		secs := us / 1000000
		s := fmt.Sprintf("%s%02d:%02d:%02d", sign, secs/3600, secs/60%60, secs%60)
		if frac := us % 1000000; frac != 0 {
			s += strings.TrimRight(fmt.Sprintf(".%06d", frac), "0")
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

var intervalUnits = map[string]Interval{
	"year":        {Months: 12},
	"month":       {Months: 1},
	"mon":         {Months: 1},
	"week":        {Days: 7},
	"day":         {Days: 1},
	"hour":        {Micros: 3600 * 1000000},
	"minute":      {Micros: 60 * 1000000},
	"min":         {Micros: 60 * 1000000},
	"second":      {Micros: 1000000},
	"sec":         {Micros: 1000000},
	"millisecond": {Micros: 1000},
	"ms":          {Micros: 1000},
	"microsecond": {Micros: 1},
	"us":          {Micros: 1},
}

func intervalUnit(s string) (Interval, bool) {
	s = strings.ToLower(s)
	if unit, ok := intervalUnits[s]; ok {
		return unit, true
	}
	unit, ok := intervalUnits[strings.TrimSuffix(s, "s")]
	return unit, ok
}

// ParseInterval accepts "<n> <unit>" pairs and an optional
// [-]hh:mm[:ss[.frac]] clock part, e.g. "1 year 2 mons 3 days 04:05:06".
// A bare number is seconds.
func ParseInterval(s string) (Interval, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Interval{}, errors.Errorf("invalid input syntax for type interval: %q", s)
	}
	bad := func() (Interval, error) {
		return Interval{}, errors.Errorf("invalid input syntax for type interval: %q", s)
	}
	var ret Interval
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if strings.Contains(f, ":") {
			us, err := parseClock(f)
			if err != nil {
				return bad()
			}
			ret.Micros += us
			continue
		}
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return bad()
		}
		if i+1 == len(fields) {
			ret.Micros += int64(math.Round(n * 1000000))
			continue
		}
		unit, ok := intervalUnit(fields[i+1])
		if !ok {
			return bad()
		}
		i++
		//fractions only for time units
		if (unit.Months != 0 || unit.Days != 0) && n != math.Trunc(n) {
			return bad()
		}
		ret.Months += int32(n) * unit.Months
		ret.Days += int32(n) * unit.Days
		ret.Micros += int64(math.Round(n * float64(unit.Micros)))
	}
	return ret, nil
}

func parseClock(s string) (int64, error) {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, errors.New("bad clock")
	}
	h, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, err
	}
	m, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, err
	}
	var sec float64
	if len(parts) == 3 {
		if sec, err = strconv.ParseFloat(parts[2], 64); err != nil {
			return 0, err
		}
	}
	us := (h*3600+m*60)*1000000 + int64(math.Round(sec*1000000))
	if neg {
		us = -us
	}
	return us, nil
}

// DateToTimestamp widens days since 2000-01-01 to a timestamp.
func DateToTimestamp(days int64) (int64, error) {
	if days < MinTimestamp/usecsPerDay || days >= EndTimestamp/usecsPerDay {
		return 0, errors.Wrap(ErrDatetimeOutOfRange, "date out of range for timestamp")
	}
	return days * usecsPerDay, nil
}

// TimestampPlusInterval adds months first, clamping the day to the
// end of the month, then days, then the time part.
func TimestampPlusInterval(ts int64, iv Interval) (int64, error) {
	days := floorDiv(ts, usecsPerDay)
	clock := floorMod(ts, usecsPerDay)
	if iv.Months != 0 {
		y, m, d := pgEpoch.AddDate(0, 0, int(days)).Date()
		total := int64(y)*12 + int64(m-1) + int64(iv.Months)
		y = int(floorDiv(total, 12))
		m = time.Month(floorMod(total, 12) + 1)
		if dim := daysIn(y, m); d > dim {
			d = dim
		}
		t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		days = floorDiv(t.Unix()-pgEpoch.Unix(), 86400)
	}
	days += int64(iv.Days)
	base, err := DateToTimestamp(days)
	if err != nil {
		return 0, errors.Wrap(ErrDatetimeOutOfRange, "timestamp out of range")
	}
	ret := base + clock + iv.Micros
	if ret < MinTimestamp || ret >= EndTimestamp ||
		(iv.Micros > 0 && ret < base) || (iv.Micros < 0 && ret > base+clock) {
		return 0, errors.Wrap(ErrDatetimeOutOfRange, "timestamp out of range")
	}
	return ret, nil
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}

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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/govalues/decimal"
)

// Value is one datum in row shape.
type Value struct {
	Typ    *TypeInfo
	IsNull bool
	I64    int64
	F64    float64
	Bool   bool
	Str    string
}

func NullValue(typ *TypeInfo) Value {
	return Value{Typ: typ, IsNull: true}
}

func IntValue(typ *TypeInfo, v int64) Value {
	return Value{Typ: typ, I64: v}
}

func FloatValue(typ *TypeInfo, v float64) Value {
	return Value{Typ: typ, F64: v}
}

func BoolValue(typ *TypeInfo, v bool) Value {
	return Value{Typ: typ, Bool: v}
}

func StringValue(typ *TypeInfo, v string) Value {
	return Value{Typ: typ, Str: v}
}

func (val Value) String() string {
	if val.IsNull {
		return "NULL"
	}
	switch val.Typ.Kind {
	case KindInt:
		return strconv.FormatInt(val.I64, 10)
	case KindFloat:
		bits := 64
		if val.Typ.Len == 4 {
			bits = 32
		}
		return strconv.FormatFloat(val.F64, 'g', -1, bits)
	case KindBool:
		if val.Bool {
			return "t"
		}
		return "f"
	case KindString, KindNumeric:
		return val.Str
	case KindDate:
		return FormatDate(int32(val.I64))
	case KindTimestamp:
		return FormatTimestamp(val.I64)
	case KindInterval:
		return val.Interval().String()
	default:
		return fmt.Sprintf("%v", val.I64)
	}
}

// AsFloat widens numeric kinds.
func (val Value) AsFloat() float64 {
	switch val.Typ.Kind {
	case KindFloat:
		return val.F64
	case KindNumeric:
		d, err := decimal.Parse(val.Str)
		if err != nil {
			return 0
		}
		f, _ := d.Float64()
		return f
	default:
		return float64(val.I64)
	}
}

// CompareValue orders two non-null values of compatible kinds.
func CompareValue(a, b Value) int {
	ak, bk := a.Typ.Kind, b.Typ.Kind
	switch {
	case ak == KindInt && bk == KindInt,
		ak == KindDate && bk == KindDate,
		ak == KindTimestamp && bk == KindTimestamp:
		return cmpOrdered(a.I64, b.I64)
	case ak == KindInterval && bk == KindInterval:
		return a.Interval().Cmp(b.Interval())
	case ak == KindBool && bk == KindBool:
		return cmpOrdered(boolToInt(a.Bool), boolToInt(b.Bool))
	case ak == KindString && bk == KindString:
		return strings.Compare(a.Str, b.Str)
	case ak == KindNumeric && bk == KindNumeric:
		da, err1 := decimal.Parse(a.Str)
		db, err2 := decimal.Parse(b.Str)
		if err1 == nil && err2 == nil {
			return da.Cmp(db)
		}
		return strings.Compare(a.Str, b.Str)
	default:
		return cmpOrdered(a.AsFloat(), b.AsFloat())
	}
}

// CompareNullsLast orders nulls after every value.
func CompareNullsLast(a, b Value) int {
	switch {
	case a.IsNull && b.IsNull:
		return 0
	case a.IsNull:
		return 1
	case b.IsNull:
		return -1
	}
	return CompareValue(a, b)
}

func cmpOrdered[T int64 | float64](a, b T) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// ParseValue converts text input into a value of typ.
func ParseValue(typ *TypeInfo, s string) (Value, error) {
	val := Value{Typ: typ}
	var err error
	switch typ.Kind {
	case KindInt:
		val.I64, err = strconv.ParseInt(strings.TrimSpace(s), 10, typ.Len*8)
	case KindFloat:
		val.F64, err = strconv.ParseFloat(strings.TrimSpace(s), typ.Len*8)
	case KindBool:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "t", "true", "1", "yes", "y", "on":
			val.Bool = true
		case "f", "false", "0", "no", "n", "off":
			val.Bool = false
		default:
			err = fmt.Errorf("invalid input syntax for type boolean: %q", s)
		}
	case KindString:
		val.Str = s
	case KindNumeric:
		var d decimal.Decimal
		d, err = decimal.Parse(strings.TrimSpace(s))
		if err == nil {
			val.Str = d.String()
		}
	case KindDate:
		var d int32
		d, err = ParseDate(s)
		val.I64 = int64(d)
	case KindTimestamp:
		val.I64, err = ParseTimestamp(s)
	case KindInterval:
		var iv Interval
		if iv, err = ParseInterval(s); err == nil {
			val.Str = string(iv.Encode())
		}
	default:
		err = fmt.Errorf("can not parse value of type %s", typ.Name)
	}
	if err != nil {
		return Value{}, err
	}
	return val, nil
}

var pgEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	usecsPerDay = int64(86400) * 1000000
	dateLayout  = "2006-01-02"
	tsLayout    = "2006-01-02 15:04:05"
)

// ParseDate returns days since 2000-01-01.
func ParseDate(s string) (int32, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return int32(t.Sub(pgEpoch).Hours() / 24), nil
}

func FormatDate(days int32) string {
	return pgEpoch.AddDate(0, 0, int(days)).Format(dateLayout)
}

// ParseTimestamp returns microseconds since 2000-01-01 00:00:00.
func ParseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		t, err = time.Parse(dateLayout, s)
		if err != nil {
			return 0, err
		}
	}
	return t.Sub(pgEpoch).Microseconds(), nil
}

func FormatTimestamp(usecs int64) string {
	days := usecs / usecsPerDay
	rem := usecs % usecsPerDay
	if rem < 0 {
		days--
		rem += usecsPerDay
	}
	t := pgEpoch.AddDate(0, 0, int(days)).Add(time.Duration(rem) * time.Microsecond)
	return t.Format(tsLayout)
}

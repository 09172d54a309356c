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

package vtype

import (
	"github.com/lib/pq/oid"

	"github.com/daviszhen/vexec/pkg/chunk"
	"github.com/daviszhen/vexec/pkg/common"
)

func getInterval(col *chunk.Column, i int) common.Interval {
	return common.DecodeInterval(col.Bytes(i))
}

func setInterval(col *chunk.Column, i int, v common.Interval) {
	col.SetBytes(i, v.Encode())
}

func setTimestamp(col *chunk.Column, i int, v int64) {
	col.SetInt64(i, v)
}

type widenFunc func(v int64) (int64, error)

func sameTimestamp(v int64) (int64, error) {
	return v, nil
}

// plusIntervalKernel adds or subtracts an interval from a date or
// timestamp on the left. The result is always a timestamp.
func plusIntervalKernel(widen widenFunc, neg bool) Kernel {
	return func(res *chunk.Column, args []*chunk.Column, skip []bool, count int) error {
		return binaryExec[int64, common.Interval, int64](res, args, skip, count,
			getInt, getInterval, setTimestamp,
			func(v int64, iv common.Interval) (int64, error) {
				ts, err := widen(v)
				if err != nil {
					return 0, err
				}
				if neg {
					iv = iv.Neg()
				}
				return common.TimestampPlusInterval(ts, iv)
			})
	}
}

// intervalPlusKernel is interval + date/timestamp.
func intervalPlusKernel(widen widenFunc) Kernel {
	return func(res *chunk.Column, args []*chunk.Column, skip []bool, count int) error {
		return binaryExec[common.Interval, int64, int64](res, args, skip, count,
			getInterval, getInt, setTimestamp,
			func(iv common.Interval, v int64) (int64, error) {
				ts, err := widen(v)
				if err != nil {
					return 0, err
				}
				return common.TimestampPlusInterval(ts, iv)
			})
	}
}

// mixedCompare compares a date with a timestamp after widening the
// side given by widenLeft/widenRight.
func mixedCompare(widenLeft, widenRight widenFunc, pred func(int) bool) Kernel {
	return func(res *chunk.Column, args []*chunk.Column, skip []bool, count int) error {
		return binaryExec[int64, int64, bool](res, args, skip, count, getInt, getInt, setBool,
			func(l, r int64) (bool, error) {
				var err error
				if l, err = widenLeft(l); err != nil {
					return false, err
				}
				if r, err = widenRight(r); err != nil {
					return false, err
				}
				return pred(cmpNumber(l, r)), nil
			})
	}
}

func intervalNegKernel(res *chunk.Column, args []*chunk.Column, skip []bool, count int) error {
	in := args[0]
	for i := 0; i < count; i++ {
		if skip[i] {
			continue
		}
		if in.Nulls[i] {
			res.Nulls[i] = true
			continue
		}
		res.Nulls[i] = false
		setInterval(res, i, getInterval(in, i).Neg())
	}
	if count > res.Dim {
		res.Dim = count
	}
	return nil
}

func cmpInterval(a, b common.Interval) int {
	return a.Cmp(b)
}

// registerDatetime adds date/timestamp cross comparisons and the
// interval operators.
func (reg *Registry) registerDatetime() {
	sig := func(l, r oid.Oid) []oid.Oid { return []oid.Oid{l, r} }
	for name, pred := range comparePreds {
		reg.RegisterOp(name, sig(oid.T_date, oid.T_timestamp), oid.T_bool,
			mixedCompare(common.DateToTimestamp, sameTimestamp, pred))
		reg.RegisterOp(name, sig(oid.T_timestamp, oid.T_date), oid.T_bool,
			mixedCompare(sameTimestamp, common.DateToTimestamp, pred))
		reg.RegisterOp(name, sig(oid.T_interval, oid.T_interval), oid.T_bool,
			compareKernel[common.Interval](getInterval, cmpInterval, pred))
	}
	for _, typ := range []oid.Oid{oid.T_date, oid.T_timestamp} {
		widen := widenFunc(sameTimestamp)
		if typ == oid.T_date {
			widen = common.DateToTimestamp
		}
		reg.RegisterOp("+", sig(typ, oid.T_interval), oid.T_timestamp, plusIntervalKernel(widen, false))
		reg.RegisterOp("-", sig(typ, oid.T_interval), oid.T_timestamp, plusIntervalKernel(widen, true))
		reg.RegisterOp("+", sig(oid.T_interval, typ), oid.T_timestamp, intervalPlusKernel(widen))
	}
	reg.RegisterOp("-", []oid.Oid{oid.T_interval}, oid.T_interval, intervalNegKernel)
}

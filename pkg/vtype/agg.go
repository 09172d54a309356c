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
	"bytes"

	dec "github.com/govalues/decimal"
	"github.com/pkg/errors"

	"github.com/daviszhen/vexec/pkg/chunk"
	"github.com/daviszhen/vexec/pkg/common"
)

// TransValue is the transition state of one aggregate in one group.
type TransValue struct {
	Count int64
	I64   int64
	F64   float64
	Dec   dec.Decimal
	Str   string
	// Set is true once a non-null input was seen.
	Set bool
}

// TransKernel advances aggregate aggno for every live row. entries[i]
// holds the states of the group row i belongs to. in is nil for
// count(*).
type TransKernel func(entries [][]TransValue, aggno int, in *chunk.Column, skip []bool, count int) error

type FinalFunc func(tv *TransValue, result *common.TypeInfo) (common.Value, error)

type AggEntry struct {
	Name   string
	Star   bool
	Arg    *common.TypeInfo
	Result *common.TypeInfo
	Trans  TransKernel
	Final  FinalFunc
}

// Advance feeds one row value to states[aggno].
func (entry *AggEntry) Advance(states []TransValue, aggno int, val common.Value) error {
	var in *chunk.Column
	if !entry.Star {
		in = chunk.NewColumn(entry.Arg, 1)
		in.SetValue(0, val)
	}
	return entry.Trans([][]TransValue{states}, aggno, in, []bool{false}, 1)
}

// Finish applies the final function.
func (entry *AggEntry) Finish(tv *TransValue) (common.Value, error) {
	return entry.Final(tv, entry.Result)
}

// unaryTrans runs step on every live non-null row.
func unaryTrans[T any](get getter[T], step func(tv *TransValue, v T) error) TransKernel {
	return func(entries [][]TransValue, aggno int, in *chunk.Column, skip []bool, count int) error {
		for i := 0; i < count; i++ {
			if skip[i] || in.Nulls[i] {
				continue
			}
			tv := &entries[i][aggno]
			if err := step(tv, get(in, i)); err != nil {
				return err
			}
			tv.Set = true
		}
		return nil
	}
}

func countStarTrans(entries [][]TransValue, aggno int, _ *chunk.Column, skip []bool, count int) error {
	for i := 0; i < count; i++ {
		if !skip[i] {
			entries[i][aggno].Count++
		}
	}
	return nil
}

func countTrans(entries [][]TransValue, aggno int, in *chunk.Column, skip []bool, count int) error {
	for i := 0; i < count; i++ {
		if !skip[i] && !in.Nulls[i] {
			entries[i][aggno].Count++
		}
	}
	return nil
}

func finalCount(tv *TransValue, result *common.TypeInfo) (common.Value, error) {
	return common.IntValue(result, tv.Count), nil
}

var intSumTrans = unaryTrans[int64](getInt, func(tv *TransValue, v int64) error {
	c := tv.I64 + v
	if (c > tv.I64) != (v > 0) {
		return errors.Wrap(ErrOutOfRange, "bigint out of range")
	}
	tv.I64 = c
	return nil
})

var decSumTrans = unaryTrans[int64](getInt, func(tv *TransValue, v int64) error {
	d, err := dec.New(v, 0)
	if err != nil {
		return err
	}
	tv.Dec, err = tv.Dec.Add(d)
	tv.Count++
	return err
})

var floatSumTrans = unaryTrans[float64](getNumber, func(tv *TransValue, v float64) error {
	tv.F64 += v
	tv.Count++
	return nil
})

func finalInt(tv *TransValue, result *common.TypeInfo) (common.Value, error) {
	if !tv.Set {
		return common.NullValue(result), nil
	}
	return common.IntValue(result, tv.I64), nil
}

func finalFloat(tv *TransValue, result *common.TypeInfo) (common.Value, error) {
	if !tv.Set {
		return common.NullValue(result), nil
	}
	return common.FloatValue(result, tv.F64), nil
}

func finalDec(tv *TransValue, result *common.TypeInfo) (common.Value, error) {
	if !tv.Set {
		return common.NullValue(result), nil
	}
	return common.StringValue(result, tv.Dec.String()), nil
}

func finalDecAvg(tv *TransValue, result *common.TypeInfo) (common.Value, error) {
	if !tv.Set {
		return common.NullValue(result), nil
	}
	n, err := dec.New(tv.Count, 0)
	if err != nil {
		return common.Value{}, err
	}
	avg, err := tv.Dec.Quo(n)
	if err != nil {
		return common.Value{}, err
	}
	return common.StringValue(result, avg.String()), nil
}

func finalFloatAvg(tv *TransValue, result *common.TypeInfo) (common.Value, error) {
	if !tv.Set {
		return common.NullValue(result), nil
	}
	return common.FloatValue(result, tv.F64/float64(tv.Count)), nil
}

func minMaxInt(keep func(int) bool) TransKernel {
	return unaryTrans[int64](getInt, func(tv *TransValue, v int64) error {
		if !tv.Set || keep(cmpNumber(v, tv.I64)) {
			tv.I64 = v
		}
		return nil
	})
}

func minMaxFloat(keep func(int) bool) TransKernel {
	return unaryTrans[float64](getNumber, func(tv *TransValue, v float64) error {
		if !tv.Set || keep(cmpNumber(v, tv.F64)) {
			tv.F64 = v
		}
		return nil
	})
}

// minMaxText compares bpchar without its pad but keeps the stored bytes.
func minMaxText(keep func(int) bool) TransKernel {
	return func(entries [][]TransValue, aggno int, in *chunk.Column, skip []bool, count int) error {
		for i := 0; i < count; i++ {
			if skip[i] || in.Nulls[i] {
				continue
			}
			tv := &entries[i][aggno]
			if !tv.Set || keep(bytes.Compare(getText(in, i), trimPad(in.Typ, []byte(tv.Str)))) {
				tv.Str = string(in.Bytes(i))
			}
			tv.Set = true
		}
		return nil
	}
}

func finalText(tv *TransValue, result *common.TypeInfo) (common.Value, error) {
	if !tv.Set {
		return common.NullValue(result), nil
	}
	return common.StringValue(result, tv.Str), nil
}

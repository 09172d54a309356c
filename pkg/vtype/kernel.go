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
	"math"

	"github.com/lib/pq/oid"
	"github.com/pkg/errors"

	"github.com/daviszhen/vexec/pkg/chunk"
	"github.com/daviszhen/vexec/pkg/common"
)

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrOutOfRange     = errors.New("value out of range")
)

// Kernel evaluates an operator over the first count rows of its
// argument columns into res. Rows with skip set are never read and
// their result slots are left untouched.
type Kernel func(res *chunk.Column, args []*chunk.Column, skip []bool, count int) error

type getter[T any] func(col *chunk.Column, i int) T

type setter[T any] func(col *chunk.Column, i int, v T)

type number interface {
	~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// binaryExec applies op to the live rows. A null argument yields null.
func binaryExec[L any, R any, T any](
	res *chunk.Column,
	args []*chunk.Column,
	skip []bool,
	count int,
	lget getter[L],
	rget getter[R],
	set setter[T],
	op func(L, R) (T, error),
) error {
	left, right := args[0], args[1]
	for i := 0; i < count; i++ {
		if skip[i] {
			continue
		}
		if left.Nulls[i] || right.Nulls[i] {
			res.Nulls[i] = true
			continue
		}
		v, err := op(lget(left, i), rget(right, i))
		if err != nil {
			return err
		}
		res.Nulls[i] = false
		set(res, i, v)
	}
	if count > res.Dim {
		res.Dim = count
	}
	return nil
}

// sliceCompare is the same width fast path.
func sliceCompare[T number](pred func(int) bool) Kernel {
	return func(res *chunk.Column, args []*chunk.Column, skip []bool, count int) error {
		lSlice := chunk.GetSlice[T](args[0])
		rSlice := chunk.GetSlice[T](args[1])
		lNulls, rNulls := args[0].Nulls, args[1].Nulls
		for i := 0; i < count; i++ {
			if skip[i] {
				continue
			}
			if lNulls[i] || rNulls[i] {
				res.Nulls[i] = true
				continue
			}
			res.Nulls[i] = false
			res.SetBool(i, pred(cmpNumber(lSlice[i], rSlice[i])))
		}
		if count > res.Dim {
			res.Dim = count
		}
		return nil
	}
}

func cmpNumber[T number](a, b T) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

func compareKernel[T any](get getter[T], cmp func(a, b T) int, pred func(int) bool) Kernel {
	return func(res *chunk.Column, args []*chunk.Column, skip []bool, count int) error {
		return binaryExec[T, T, bool](res, args, skip, count, get, get, setBool,
			func(l, r T) (bool, error) {
				return pred(cmp(l, r)), nil
			})
	}
}

func setBool(col *chunk.Column, i int, v bool) {
	col.SetBool(i, v)
}

func getInt(col *chunk.Column, i int) int64 {
	return col.Int64(i)
}

// getNumber widens ints for int/float comparisons.
func getNumber(col *chunk.Column, i int) float64 {
	if col.Typ.Kind == common.KindFloat {
		return col.Float64(i)
	}
	return float64(col.Int64(i))
}

func getBool(col *chunk.Column, i int) bool {
	return col.Bool(i)
}

// getText compares bpchar without its pad spaces.
func getText(col *chunk.Column, i int) []byte {
	return trimPad(col.Typ, col.Bytes(i))
}

// trimPad drops the blank padding of bpchar values.
func trimPad(typ *common.TypeInfo, b []byte) []byte {
	if typ.Id == oid.T_bpchar || typ.Id == common.T_vbpchar {
		return bytes.TrimRight(b, " ")
	}
	return b
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

var comparePreds = map[string]func(int) bool{
	"=":  func(c int) bool { return c == 0 },
	"<>": func(c int) bool { return c != 0 },
	"<":  func(c int) bool { return c < 0 },
	"<=": func(c int) bool { return c <= 0 },
	">":  func(c int) bool { return c > 0 },
	">=": func(c int) bool { return c >= 0 },
}

func intRange(width int) (int64, int64) {
	switch width {
	case 2:
		return math.MinInt16, math.MaxInt16
	case 4:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

var intRangeNames = map[int]string{2: "smallint", 4: "integer", 8: "bigint"}

// intArith returns an int operator checked against the result width.
func intArith(name string, width int) func(a, b int64) (int64, error) {
	lo, hi := intRange(width)
	overflow := errors.Wrapf(ErrOutOfRange, "%s out of range", intRangeNames[width])
	check := func(v int64, ok bool) (int64, error) {
		if !ok || v < lo || v > hi {
			return 0, overflow
		}
		return v, nil
	}
	switch name {
	case "+":
		return func(a, b int64) (int64, error) {
			c := a + b
			return check(c, (c > a) == (b > 0))
		}
	case "-":
		return func(a, b int64) (int64, error) {
			c := a - b
			return check(c, (c < a) == (b > 0))
		}
	case "*":
		return func(a, b int64) (int64, error) {
			if a == 0 || b == 0 {
				return 0, nil
			}
			c := a * b
			ok := c/b == a && !(a == -1 && b == math.MinInt64) && !(b == -1 && a == math.MinInt64)
			return check(c, ok)
		}
	case "/":
		return func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, ErrDivisionByZero
			}
			if a == math.MinInt64 && b == -1 {
				return 0, overflow
			}
			return check(a/b, true)
		}
	default:
		panic("usp")
	}
}

func floatArith(name string, width int) func(a, b float64) (float64, error) {
	var op func(a, b float64) float64
	switch name {
	case "+":
		op = func(a, b float64) float64 { return a + b }
	case "-":
		op = func(a, b float64) float64 { return a - b }
	case "*":
		op = func(a, b float64) float64 { return a * b }
	case "/":
		op = func(a, b float64) float64 { return a / b }
	default:
		panic("usp")
	}
	return func(a, b float64) (float64, error) {
		if name == "/" && b == 0 {
			return 0, ErrDivisionByZero
		}
		c := op(a, b)
		if width == 4 {
			c = float64(float32(c))
		}
		if math.IsInf(c, 0) && !math.IsInf(a, 0) && !math.IsInf(b, 0) {
			return 0, errors.Wrap(ErrOutOfRange, "overflow")
		}
		return c, nil
	}
}

func intArithKernel(name string, width int) Kernel {
	op := intArith(name, width)
	return func(res *chunk.Column, args []*chunk.Column, skip []bool, count int) error {
		return binaryExec[int64, int64, int64](res, args, skip, count, getInt, getInt,
			(*chunk.Column).SetInt64, op)
	}
}

func floatArithKernel(name string, width int) Kernel {
	op := floatArith(name, width)
	return func(res *chunk.Column, args []*chunk.Column, skip []bool, count int) error {
		return binaryExec[float64, float64, float64](res, args, skip, count, getNumber, getNumber,
			(*chunk.Column).SetFloat64, op)
	}
}

// andKernel and orKernel follow three-valued logic: false AND null is
// false, true OR null is true.
func andKernel(res *chunk.Column, args []*chunk.Column, skip []bool, count int) error {
	return logicExec(res, args, skip, count, false)
}

func orKernel(res *chunk.Column, args []*chunk.Column, skip []bool, count int) error {
	return logicExec(res, args, skip, count, true)
}

// logicExec: dominant is the value that decides the result on its own.
func logicExec(res *chunk.Column, args []*chunk.Column, skip []bool, count int, dominant bool) error {
	left, right := args[0], args[1]
	for i := 0; i < count; i++ {
		if skip[i] {
			continue
		}
		lNull, rNull := left.Nulls[i], right.Nulls[i]
		switch {
		case !lNull && left.Bool(i) == dominant,
			!rNull && right.Bool(i) == dominant:
			res.Nulls[i] = false
			res.SetBool(i, dominant)
		case lNull || rNull:
			res.Nulls[i] = true
		default:
			res.Nulls[i] = false
			res.SetBool(i, !dominant)
		}
	}
	if count > res.Dim {
		res.Dim = count
	}
	return nil
}

func notKernel(res *chunk.Column, args []*chunk.Column, skip []bool, count int) error {
	in := args[0]
	for i := 0; i < count; i++ {
		if skip[i] {
			continue
		}
		res.Nulls[i] = in.Nulls[i]
		if !in.Nulls[i] {
			res.SetBool(i, !in.Bool(i))
		}
	}
	if count > res.Dim {
		res.Dim = count
	}
	return nil
}

// negKernel is unary minus.
func negKernel(width int, float bool) Kernel {
	lo, _ := intRange(width)
	return func(res *chunk.Column, args []*chunk.Column, skip []bool, count int) error {
		in := args[0]
		for i := 0; i < count; i++ {
			if skip[i] {
				continue
			}
			res.Nulls[i] = in.Nulls[i]
			if in.Nulls[i] {
				continue
			}
			if float {
				res.SetFloat64(i, -in.Float64(i))
				continue
			}
			v := in.Int64(i)
			if v == lo {
				return errors.Wrapf(ErrOutOfRange, "%s out of range", intRangeNames[width])
			}
			res.SetInt64(i, -v)
		}
		if count > res.Dim {
			res.Dim = count
		}
		return nil
	}
}

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
	"fmt"
	"strings"

	"github.com/lib/pq/oid"

	"github.com/daviszhen/vexec/pkg/chunk"
	"github.com/daviszhen/vexec/pkg/common"
)

// ScalarFunc evaluates an operator on one row.
type ScalarFunc func(args []common.Value) (common.Value, error)

type OpEntry struct {
	Name   string
	Args   []*common.TypeInfo
	Result *common.TypeInfo
	Kernel Kernel
	Scalar ScalarFunc
}

// Registry is the operator and aggregate catalog. Every entry is
// reachable by its scalar signature and by each signature that has at
// least one vector argument.
type Registry struct {
	types *common.TypeMap
	ops   map[string]*OpEntry
	aggs  map[string]*AggEntry
}

func NewRegistry(types *common.TypeMap) *Registry {
	reg := &Registry{
		types: types,
		ops:   make(map[string]*OpEntry),
		aggs:  make(map[string]*AggEntry),
	}
	reg.registerBuiltins()
	return reg
}

func (reg *Registry) Types() *common.TypeMap {
	return reg.types
}

func opKey(name string, args []oid.Oid) string {
	sb := strings.Builder{}
	sb.WriteString(name)
	sb.WriteByte('(')
	for i, arg := range args {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", arg)
	}
	sb.WriteByte(')')
	return sb.String()
}

// RegisterOp adds kernel under its scalar signature and the vector
// signatures derived from it.
func (reg *Registry) RegisterOp(name string, args []oid.Oid, result oid.Oid, kernel Kernel) {
	argTyps := make([]*common.TypeInfo, len(args))
	for i, arg := range args {
		argTyps[i] = reg.types.MustLookup(arg)
	}
	resTyp := reg.types.MustLookup(result)
	reg.ops[opKey(name, args)] = &OpEntry{
		Name:   name,
		Args:   argTyps,
		Result: resTyp,
		Kernel: kernel,
		Scalar: ScalarOf(kernel, argTyps, resTyp),
	}

	vecResult := reg.vector(result)
	//every argument combination with at least one vector
	for mask := 1; mask < 1<<len(args); mask++ {
		sig := make([]oid.Oid, len(args))
		sigTyps := make([]*common.TypeInfo, len(args))
		for i, arg := range args {
			sig[i] = arg
			if mask&(1<<i) != 0 {
				sig[i] = reg.vector(arg)
			}
			sigTyps[i] = reg.types.MustLookup(sig[i])
		}
		reg.ops[opKey(name, sig)] = &OpEntry{
			Name:   name,
			Args:   sigTyps,
			Result: reg.types.MustLookup(vecResult),
			Kernel: kernel,
		}
	}
}

func (reg *Registry) vector(id oid.Oid) oid.Oid {
	v, ok := reg.types.VectorCounterpart(id)
	if !ok {
		panic(fmt.Sprintf("type %d has no vector counterpart", id))
	}
	return v
}

func (reg *Registry) LookupOp(name string, args []oid.Oid) (*OpEntry, bool) {
	entry, ok := reg.ops[opKey(name, args)]
	return entry, ok
}

// OpResult is the result type of name over args.
func (reg *Registry) OpResult(name string, args []oid.Oid) (oid.Oid, bool) {
	entry, ok := reg.LookupOp(name, args)
	if !ok {
		return 0, false
	}
	return entry.Result.Id, true
}

func aggKey(name string, arg oid.Oid, star bool) string {
	if star {
		return name + "(*)"
	}
	return opKey(name, []oid.Oid{arg})
}

// RegisterAgg adds a scalar and a vector entry. arg is ignored for star
// aggregates.
func (reg *Registry) RegisterAgg(name string, arg oid.Oid, star bool, result oid.Oid, trans TransKernel, final FinalFunc) {
	var argTyp, vecArgTyp *common.TypeInfo
	if !star {
		argTyp = reg.types.MustLookup(arg)
		vecArgTyp = reg.types.MustLookup(reg.vector(arg))
	}
	reg.aggs[aggKey(name, arg, star)] = &AggEntry{
		Name:   name,
		Star:   star,
		Arg:    argTyp,
		Result: reg.types.MustLookup(result),
		Trans:  trans,
		Final:  final,
	}
	vecKey := "v" + aggKey(name, 0, true)
	if !star {
		vecKey = aggKey(name, vecArgTyp.Id, false)
	}
	reg.aggs[vecKey] = &AggEntry{
		Name:   name,
		Star:   star,
		Arg:    vecArgTyp,
		Result: reg.types.MustLookup(reg.vector(result)),
		Trans:  trans,
		Final:  final,
	}
}

// LookupAgg finds the aggregate for arg, falling back to the entry
// declared over any. vector selects the vector entry of star
// aggregates.
func (reg *Registry) LookupAgg(name string, arg oid.Oid, star bool, vector bool) (*AggEntry, bool) {
	if star {
		key := aggKey(name, 0, true)
		if vector {
			key = "v" + key
		}
		entry, ok := reg.aggs[key]
		return entry, ok
	}
	if entry, ok := reg.aggs[aggKey(name, arg, false)]; ok {
		return entry, true
	}
	anyTyp := oid.T_any
	if reg.types.IsVector(arg) {
		anyTyp = common.T_vany
	}
	entry, ok := reg.aggs[aggKey(name, anyTyp, false)]
	return entry, ok
}

func (reg *Registry) AggResult(name string, arg oid.Oid, star bool, vector bool) (oid.Oid, bool) {
	entry, ok := reg.LookupAgg(name, arg, star, vector)
	if !ok {
		return 0, false
	}
	return entry.Result.Id, true
}

// ScalarOf evaluates kernel on a single row.
func ScalarOf(kernel Kernel, args []*common.TypeInfo, result *common.TypeInfo) ScalarFunc {
	return func(vals []common.Value) (common.Value, error) {
		cols := make([]*chunk.Column, len(vals))
		for i, val := range vals {
			cols[i] = chunk.NewColumn(args[i], 1)
			cols[i].SetValue(0, val)
		}
		res := chunk.NewColumn(result, 1)
		if err := kernel(res, cols, []bool{false}, 1); err != nil {
			return common.Value{}, err
		}
		return res.GetValue(0), nil
	}
}

var (
	intTypes   = []oid.Oid{oid.T_int2, oid.T_int4, oid.T_int8}
	floatTypes = []oid.Oid{oid.T_float4, oid.T_float8}
	textTypes  = []oid.Oid{oid.T_text, oid.T_varchar, oid.T_bpchar}
)

func (reg *Registry) width(id oid.Oid) int {
	return reg.types.MustLookup(id).Len
}

func (reg *Registry) registerBuiltins() {
	for name, pred := range comparePreds {
		reg.registerCompare(name, pred)
	}
	for _, name := range []string{"+", "-", "*", "/"} {
		reg.registerArith(name)
	}
	reg.RegisterOp("and", []oid.Oid{oid.T_bool, oid.T_bool}, oid.T_bool, andKernel)
	reg.RegisterOp("or", []oid.Oid{oid.T_bool, oid.T_bool}, oid.T_bool, orKernel)
	reg.RegisterOp("not", []oid.Oid{oid.T_bool}, oid.T_bool, notKernel)
	for _, typ := range intTypes {
		reg.RegisterOp("-", []oid.Oid{typ}, typ, negKernel(reg.width(typ), false))
	}
	for _, typ := range floatTypes {
		reg.RegisterOp("-", []oid.Oid{typ}, typ, negKernel(reg.width(typ), true))
	}
	reg.registerDatetime()
	reg.registerAggs()
	reg.registerFuncs()
}

func (reg *Registry) registerCompare(name string, pred func(int) bool) {
	sig := func(l, r oid.Oid) []oid.Oid { return []oid.Oid{l, r} }
	for _, l := range intTypes {
		for _, r := range intTypes {
			kernel := compareKernel[int64](getInt, cmpNumber[int64], pred)
			if l == r {
				switch reg.width(l) {
				case 2:
					kernel = sliceCompare[int16](pred)
				case 4:
					kernel = sliceCompare[int32](pred)
				default:
					kernel = sliceCompare[int64](pred)
				}
			}
			reg.RegisterOp(name, sig(l, r), oid.T_bool, kernel)
		}
		for _, r := range floatTypes {
			kernel := compareKernel[float64](getNumber, cmpNumber[float64], pred)
			reg.RegisterOp(name, sig(l, r), oid.T_bool, kernel)
			reg.RegisterOp(name, sig(r, l), oid.T_bool, kernel)
		}
	}
	for _, l := range floatTypes {
		for _, r := range floatTypes {
			kernel := compareKernel[float64](getNumber, cmpNumber[float64], pred)
			if l == r && l == oid.T_float4 {
				kernel = sliceCompare[float32](pred)
			} else if l == r {
				kernel = sliceCompare[float64](pred)
			}
			reg.RegisterOp(name, sig(l, r), oid.T_bool, kernel)
		}
	}
	reg.RegisterOp(name, sig(oid.T_date, oid.T_date), oid.T_bool, sliceCompare[int32](pred))
	reg.RegisterOp(name, sig(oid.T_timestamp, oid.T_timestamp), oid.T_bool, sliceCompare[int64](pred))
	for _, l := range textTypes {
		for _, r := range textTypes {
			reg.RegisterOp(name, sig(l, r), oid.T_bool, compareKernel[[]byte](getText, bytes.Compare, pred))
		}
	}
	reg.RegisterOp(name, sig(oid.T_bool, oid.T_bool), oid.T_bool, compareKernel[bool](getBool, cmpBool, pred))
}

// registerArith: ints widen to the wider operand, any float operand
// other than float4 with float4 gives float8.
func (reg *Registry) registerArith(name string) {
	for _, l := range intTypes {
		for _, r := range intTypes {
			res := l
			if reg.width(r) > reg.width(l) {
				res = r
			}
			reg.RegisterOp(name, []oid.Oid{l, r}, res, intArithKernel(name, reg.width(res)))
		}
		for _, r := range floatTypes {
			reg.RegisterOp(name, []oid.Oid{l, r}, oid.T_float8, floatArithKernel(name, 8))
			reg.RegisterOp(name, []oid.Oid{r, l}, oid.T_float8, floatArithKernel(name, 8))
		}
	}
	for _, l := range floatTypes {
		for _, r := range floatTypes {
			res := oid.T_float8
			if l == oid.T_float4 && r == oid.T_float4 {
				res = oid.T_float4
			}
			reg.RegisterOp(name, []oid.Oid{l, r}, res, floatArithKernel(name, reg.width(res)))
		}
	}
}

func (reg *Registry) registerAggs() {
	reg.RegisterAgg("count", 0, true, oid.T_int8, countStarTrans, finalCount)
	reg.RegisterAgg("count", oid.T_any, false, oid.T_int8, countTrans, finalCount)

	less := func(c int) bool { return c < 0 }
	greater := func(c int) bool { return c > 0 }
	for _, typ := range intTypes {
		if typ == oid.T_int8 {
			reg.RegisterAgg("sum", typ, false, oid.T_numeric, decSumTrans, finalDec)
		} else {
			reg.RegisterAgg("sum", typ, false, oid.T_int8, intSumTrans, finalInt)
		}
		reg.RegisterAgg("avg", typ, false, oid.T_numeric, decSumTrans, finalDecAvg)
	}
	for _, typ := range floatTypes {
		reg.RegisterAgg("sum", typ, false, typ, floatSumTrans, finalFloat)
		reg.RegisterAgg("avg", typ, false, oid.T_float8, floatSumTrans, finalFloatAvg)
	}
	for _, typ := range append(append([]oid.Oid{}, intTypes...), oid.T_date, oid.T_timestamp) {
		reg.RegisterAgg("min", typ, false, typ, minMaxInt(less), finalInt)
		reg.RegisterAgg("max", typ, false, typ, minMaxInt(greater), finalInt)
	}
	for _, typ := range floatTypes {
		reg.RegisterAgg("min", typ, false, typ, minMaxFloat(less), finalFloat)
		reg.RegisterAgg("max", typ, false, typ, minMaxFloat(greater), finalFloat)
	}
	for _, typ := range textTypes {
		reg.RegisterAgg("min", typ, false, typ, minMaxText(less), finalText)
		reg.RegisterAgg("max", typ, false, typ, minMaxText(greater), finalText)
	}
}

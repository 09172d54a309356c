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
	"strings"
	"unicode/utf8"

	"github.com/lib/pq/oid"
	"github.com/pkg/errors"

	"github.com/daviszhen/vexec/pkg/common"
)

// RegisterFunc adds a row-only function. It has no kernel and no
// vector signature, so plans using it stay on the row engine.
func (reg *Registry) RegisterFunc(name string, args []oid.Oid, result oid.Oid, fn ScalarFunc) {
	argTyps := make([]*common.TypeInfo, len(args))
	for i, arg := range args {
		argTyps[i] = reg.types.MustLookup(arg)
	}
	reg.ops[opKey(name, args)] = &OpEntry{
		Name:   name,
		Args:   argTyps,
		Result: reg.types.MustLookup(result),
		Scalar: fn,
	}
}

// strict wraps fn so that any null argument yields null.
func strict(result *common.TypeInfo, fn func(args []common.Value) (common.Value, error)) ScalarFunc {
	return func(args []common.Value) (common.Value, error) {
		for _, arg := range args {
			if arg.IsNull {
				return common.NullValue(result), nil
			}
		}
		return fn(args)
	}
}

func (reg *Registry) registerFuncs() {
	for _, typ := range textTypes {
		resTyp := reg.types.MustLookup(typ)
		reg.RegisterFunc("upper", []oid.Oid{typ}, typ, strict(resTyp, func(args []common.Value) (common.Value, error) {
			return common.StringValue(resTyp, strings.ToUpper(args[0].Str)), nil
		}))
		reg.RegisterFunc("lower", []oid.Oid{typ}, typ, strict(resTyp, func(args []common.Value) (common.Value, error) {
			return common.StringValue(resTyp, strings.ToLower(args[0].Str)), nil
		}))
		lenTyp := reg.types.MustLookup(oid.T_int4)
		reg.RegisterFunc("length", []oid.Oid{typ}, oid.T_int4, strict(lenTyp, func(args []common.Value) (common.Value, error) {
			s := args[0].Str
			if typ == oid.T_bpchar {
				s = strings.TrimRight(s, " ")
			}
			return common.IntValue(lenTyp, int64(utf8.RuneCountInString(s))), nil
		}))
		boolTyp := reg.types.MustLookup(oid.T_bool)
		for _, pat := range textTypes {
			reg.RegisterFunc("~~", []oid.Oid{typ, pat}, oid.T_bool, strict(boolTyp, func(args []common.Value) (common.Value, error) {
				return common.BoolValue(boolTyp, WildcardMatch(args[1].Str, args[0].Str)), nil
			}))
			reg.RegisterFunc("!~~", []oid.Oid{typ, pat}, oid.T_bool, strict(boolTyp, func(args []common.Value) (common.Value, error) {
				return common.BoolValue(boolTyp, !WildcardMatch(args[1].Str, args[0].Str)), nil
			}))
		}
	}
	for _, typ := range intTypes {
		resTyp := reg.types.MustLookup(typ)
		lo, _ := intRange(resTyp.Len)
		reg.RegisterFunc("abs", []oid.Oid{typ}, typ, strict(resTyp, func(args []common.Value) (common.Value, error) {
			v := args[0].I64
			if v == lo {
				return common.Value{}, errors.Wrapf(ErrOutOfRange, "%s out of range", intRangeNames[resTyp.Len])
			}
			if v < 0 {
				v = -v
			}
			return common.IntValue(resTyp, v), nil
		}))
	}
	for _, typ := range floatTypes {
		resTyp := reg.types.MustLookup(typ)
		reg.RegisterFunc("abs", []oid.Oid{typ}, typ, strict(resTyp, func(args []common.Value) (common.Value, error) {
			v := args[0].F64
			if v < 0 {
				v = -v
			}
			return common.FloatValue(resTyp, v), nil
		}))
	}
}

// WildcardMatch implements the LIKE pattern match. % matches any run
// of characters and _ exactly one byte.
func WildcardMatch(pattern, target string) bool {
	var p = 0
	var t = 0
	var percentNext = -1
	var targetAtPercent = -1
	plen := len(pattern)
	tlen := len(target)
	for t < tlen {
		if p < plen && pattern[p] == '%' {
			p++
			percentNext = p
			if p >= plen {
				return true
			}
			//% matches empty first
			targetAtPercent = t
		} else if p < plen && (pattern[p] == '_' || pattern[p] == target[t]) {
			p++
			t++
		} else {
			if percentNext == -1 || targetAtPercent == -1 {
				return false
			}
			//backtrack: % swallows one more byte
			p = percentNext
			targetAtPercent++
			t = targetAtPercent
		}
	}
	for p < plen && pattern[p] == '%' {
		p++
	}
	return p >= plen
}

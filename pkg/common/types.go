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

	"github.com/lib/pq/oid"
)

type Kind int

const (
	KindAny Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindDate
	KindTimestamp
	KindNumeric
	KindInterval
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindNumeric:
		return "numeric"
	case KindInterval:
		return "interval"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

const (
	// LenVarlena marks a length-prefixed value.
	LenVarlena = -1
	// LenCString marks a NUL terminated value.
	LenCString = -2
)

// TypeInfo describes a value layout. Vector types share the element
// layout of their scalar counterpart.
type TypeInfo struct {
	Id     oid.Oid
	Name   string
	Len    int
	Align  int
	ByVal  bool
	Vector bool
	Kind   Kind
}

func (ti *TypeInfo) String() string {
	return ti.Name
}

// IsVarlena reports a variable width value with a length header.
func (ti *TypeInfo) IsVarlena() bool {
	return ti.Len == LenVarlena
}

func (ti *TypeInfo) IsFixed() bool {
	return ti.Len > 0
}

// Vector type oids live outside the builtin catalog range.
const (
	T_vany       oid.Oid = 16400
	T_vint2      oid.Oid = 16401
	T_vint4      oid.Oid = 16402
	T_vint8      oid.Oid = 16403
	T_vfloat4    oid.Oid = 16404
	T_vfloat8    oid.Oid = 16405
	T_vbool      oid.Oid = 16406
	T_vtext      oid.Oid = 16407
	T_vdate      oid.Oid = 16408
	T_vbpchar    oid.Oid = 16409
	T_vtimestamp oid.Oid = 16410
	T_vvarchar   oid.Oid = 16411
	T_vnumeric   oid.Oid = 16412
	T_vinterval  oid.Oid = 16413
)

var builtinScalars = []TypeInfo{
	{Id: oid.T_any, Name: "any", Len: 4, Align: 4, ByVal: true, Kind: KindAny},
	{Id: oid.T_int2, Name: "int2", Len: 2, Align: 2, ByVal: true, Kind: KindInt},
	{Id: oid.T_int4, Name: "int4", Len: 4, Align: 4, ByVal: true, Kind: KindInt},
	{Id: oid.T_int8, Name: "int8", Len: 8, Align: 8, ByVal: true, Kind: KindInt},
	{Id: oid.T_float4, Name: "float4", Len: 4, Align: 4, ByVal: true, Kind: KindFloat},
	{Id: oid.T_float8, Name: "float8", Len: 8, Align: 8, ByVal: true, Kind: KindFloat},
	{Id: oid.T_bool, Name: "bool", Len: 1, Align: 1, ByVal: true, Kind: KindBool},
	{Id: oid.T_text, Name: "text", Len: LenVarlena, Align: 4, Kind: KindString},
	{Id: oid.T_date, Name: "date", Len: 4, Align: 4, ByVal: true, Kind: KindDate},
	{Id: oid.T_bpchar, Name: "bpchar", Len: LenVarlena, Align: 4, Kind: KindString},
	{Id: oid.T_timestamp, Name: "timestamp", Len: 8, Align: 8, ByVal: true, Kind: KindTimestamp},
	{Id: oid.T_varchar, Name: "varchar", Len: LenVarlena, Align: 4, Kind: KindString},
	{Id: oid.T_numeric, Name: "numeric", Len: LenVarlena, Align: 4, Kind: KindNumeric},
	{Id: oid.T_interval, Name: "interval", Len: IntervalSize, Align: 8, Kind: KindInterval},
}

var builtinVectors = []oid.Oid{
	T_vany, T_vint2, T_vint4, T_vint8, T_vfloat4, T_vfloat8, T_vbool,
	T_vtext, T_vdate, T_vbpchar, T_vtimestamp, T_vvarchar, T_vnumeric,
	T_vinterval,
}

// TypeMap is the bidirectional scalar/vector catalog. It is built once
// by the engine and handed to every component that needs it.
type TypeMap struct {
	byId     map[oid.Oid]*TypeInfo
	byName   map[string]*TypeInfo
	toVector map[oid.Oid]oid.Oid
	toScalar map[oid.Oid]oid.Oid
}

func NewTypeMap() *TypeMap {
	tm := &TypeMap{
		byId:     make(map[oid.Oid]*TypeInfo),
		byName:   make(map[string]*TypeInfo),
		toVector: make(map[oid.Oid]oid.Oid),
		toScalar: make(map[oid.Oid]oid.Oid),
	}
	for i, scalar := range builtinScalars {
		tm.Register(scalar, builtinVectors[i])
	}
	//aliases accepted in schemas
	tm.byName["integer"] = tm.byId[oid.T_int4]
	tm.byName["int"] = tm.byId[oid.T_int4]
	tm.byName["smallint"] = tm.byId[oid.T_int2]
	tm.byName["bigint"] = tm.byId[oid.T_int8]
	tm.byName["real"] = tm.byId[oid.T_float4]
	tm.byName["double"] = tm.byId[oid.T_float8]
	tm.byName["boolean"] = tm.byId[oid.T_bool]
	tm.byName["char"] = tm.byId[oid.T_bpchar]
	tm.byName["decimal"] = tm.byId[oid.T_numeric]
	return tm
}

// Register adds a scalar type and its vector counterpart.
func (tm *TypeMap) Register(scalar TypeInfo, vector oid.Oid) {
	s := scalar
	s.Vector = false
	v := scalar
	v.Id = vector
	v.Name = "v" + scalar.Name
	v.Vector = true
	tm.byId[s.Id] = &s
	tm.byId[v.Id] = &v
	tm.byName[s.Name] = &s
	tm.byName[v.Name] = &v
	tm.toVector[s.Id] = v.Id
	tm.toScalar[v.Id] = s.Id
}

func (tm *TypeMap) Lookup(id oid.Oid) (*TypeInfo, bool) {
	ti, ok := tm.byId[id]
	return ti, ok
}

func (tm *TypeMap) LookupName(name string) (*TypeInfo, bool) {
	ti, ok := tm.byName[name]
	return ti, ok
}

// MustLookup is for oids produced by the catalog itself.
func (tm *TypeMap) MustLookup(id oid.Oid) *TypeInfo {
	ti, ok := tm.byId[id]
	if !ok {
		panic(fmt.Sprintf("unknown type oid %d", id))
	}
	return ti
}

// VectorCounterpart maps a scalar type to its vector type.
func (tm *TypeMap) VectorCounterpart(scalar oid.Oid) (oid.Oid, bool) {
	v, ok := tm.toVector[scalar]
	return v, ok
}

// ScalarCounterpart maps a vector type back to its scalar type.
func (tm *TypeMap) ScalarCounterpart(vector oid.Oid) (oid.Oid, bool) {
	s, ok := tm.toScalar[vector]
	return s, ok
}

func (tm *TypeMap) IsVector(id oid.Oid) bool {
	_, ok := tm.toScalar[id]
	return ok
}

// ToScalar returns id itself for scalar types.
func (tm *TypeMap) ToScalar(id oid.Oid) oid.Oid {
	if s, ok := tm.toScalar[id]; ok {
		return s
	}
	return id
}

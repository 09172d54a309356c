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

type Attribute struct {
	Name    string
	Typ     *TypeInfo
	NotNull bool
}

// TupleDesc is the row shape seen by one operator. Operators copy the
// descriptor they are given and never share a mutable one.
type TupleDesc struct {
	Attrs []Attribute
}

func NewTupleDesc(attrs ...Attribute) *TupleDesc {
	desc := &TupleDesc{Attrs: make([]Attribute, len(attrs))}
	copy(desc.Attrs, attrs)
	return desc
}

func (desc *TupleDesc) Natts() int {
	return len(desc.Attrs)
}

func (desc *TupleDesc) Copy() *TupleDesc {
	return NewTupleDesc(desc.Attrs...)
}

func (desc *TupleDesc) Types() []*TypeInfo {
	ret := make([]*TypeInfo, len(desc.Attrs))
	for i, attr := range desc.Attrs {
		ret[i] = attr.Typ
	}
	return ret
}

func (desc *TupleDesc) Index(name string) int {
	for i, attr := range desc.Attrs {
		if attr.Name == name {
			return i
		}
	}
	return -1
}

// Vectorize copies the descriptor with every attribute retyped to its
// vector counterpart.
func (desc *TupleDesc) Vectorize(tm *TypeMap) (*TupleDesc, error) {
	return desc.retype(tm, func(id oid.Oid) (oid.Oid, bool) {
		if tm.IsVector(id) {
			return id, true
		}
		return tm.VectorCounterpart(id)
	})
}

// Scalarize is the inverse of Vectorize.
func (desc *TupleDesc) Scalarize(tm *TypeMap) (*TupleDesc, error) {
	return desc.retype(tm, func(id oid.Oid) (oid.Oid, bool) {
		if !tm.IsVector(id) {
			return id, true
		}
		return tm.ScalarCounterpart(id)
	})
}

func (desc *TupleDesc) retype(tm *TypeMap, fn func(oid.Oid) (oid.Oid, bool)) (*TupleDesc, error) {
	ret := desc.Copy()
	for i := range ret.Attrs {
		to, ok := fn(ret.Attrs[i].Typ.Id)
		if !ok {
			return nil, fmt.Errorf("%w: no counterpart for type %s of column %s",
				ErrTypeNotFound, ret.Attrs[i].Typ.Name, ret.Attrs[i].Name)
		}
		ret.Attrs[i].Typ = tm.MustLookup(to)
	}
	return ret, nil
}

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

package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/daviszhen/vexec/pkg/chunk"
	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/datum"
)

var (
	ErrRelationExists   = errors.New("relation already exists")
	ErrRelationNotFound = errors.New("relation not found")
)

const FaultNextVisibleRow = "storage.nextVisibleRow"

type RelKind int

const (
	// RelHeap pages are shared through the buffer pool.
	RelHeap RelKind = iota
	// RelTemp pages are private and never pinned.
	RelTemp
	// RelColumn is an append only column store.
	RelColumn
)

func (kind RelKind) String() string {
	switch kind {
	case RelHeap:
		return "heap"
	case RelTemp:
		return "temp"
	case RelColumn:
		return "column"
	default:
		return "unknown"
	}
}

// Tuple is one visible row returned by a scan. Page is set when Data
// lives on a shared page; the scan's pin on it lasts only until the
// next call to Next.
type Tuple struct {
	Data   []byte
	Page   chunk.Pinnable
	Format datum.Format
}

type PageScan interface {
	// Next returns the next visible tuple; ok is false at the end.
	Next(ctx context.Context) (tup Tuple, ok bool, err error)
	// Rescan restarts from the first page.
	Rescan()
	// End releases what the scan holds. It may be called repeatedly.
	End()
}

type Relation interface {
	Name() string
	// Desc returns a copy of the row descriptor.
	Desc() *common.TupleDesc
	Kind() RelKind
	// TupleFormat is the format of the tuples BeginScan yields.
	TupleFormat() datum.Format
	BeginScan(snap *Snapshot) PageScan
}

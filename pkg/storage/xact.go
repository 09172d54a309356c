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
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

const (
	InvalidXid uint32 = 0
	// FrozenXid is committed and visible to every snapshot.
	FrozenXid uint32 = 2
	firstXid  uint32 = 3
)

// XactLog records the outcome of every transaction.
type XactLog struct {
	mu        sync.RWMutex
	next      uint32
	committed *roaring.Bitmap
	aborted   *roaring.Bitmap
}

func NewXactLog() *XactLog {
	committed := roaring.New()
	committed.Add(FrozenXid)
	return &XactLog{
		next:      firstXid,
		committed: committed,
		aborted:   roaring.New(),
	}
}

func (xl *XactLog) Begin() uint32 {
	xl.mu.Lock()
	defer xl.mu.Unlock()
	xid := xl.next
	xl.next++
	return xid
}

func (xl *XactLog) Commit(xid uint32) error {
	return xl.finish(xid, true)
}

func (xl *XactLog) Abort(xid uint32) error {
	return xl.finish(xid, false)
}

func (xl *XactLog) finish(xid uint32, commit bool) error {
	xl.mu.Lock()
	defer xl.mu.Unlock()
	if xid < firstXid || xid >= xl.next {
		return fmt.Errorf("unknown transaction %d", xid)
	}
	if xl.committed.Contains(xid) || xl.aborted.Contains(xid) {
		return fmt.Errorf("transaction %d already finished", xid)
	}
	if commit {
		xl.committed.Add(xid)
	} else {
		xl.aborted.Add(xid)
	}
	return nil
}

// Snapshot captures the transactions committed so far. xid is the
// transaction taking the snapshot, InvalidXid for read only queries.
func (xl *XactLog) Snapshot(xid uint32) *Snapshot {
	xl.mu.RLock()
	defer xl.mu.RUnlock()
	return &Snapshot{
		Xid:       xid,
		xmax:      xl.next,
		committed: xl.committed.Clone(),
	}
}

type Snapshot struct {
	Xid       uint32
	xmax      uint32
	committed *roaring.Bitmap
}

func (snap *Snapshot) committedBefore(xid uint32) bool {
	return xid < snap.xmax && snap.committed.Contains(xid)
}

// Visible applies the insert/delete rules to one tuple version.
func (snap *Snapshot) Visible(xmin, xmax uint32) bool {
	own := snap.Xid != InvalidXid
	if !(own && xmin == snap.Xid) && !snap.committedBefore(xmin) {
		return false
	}
	if xmax == InvalidXid {
		return true
	}
	if own && xmax == snap.Xid {
		return false
	}
	return !snap.committedBefore(xmax)
}

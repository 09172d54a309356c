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

package chunk

import (
	"github.com/daviszhen/vexec/pkg/util"
)

// Pinnable is a page whose memory stays valid while pinned.
type Pinnable interface {
	Pin()
	Unpin()
}

// PinHandle owns one pin. Release is idempotent.
type PinHandle struct {
	page Pinnable
}

func NewPinHandle(page Pinnable) *PinHandle {
	page.Pin()
	return &PinHandle{page: page}
}

func (h *PinHandle) Page() Pinnable {
	return h.page
}

func (h *PinHandle) Release() {
	if h.page == nil {
		return
	}
	h.page.Unpin()
	h.page = nil
}

// PinSet holds the pins of the pages backing a batch. Consecutive rows
// from the same page share one pin.
type PinSet struct {
	handles []*PinHandle
}

// Hold pins page unless it is the page of the previous row.
func (ps *PinSet) Hold(page Pinnable) {
	util.AssertFunc(page != nil)
	if n := len(ps.handles); n > 0 && ps.handles[n-1].page == page {
		return
	}
	ps.handles = append(ps.handles, NewPinHandle(page))
}

func (ps *PinSet) Len() int {
	return len(ps.handles)
}

// ReleaseAll drops every pin exactly once.
func (ps *PinSet) ReleaseAll() {
	for i, h := range ps.handles {
		h.Release()
		ps.handles[i] = nil
	}
	ps.handles = ps.handles[:0]
}

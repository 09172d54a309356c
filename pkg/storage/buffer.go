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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/daviszhen/vexec/pkg/util"
)

const PageSize = 8192

type itemId struct {
	off  uint16
	size uint16
}

// Page is a slotted heap page. Tuples live in data and are addressed
// by line pointers.
type Page struct {
	pool  *BufferPool
	blkno uint32
	data  []byte
	items []itemId
	pins  int
}

func newPage(pool *BufferPool, blkno uint32) *Page {
	return &Page{
		pool:  pool,
		blkno: blkno,
		data:  make([]byte, 0, PageSize),
	}
}

func (page *Page) Blkno() uint32 {
	return page.blkno
}

func (page *Page) NTuples() int {
	return len(page.items)
}

func (page *Page) freeSpace() int {
	return cap(page.data) - len(page.data)
}

// addTuple appends tup 8 byte aligned and returns its line pointer
// index, or -1 when the page is full.
func (page *Page) addTuple(tup []byte) int {
	start := util.AlignValue8(len(page.data))
	if start+len(tup) > cap(page.data) {
		return -1
	}
	page.data = page.data[:start+len(tup)]
	copy(page.data[start:], tup)
	page.items = append(page.items, itemId{off: uint16(start), size: uint16(len(tup))})
	return len(page.items) - 1
}

func (page *Page) tuple(idx int) []byte {
	it := page.items[idx]
	return page.data[it.off : int(it.off)+int(it.size) : int(it.off)+int(it.size)]
}

func (page *Page) Pin() {
	if page.pool != nil {
		page.pool.pin(page)
	}
}

func (page *Page) Unpin() {
	if page.pool != nil {
		page.pool.unpin(page)
	}
}

// BufferPool accounts for the pins on shared pages.
type BufferPool struct {
	lock  *util.ReentryLock
	total int
	gauge prometheus.Gauge
}

func NewBufferPool() *BufferPool {
	return &BufferPool{lock: util.NewReentryLock()}
}

// SetGauge mirrors the pin count into gauge.
func (pool *BufferPool) SetGauge(gauge prometheus.Gauge) {
	pool.lock.Lock()
	defer pool.lock.Unlock()
	pool.gauge = gauge
	if gauge != nil {
		gauge.Set(float64(pool.total))
	}
}

func (pool *BufferPool) pin(page *Page) {
	pool.lock.Lock()
	defer pool.lock.Unlock()
	page.pins++
	pool.total++
	if pool.gauge != nil {
		pool.gauge.Inc()
	}
}

func (pool *BufferPool) unpin(page *Page) {
	pool.lock.Lock()
	defer pool.lock.Unlock()
	if page.pins <= 0 {
		panic(fmt.Sprintf("unpin of unpinned page %d", page.blkno))
	}
	page.pins--
	pool.total--
	if pool.gauge != nil {
		pool.gauge.Dec()
	}
}

// Pins is the number of outstanding pins.
func (pool *BufferPool) Pins() int {
	pool.lock.Lock()
	defer pool.lock.Unlock()
	return pool.total
}

// PagePins is the pin count of one page.
func (pool *BufferPool) PagePins(page *Page) int {
	pool.lock.Lock()
	defer pool.lock.Unlock()
	return page.pins
}

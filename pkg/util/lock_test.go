package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReentryLock(t *testing.T) {
	lock := NewReentryLock()
	lock.Lock()
	lock.Lock()
	assert.Equal(t, uint64(2), lock.Depth())
	lock.Unlock()
	lock.Unlock()
	assert.Equal(t, uint64(0), lock.Depth())

	counter := 0
	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				lock.Lock()
				lock.Lock()
				counter++
				lock.Unlock()
				lock.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, counter)

	assert.Panics(t, func() { lock.Unlock() })
}

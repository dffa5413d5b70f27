package trading

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("A1/1")
			defer unlock()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("A1/1")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("A1/2")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	unlockA()
}

func TestKeyedMutex_UnlockIsIdempotent(t *testing.T) {
	km := NewKeyedMutex()

	unlock := km.Lock("k")
	unlock()
	assert.NotPanics(t, unlock)
	assert.Equal(t, 0, km.Len())
}

func TestPositionKey(t *testing.T) {
	assert.Equal(t, "A1/42", PositionKey("A1", 42))
	assert.NotEqual(t, PositionKey("A1", 1), PositionKey("A11", 1))
}

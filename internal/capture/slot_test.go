package capture

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotEmpty(t *testing.T) {
	var s frameSlot

	_, ok := s.take(true)
	assert.False(t, ok)
	_, ok = s.take(false)
	assert.False(t, ok)
}

func TestSlotFreshness(t *testing.T) {
	var s frameSlot
	s.publish(1, 115200)

	v, ok := s.take(true)
	assert.True(t, ok)
	assert.Equal(t, 1, v.index)
	assert.Equal(t, 115200, v.bytesUsed)
	assert.Equal(t, uint32(1), v.seq)

	// Already consumed.
	_, ok = s.take(true)
	assert.False(t, ok)

	// Repeat mode hands out the same frame again.
	v, ok = s.take(false)
	assert.True(t, ok)
	assert.Equal(t, 1, v.index)
	assert.Equal(t, uint32(1), v.seq)

	s.publish(0, 100)
	v, ok = s.take(true)
	assert.True(t, ok)
	assert.Equal(t, 0, v.index)
	assert.Equal(t, 100, v.bytesUsed)
	assert.Equal(t, uint32(2), v.seq)

	s.reset()
	_, ok = s.take(false)
	assert.False(t, ok)
}

func TestSlotPeek(t *testing.T) {
	var s frameSlot

	_, ok := s.peek()
	assert.False(t, ok)

	s.publish(1, 64)
	v, ok := s.peek()
	assert.True(t, ok)
	assert.Equal(t, 1, v.index)
	assert.True(t, v.ready)

	// Peeking leaves the frame new.
	_, ok = s.take(true)
	assert.True(t, ok)
	v, ok = s.peek()
	assert.True(t, ok)
	assert.False(t, v.ready)
}

func TestSlotSequenceWraps(t *testing.T) {
	var s frameSlot
	s.word.Store(uint64(1<<30-1) << slotSeqShift)

	s.publish(1, 10)
	v := s.load()
	assert.Equal(t, uint32(1), v.seq)
	assert.True(t, v.ready)
}

func TestSlotConcurrent(t *testing.T) {
	const n = 100000
	var s frameSlot
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			// Length encodes the index so that torn reads show up.
			s.publish(i&1, i)
		}
	}()

	var last uint32
	for last < n {
		v, ok := s.take(true)
		if !ok {
			continue
		}
		if v.bytesUsed&1 != v.index {
			t.Fatalf("torn slot: index %d, length %d", v.index, v.bytesUsed)
		}
		if v.seq <= last {
			t.Fatalf("sequence went from %d to %d", last, v.seq)
		}
		last = v.seq
	}
	wg.Wait()
}

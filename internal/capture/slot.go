package capture

import "sync/atomic"

// frameSlot hands the most recently published buffer from the capture loop to
// the consumer. The whole slot lives in one word so that the index, length
// and freshness flag are always observed together.
//
//	bits  0-31  bytes used
//	bit     32  buffer index
//	bit     33  ready
//	bits 34-63  publish sequence
//
// The capture loop is the only writer of new values; the consumer only ever
// clears the ready bit, and does so with a compare-and-swap so that it can
// never clobber a newer publish.
type frameSlot struct {
	word atomic.Uint64
}

const (
	slotIndexShift = 32
	slotReadyBit   = 1 << 33
	slotSeqShift   = 34
)

type slotValue struct {
	index     int
	bytesUsed int
	ready     bool
	seq       uint32
}

func unpackSlot(w uint64) slotValue {
	return slotValue{
		index:     int(w >> slotIndexShift & 1),
		bytesUsed: int(uint32(w)),
		ready:     w&slotReadyBit != 0,
		seq:       uint32(w >> slotSeqShift),
	}
}

func (s *frameSlot) publish(index, bytesUsed int) {
	seq := s.word.Load()>>slotSeqShift + 1
	if seq >= 1<<(64-slotSeqShift) {
		seq = 1 // zero means "never published"
	}
	s.word.Store(seq<<slotSeqShift | slotReadyBit | uint64(index&1)<<slotIndexShift | uint64(uint32(bytesUsed)))
}

func (s *frameSlot) load() slotValue {
	return unpackSlot(s.word.Load())
}

// take returns the current slot value and marks it consumed. ok is false if
// nothing has been published yet, or if onlyNew is set and the current value
// was already consumed.
func (s *frameSlot) take(onlyNew bool) (v slotValue, ok bool) {
	for {
		w := s.word.Load()
		v = unpackSlot(w)
		if v.seq == 0 {
			return v, false
		}
		if !v.ready {
			return v, !onlyNew
		}
		if s.word.CompareAndSwap(w, w&^slotReadyBit) {
			return v, true
		}
	}
}

// peek returns the current slot value without consuming it. ok is false if
// nothing has been published yet.
func (s *frameSlot) peek() (v slotValue, ok bool) {
	v = s.load()
	return v, v.seq != 0
}

func (s *frameSlot) reset() {
	s.word.Store(0)
}

package capture

import (
	"sync/atomic"

	"github.com/lanikai/alohacap/internal/v4l2"
)

// A driver buffer mapped into process memory.
type mappedBuffer struct {
	info v4l2.BufferInfo
	data []byte
}

// bufferPool owns the memory-mapped driver buffers of one open device.
type bufferPool struct {
	dev     Device
	metrics *deviceMetrics
	buffers []mappedBuffer

	// Driver frame sequence number of the last fill of each buffer.
	sequences []atomic.Uint32
}

// newBufferPool requests count capture buffers from the driver, maps every
// buffer granted and queues them all. On failure nothing stays mapped.
func newBufferPool(dev Device, count int, metrics *deviceMetrics) (*bufferPool, error) {
	granted, err := dev.RequestBuffers(count)
	if err != nil {
		return nil, mmapError(ErrNoBuffers, err)
	}
	if granted <= 0 {
		return nil, mmapError(ErrNoBuffers, nil)
	}
	if granted > count {
		log.Warn("driver granted %d buffers, using %d", granted, count)
		granted = count
	} else if granted < count {
		log.Info("driver granted %d of %d buffers", granted, count)
	}

	p := &bufferPool{
		dev:       dev,
		metrics:   metrics,
		buffers:   make([]mappedBuffer, 0, granted),
		sequences: make([]atomic.Uint32, granted),
	}

	for i := 0; i < granted; i++ {
		info, err := dev.QueryBuffer(i)
		if err != nil {
			p.release()
			return nil, mmapError(ErrMapFailed, err)
		}
		data, err := dev.Map(info)
		if err != nil {
			p.release()
			return nil, mmapError(ErrMapFailed, err)
		}
		p.buffers = append(p.buffers, mappedBuffer{info, data})
		metrics.mapped.Inc()
		log.Debug("buffer %d: offset=%d length=%d", i, info.Offset, info.Length)
	}

	for i := range p.buffers {
		if err := dev.Enqueue(i); err != nil {
			p.release()
			return nil, mmapError(ErrQueueFailed, err)
		}
	}

	return p, nil
}

func (p *bufferPool) size() int {
	return len(p.buffers)
}

// Bytes of buffer i, trimmed to n if n is in range.
func (p *bufferPool) bytes(i, n int) []byte {
	data := p.buffers[i].data
	if n > 0 && n <= len(data) {
		return data[:n]
	}
	return data
}

func (p *bufferPool) setSequence(i int, seq uint32) {
	p.sequences[i].Store(seq)
}

func (p *bufferPool) sequence(i int) uint32 {
	return p.sequences[i].Load()
}

// release unmaps every buffer exactly once and frees the driver buffers.
// Calling it again does nothing.
func (p *bufferPool) release() {
	if p.buffers == nil {
		return
	}
	for _, b := range p.buffers {
		if err := p.dev.Unmap(b.data); err != nil {
			log.Warn("unmap buffer %d: %v", b.info.Index, err)
		}
		p.metrics.unmapped.Inc()
	}
	p.buffers = nil

	if _, err := p.dev.RequestBuffers(0); err != nil {
		log.Debug("free driver buffers: %v", err)
	}
}

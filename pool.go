package cann

import (
	"errors"
	"sync"
)

// StreamPool is a simple pool of streams spread across all devices, for
// workers that each need a stream of their own for the duration of a task
type StreamPool struct {
	// pool of streams
	streams chan *Stream
	// all streams created, used to destroy them on Close
	all []*Stream
	// size of pool
	size  int
	close sync.Once
	// mu guards closed so Return never sends on a closed channel
	mu     sync.Mutex
	closed bool
}

// NewStreamPool creates a pool of size streams placed round robin across
// the Context's devices
func (c *Context) NewStreamPool(size int) (*StreamPool, error) {

	p := &StreamPool{
		streams: make(chan *Stream, size),
		size:    size,
	}

	for i := 0; i < size; i++ {
		dev, err := c.device("NewStreamPool", getStreamDevice(i, c.DeviceCount()))

		if err != nil {
			// destroy any streams that may have been created before
			// receiving the error
			p.Close()
			return nil, err
		}

		s := dev.newStream(false)
		p.all = append(p.all, s)

		// attach to pool
		p.Return(s)
	}

	return p, nil
}

// Size returns the number of streams in the pool
func (p *StreamPool) Size() int {
	return p.size
}

// Get a stream from the pool, blocks until one is available
func (p *StreamPool) Get() *Stream {
	return <-p.streams
}

// Return a stream to the pool
func (p *StreamPool) Return(s *Stream) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	select {
	case p.streams <- s:
	default:
		// pool is full
	}
}

// Close the pool and destroy all streams created by it, streams are
// synchronized first and their failures returned
func (p *StreamPool) Close() error {

	var errs []error

	p.close.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.streams)
		p.mu.Unlock()

		// drain
		for range p.streams {
		}

		for _, s := range p.all {
			if err := s.Destroy(); err != nil {
				errs = append(errs, err)
			}
		}
	})

	return errors.Join(errs...)
}

// getStreamDevice takes an integer and returns the device id to place the
// stream on
func getStreamDevice(i, devices int) int {

	if devices <= 0 {
		return 0
	}

	return i % devices
}

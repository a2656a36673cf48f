package cann

import (
	"errors"
	"fmt"
	"sync"
)

// device is a software NPU.  Kernels run on host goroutines, memory comes
// from the device's allocator and each stream is drained by its own worker.
type device struct {
	id    int
	ctx   *Context
	alloc Allocator
	// pool is the default allocator, nil when Config.Allocator is set
	pool *MemoryPool

	mu      sync.Mutex
	null    *Stream
	streams map[string]*Stream
}

// newDevice creates the device with the given id
func newDevice(ctx *Context, id int) *device {

	d := &device{
		id:      id,
		ctx:     ctx,
		streams: make(map[string]*Stream),
	}

	if ctx.cfg.Allocator != nil {
		d.alloc = ctx.cfg.Allocator
	} else {
		d.pool = NewMemoryPool(ctx.cfg.MemoryLimit)
		d.alloc = d.pool
	}

	return d
}

// name returns the device's readable name
func (d *device) name() string {
	return fmt.Sprintf("soft-npu-%d", d.id)
}

// info returns the device information
func (d *device) info() DeviceInfo {

	inf := DeviceInfo{
		ID:      d.id,
		Name:    d.name(),
		Workers: d.ctx.cfg.Workers,
	}

	if d.pool != nil {
		inf.Memory = d.pool.Stats()
	} else {
		inf.Memory.Limit = d.ctx.cfg.MemoryLimit
	}

	return inf
}

// nullStream returns the device's default stream, creating it on first use
func (d *device) nullStream() *Stream {

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.null == nil {
		d.null = startStream(d, true)
	}

	return d.null
}

// newStream starts a user stream on the device
func (d *device) newStream(null bool) *Stream {

	s := startStream(d, null)

	d.mu.Lock()
	d.streams[s.id] = s
	d.mu.Unlock()

	d.ctx.log.Debug("stream created", "stream", s.id, "device", d.id)

	return s
}

// forget removes a destroyed user stream from the device
func (d *device) forget(s *Stream) {
	d.mu.Lock()
	delete(d.streams, s.id)
	d.mu.Unlock()
}

// all returns the null stream, if any, followed by the user streams
func (d *device) all() []*Stream {

	d.mu.Lock()
	defer d.mu.Unlock()

	list := make([]*Stream, 0, len(d.streams)+1)

	if d.null != nil {
		list = append(list, d.null)
	}

	for _, s := range d.streams {
		list = append(list, s)
	}

	return list
}

// synchronize waits on every stream of the device
func (d *device) synchronize() error {

	var errs []error

	for _, s := range d.all() {
		if err := s.wait(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// reset synchronizes the device and drops cached memory.  The null stream
// and user streams remain usable, the wait has cleared any failure they
// held.
func (d *device) reset() error {

	err := d.synchronize()

	if d.pool != nil {
		d.pool.Trim()
	}

	d.ctx.log.Debug("device reset", "device", d.id)

	return err
}

// shutdown stops every stream of the device, best effort
func (d *device) shutdown() error {

	var errs []error

	for _, s := range d.all() {
		if err := s.wait(); err != nil {
			errs = append(errs, err)
		}

		s.stop()
	}

	d.mu.Lock()
	d.null = nil
	d.streams = make(map[string]*Stream)
	d.mu.Unlock()

	if d.pool != nil {
		d.pool.Trim()
	}

	return errors.Join(errs...)
}

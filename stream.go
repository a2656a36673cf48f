package cann

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
)

// task is an operation queued on a stream
type task struct {
	seq  uint64
	name string
	fn   func() error
}

// Stream is an ordered queue of device operations.  Operations on the same
// stream execute in the order they were enqueued, operations on different
// streams have no ordering relative to each other unless synchronized with
// an Event or WaitForCompletion.
type Stream struct {
	id    string
	dev   *device
	epoch uint64
	// null marks the device default stream, work issued on it is waited
	// for before the issuing call returns
	null bool

	tasks chan task
	done  chan struct{}

	// enqMu serializes enqueue so sequence numbers follow queue order
	enqMu sync.Mutex

	mu        sync.Mutex
	cond      *sync.Cond
	submitted uint64
	completed uint64
	stopped   bool
	// failure is the earliest operation failure not yet returned to the
	// caller
	failure *OpError
}

// startStream creates a stream on the device and starts its worker
func startStream(d *device, null bool) *Stream {

	s := &Stream{
		id:    uuid.NewString(),
		dev:   d,
		epoch: d.ctx.currentEpoch(),
		null:  null,
		tasks: make(chan task, d.ctx.cfg.QueueDepth),
		done:  make(chan struct{}),
	}

	s.cond = sync.NewCond(&s.mu)

	go s.worker(d.ctx.cfg.CPUAffinity)

	return s
}

// ID returns the unique identifier of the stream
func (s *Stream) ID() string {
	return s.id
}

// DeviceID returns the id of the device the stream belongs to
func (s *Stream) DeviceID() int {
	return s.dev.id
}

// IsNull reports if this is a device default stream
func (s *Stream) IsNull() bool {
	return s.null
}

// worker executes the stream's tasks in order
func (s *Stream) worker(cores []int) {

	defer close(s.done)

	if len(cores) > 0 {
		// the thread stays locked so it exits with the worker instead of
		// returning pinned to the scheduler
		runtime.LockOSThread()

		if err := setThreadAffinity(cores); err != nil {
			s.dev.ctx.log.Warn("unable to pin stream worker", "stream", s.id, "cores", cores, "error", err)
		}
	}

	for t := range s.tasks {
		err := runTask(t)

		s.mu.Lock()

		if err != nil {
			if s.failure == nil {
				s.failure = &OpError{Stream: s.id, Seq: t.seq, Op: t.name, Err: err}
			} else {
				// only the earliest failure is returned by the next wait
				s.dev.ctx.log.Warn("stream operation failed", "stream", s.id, "seq", t.seq, "op", t.name, "error", err)
			}
		}

		s.completed++
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// runTask executes a task converting a kernel panic into an error
func runTask(t task) (err error) {

	defer func() {
		if r := recover(); r != nil {
			err = &Error{Code: ErrCodeDeviceOperationFailed, Op: t.name, Msg: fmt.Sprintf("kernel panic: %v", r)}
		}
	}()

	return t.fn()
}

// enqueue appends an operation to the stream
func (s *Stream) enqueue(name string, fn func() error) error {

	if err := s.dev.ctx.checkHandle(name, s.epoch); err != nil {
		return err
	}

	s.enqMu.Lock()
	defer s.enqMu.Unlock()

	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()
		return newError(ErrCodeContextFinalized, name, "stream %s has been destroyed", s.id)
	}

	s.submitted++
	seq := s.submitted
	s.mu.Unlock()

	s.tasks <- task{seq: seq, name: name, fn: fn}

	return nil
}

// submit enqueues the operation and, on the null stream, waits for it to
// complete so failures surface at the call site
func (s *Stream) submit(name string, fn func() error) error {

	if err := s.enqueue(name, fn); err != nil {
		return err
	}

	if s.null {
		return s.wait()
	}

	return nil
}

// Launch enqueues a custom kernel on the stream.  An error returned by fn
// is reported by the next synchronizing call on the stream.
func (s *Stream) Launch(name string, fn func() error) error {
	return s.submit(name, fn)
}

// WaitForCompletion blocks until every operation enqueued before the call
// has completed and returns the earliest failure not yet reported
func (s *Stream) WaitForCompletion() error {

	if err := s.dev.ctx.checkHandle("WaitForCompletion", s.epoch); err != nil {
		return err
	}

	return s.wait()
}

// wait blocks until the operations submitted so far have completed
func (s *Stream) wait() error {

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.submitted

	for s.completed < target {
		s.cond.Wait()
	}

	if s.failure != nil {
		err := s.failure
		s.failure = nil
		return err
	}

	return nil
}

// Pending returns the number of operations not yet completed
func (s *Stream) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.submitted - s.completed)
}

// WaitEvent makes all future work on the stream wait until the event's
// most recent record has completed
func (s *Stream) WaitEvent(e *Event) error {

	if err := e.ctx.checkHandle("WaitEvent", e.epoch); err != nil {
		return err
	}

	marker := e.marker()

	return s.submit("WaitEvent", func() error {
		<-marker
		return nil
	})
}

// Destroy waits for the stream to drain and stops its worker.  The null
// stream cannot be destroyed.
func (s *Stream) Destroy() error {

	if s.null {
		return newError(ErrCodeUnsupported, "Destroy", "the null stream cannot be destroyed")
	}

	if err := s.dev.ctx.checkHandle("Destroy", s.epoch); err != nil {
		return err
	}

	err := s.wait()
	s.stop()
	s.dev.forget(s)

	s.dev.ctx.log.Debug("stream destroyed", "stream", s.id, "device", s.dev.id)

	return err
}

// stop closes the task queue and waits for the worker to exit
func (s *Stream) stop() {

	s.enqMu.Lock()
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()
		s.enqMu.Unlock()
		return
	}

	s.stopped = true
	s.mu.Unlock()
	close(s.tasks)
	s.enqMu.Unlock()

	<-s.done
}

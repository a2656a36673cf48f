package cann

import (
	"sync"

	"github.com/google/uuid"
)

// closedMarker is returned for events that were never recorded
var closedMarker = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Event marks a point in a stream's queue.  Other streams and the host can
// wait for the work enqueued before the point to complete.
type Event struct {
	id    string
	ctx   *Context
	epoch uint64

	mu sync.Mutex
	// ch is closed when the most recent record is reached
	ch chan struct{}
}

// NewEvent creates an event that has not been recorded
func (c *Context) NewEvent() (*Event, error) {

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.stateLocked("NewEvent"); err != nil {
		return nil, err
	}

	return &Event{
		id:    uuid.NewString(),
		ctx:   c,
		epoch: c.epoch,
	}, nil
}

// ID returns the unique identifier of the event
func (e *Event) ID() string {
	return e.id
}

// Record places the event on the stream after all work enqueued so far.
// Recording again moves the event to the new position.
func (e *Event) Record(s *Stream) error {

	if err := e.ctx.checkHandle("Record", e.epoch); err != nil {
		return err
	}

	if s == nil {
		var err error
		s, err = e.ctx.NullStream()

		if err != nil {
			return err
		}
	}

	ch := make(chan struct{})

	err := s.enqueue("Record", func() error {
		close(ch)
		return nil
	})

	if err != nil {
		// the event keeps its previous position
		return err
	}

	e.mu.Lock()
	e.ch = ch
	e.mu.Unlock()

	if s.null {
		return s.wait()
	}

	return nil
}

// marker returns the channel closed by the most recent record
func (e *Event) marker() chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ch == nil {
		return closedMarker
	}

	return e.ch
}

// Wait blocks the caller until the recorded point has been reached.  An
// event that was never recorded returns immediately.
func (e *Event) Wait() error {

	if err := e.ctx.checkHandle("Wait", e.epoch); err != nil {
		return err
	}

	<-e.marker()

	return nil
}

// Query reports if the recorded point has been reached without blocking
func (e *Event) Query() bool {
	select {
	case <-e.marker():
		return true
	default:
		return false
	}
}

package cann

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Context is the runtime instance that owns the devices and everything
// allocated on them.  A process should initialize a single Context and
// share it, the active device is a cursor on the Context and is not
// tracked per goroutine.
type Context struct {
	mu  sync.RWMutex
	cfg Config
	log *slog.Logger
	// initialized is set between Init and Finalize
	initialized bool
	// finalized is set once Finalize has been called
	finalized bool
	// epoch increments on every Init so handles from an earlier init
	// window are rejected
	epoch uint64
	// active is the device id new arrays and streams are placed on
	active  int
	devices []*device
}

// NewContext returns a Context using the given configuration.  The runtime
// is not acquired until Init is called.
func NewContext(cfg Config) (*Context, error) {

	cfg = cfg.withDefaults()

	err := cfg.Validate()

	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Context{
		cfg: cfg,
		log: cfg.logger(),
	}, nil
}

// Init acquires the runtime and enumerates the devices
func (c *Context) Init() error {

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return &Error{Code: ErrCodeAlreadyInitialized, Op: "Init"}
	}

	c.epoch++
	c.devices = make([]*device, c.cfg.DeviceCount)

	for i := range c.devices {
		c.devices[i] = newDevice(c, i)
	}

	c.active = 0
	c.initialized = true
	c.finalized = false

	c.log.Debug("runtime initialized", "devices", c.cfg.DeviceCount,
		"memoryLimit", c.cfg.MemoryLimit, "workers", c.cfg.Workers, "epoch", c.epoch)

	return nil
}

// Finalize releases the runtime.  Every stream is synchronized and any
// device failures found are returned, but all resources are released
// regardless.  Arrays, streams and events created before Finalize fail with
// ErrContextFinalized afterwards.
func (c *Context) Finalize() error {

	c.mu.Lock()

	if !c.initialized {
		c.mu.Unlock()
		return &Error{Code: ErrCodeNotInitialized, Op: "Finalize"}
	}

	devices := c.devices
	c.devices = nil
	c.initialized = false
	c.finalized = true
	c.mu.Unlock()

	var errs []error

	for _, dev := range devices {
		if err := dev.shutdown(); err != nil {
			c.log.Warn("device teardown reported errors", "device", dev.id, "error", err)
			errs = append(errs, fmt.Errorf("device %d: %w", dev.id, err))
		}
	}

	c.log.Debug("runtime finalized", "epoch", c.epoch)

	return errors.Join(errs...)
}

// SetDevice selects the device subsequent allocations and operations
// default to
func (c *Context) SetDevice(id int) error {

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.stateLocked("SetDevice"); err != nil {
		return err
	}

	if id < 0 || id >= len(c.devices) {
		return newError(ErrCodeInvalidDevice, "SetDevice",
			"device %d not in range [0-%d)", id, len(c.devices))
	}

	c.active = id
	c.log.Debug("device selected", "device", id)

	return nil
}

// GetDevice returns the active device id
func (c *Context) GetDevice() (int, error) {

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.stateLocked("GetDevice"); err != nil {
		return 0, err
	}

	return c.active, nil
}

// ResetDevice synchronizes all streams of the active device and releases
// its cached memory.  Existing stream handles stay valid.  The runtime stays initialized and
// the call may be repeated.
func (c *Context) ResetDevice() error {

	dev, err := c.activeDevice("ResetDevice")

	if err != nil {
		return err
	}

	return dev.reset()
}

// DeviceCount returns the number of devices enumerated by the runtime
func (c *Context) DeviceCount() int {
	return c.cfg.DeviceCount
}

// Config returns the configuration the Context was created with
func (c *Context) Config() Config {
	return c.cfg
}

// Logger returns the Context's logger
func (c *Context) Logger() *slog.Logger {
	return c.log
}

// DeviceInfo describes a device
type DeviceInfo struct {
	ID      int
	Name    string
	Workers int
	Memory  MemoryStats
}

// Device returns information on the device with the given id
func (c *Context) Device(id int) (DeviceInfo, error) {

	dev, err := c.device("Device", id)

	if err != nil {
		return DeviceInfo{}, err
	}

	return dev.info(), nil
}

// stateLocked returns the error for a call made outside the Init and
// Finalize window, the caller must hold c.mu
func (c *Context) stateLocked(op string) error {

	if c.finalized {
		return &Error{Code: ErrCodeContextFinalized, Op: op}
	}

	if !c.initialized {
		return &Error{Code: ErrCodeNotInitialized, Op: op}
	}

	return nil
}

// checkHandle validates a handle created in the given epoch is still usable
func (c *Context) checkHandle(op string, epoch uint64) error {

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.stateLocked(op); err != nil {
		return err
	}

	if epoch != c.epoch {
		return &Error{Code: ErrCodeContextFinalized, Op: op}
	}

	return nil
}

// currentEpoch returns the epoch of the current init window
func (c *Context) currentEpoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// activeDevice returns the active device
func (c *Context) activeDevice(op string) (*device, error) {

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.stateLocked(op); err != nil {
		return nil, err
	}

	return c.devices[c.active], nil
}

// device returns the device with the given id
func (c *Context) device(op string, id int) (*device, error) {

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.stateLocked(op); err != nil {
		return nil, err
	}

	if id < 0 || id >= len(c.devices) {
		return nil, newError(ErrCodeInvalidDevice, op,
			"device %d not in range [0-%d)", id, len(c.devices))
	}

	return c.devices[id], nil
}

// NullStream returns the default stream of the active device.  Operations
// issued without a stream are placed on it and complete before returning.
func (c *Context) NullStream() (*Stream, error) {

	dev, err := c.activeDevice("NullStream")

	if err != nil {
		return nil, err
	}

	return dev.nullStream(), nil
}

// NewStream creates a stream on the active device
func (c *Context) NewStream() (*Stream, error) {

	dev, err := c.activeDevice("NewStream")

	if err != nil {
		return nil, err
	}

	return dev.newStream(false), nil
}

// Synchronize waits for all streams on every device to complete and returns
// their unobserved failures
func (c *Context) Synchronize() error {

	c.mu.RLock()

	if err := c.stateLocked("Synchronize"); err != nil {
		c.mu.RUnlock()
		return err
	}

	devices := c.devices
	c.mu.RUnlock()

	var errs []error

	for _, dev := range devices {
		if err := dev.synchronize(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

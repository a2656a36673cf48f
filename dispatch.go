package cann

// operands validates the input arrays of an operation and returns the
// device they are resident on
func (c *Context) operands(op string, mats ...*NpuMat) (*device, error) {

	var dev *device

	for _, m := range mats {
		if err := m.ready(op); err != nil {
			return nil, err
		}

		if m.ctx != c {
			return nil, newError(ErrCodeInvalidDevice, op, "array belongs to another context")
		}

		if dev == nil {
			dev = m.dev
			continue
		}

		if m.dev != dev {
			return nil, newError(ErrCodeInvalidDevice, op,
				"operands are on devices %d and %d", dev.id, m.dev.id)
		}
	}

	return dev, nil
}

// streamFor returns the stream an operation on the device is issued on, the
// device's null stream when s is nil
func (c *Context) streamFor(op string, dev *device, s *Stream) (*Stream, error) {

	if s == nil {
		return dev.nullStream(), nil
	}

	if s.dev != dev {
		return nil, newError(ErrCodeInvalidDevice, op,
			"stream is on device %d, operands on device %d", s.dev.id, dev.id)
	}

	return s, nil
}

// maskFor validates the mask option against an output of rows by cols and
// returns its view, nil when no mask is set
func (c *Context) maskFor(op string, o opOptions, dev *device, rows, cols int) (*view, error) {

	if o.mask == nil {
		return nil, nil
	}

	if err := o.mask.ready(op); err != nil {
		return nil, err
	}

	if o.mask.dev != dev {
		return nil, newError(ErrCodeInvalidDevice, op, "mask is on device %d", o.mask.dev.id)
	}

	if o.mask.rows != rows || o.mask.cols != cols || o.mask.typ.Channels() != 1 {
		return nil, newError(ErrCodeMaskShapeMismatch, op, "mask is %v, output is [%d %d]",
			o.mask.Shape(), rows, cols)
	}

	if o.mask.typ.Depth() != DepthU8 {
		return nil, newError(ErrCodeDtypeMismatch, op, "mask must be U8, got %s", o.mask.typ.Depth())
	}

	v := o.mask.view()

	return &v, nil
}

// output returns the array an operation writes its result to.  fresh is
// true when the array was allocated for this call and holds no prior
// values.  A destination that is also one of the inputs can only be
// written in place when the result has the input's geometry.
func (c *Context) output(op string, o opOptions, dev *device, rows, cols int, typ MatType, inputs ...*NpuMat) (dst *NpuMat, fresh bool, err error) {

	if _, err := c.streamFor(op, dev, o.stream); err != nil {
		return nil, false, err
	}

	if o.dst == nil {
		dst = c.newMatOn(dev)

		if err := dst.create(op, rows, cols, typ); err != nil {
			return nil, false, err
		}

		return dst, true, nil
	}

	dst = o.dst

	if err := c.checkHandle(op, dst.epoch); err != nil {
		return nil, false, err
	}

	if dst.dev != dev {
		return nil, false, newError(ErrCodeInvalidDevice, op,
			"destination is on device %d, operands on device %d", dst.dev.id, dev.id)
	}

	if dst.sameGeometry(rows, cols, typ) {
		return dst, false, nil
	}

	for _, in := range inputs {
		if in == dst {
			return nil, false, newError(ErrCodeShapeMismatch, op,
				"destination is an input of shape %v, result is [%d %d %d] %s",
				dst.Shape(), rows, cols, typ.Channels(), typ.Depth())
		}
	}

	// masked writes keep the destination's values so it can not be
	// reallocated under them
	if o.mask != nil && !dst.Empty() {
		if dst.rows != rows || dst.cols != cols || dst.typ.Channels() != typ.Channels() {
			return nil, false, newError(ErrCodeShapeMismatch, op, "destination is %v, result is [%d %d %d]",
				dst.Shape(), rows, cols, typ.Channels())
		}

		return nil, false, newError(ErrCodeDtypeMismatch, op, "destination is %s, result is %s",
			dst.typ, typ)
	}

	if err := dst.create(op, rows, cols, typ); err != nil {
		return nil, false, err
	}

	return dst, true, nil
}

// run enqueues fn on the stream for the device.  The device memory of mats
// is held until fn has completed.  On the null stream run waits for fn and
// returns its failure.
func (c *Context) run(op string, dev *device, s *Stream, fn func() error, mats ...*NpuMat) error {

	s, err := c.streamFor(op, dev, s)

	if err != nil {
		return err
	}

	mems := make([]*deviceMem, 0, len(mats))

	for _, m := range mats {
		if m == nil || m.mem == nil {
			continue
		}

		m.mem.retain()
		mems = append(mems, m.mem)
	}

	releaseAll := func() {
		for _, mem := range mems {
			mem.release()
		}
	}

	err = s.enqueue(op, func() error {
		defer releaseAll()
		return fn()
	})

	if err != nil {
		releaseAll()
		return err
	}

	if s.null {
		return s.wait()
	}

	return nil
}

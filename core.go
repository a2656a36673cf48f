package cann

// FlipCode selects the axis Flip mirrors around
type FlipCode int

const (
	// FlipVertical mirrors around the x-axis, ie: upside down
	FlipVertical FlipCode = 0
	// FlipHorizontal mirrors around the y-axis
	FlipHorizontal FlipCode = 1
	// FlipBoth mirrors around both axes
	FlipBoth FlipCode = -1
)

// RotateCode is the clockwise rotation applied by Rotate
type RotateCode int

const (
	Rotate90Clockwise        RotateCode = 0
	Rotate180Clockwise       RotateCode = 1
	Rotate90CounterClockwise RotateCode = 2
)

// pixelMap returns the source coordinate of destination pixel x, y
type pixelMap func(x, y int) (int, int)

// remap fills dst by copying the source pixel given by fn for each
// destination pixel.  dst and src may share memory.
func (c *Context) remap(dst, src view, fn pixelMap) error {

	if sameMemory(dst, src) {
		scratch := make([]byte, len(src.data))
		copy(scratch, src.data)
		src.data = scratch
	}

	return c.parallel(dst.rows, func(y int) error {
		for x := 0; x < dst.cols; x++ {
			sx, sy := fn(x, y)
			copy(dst.pixel(x, y), src.pixel(sx, sy))
		}

		return nil
	})
}

// sameMemory reports if the views are backed by the same device memory
func sameMemory(a, b view) bool {
	return len(a.data) > 0 && len(b.data) > 0 && &a.data[0] == &b.data[0]
}

// geometryOp runs a pixel remapping operation producing a rows by cols
// output of the source type
func (c *Context) geometryOp(op string, src *NpuMat, rows, cols int, opts []Option, fn pixelMap) (*NpuMat, error) {

	o := newOptions(opts)

	dev, err := c.operands(op, src)

	if err != nil {
		return nil, err
	}

	dst, _, err := c.output(op, o, dev, rows, cols, src.typ, src)

	if err != nil {
		return nil, err
	}

	sv, out := src.view(), dst.view()

	err = c.run(op, dev, o.stream, func() error {
		return c.remap(out, sv, fn)
	}, src, dst)

	return dst, err
}

// Transpose returns src with rows and columns swapped
func (c *Context) Transpose(src *NpuMat, opts ...Option) (*NpuMat, error) {

	if err := src.ready("Transpose"); err != nil {
		return nil, err
	}

	return c.geometryOp("Transpose", src, src.cols, src.rows, opts, func(x, y int) (int, int) {
		return y, x
	})
}

// Flip mirrors src, code 0 flips vertically, a positive code horizontally
// and a negative code both ways
func (c *Context) Flip(src *NpuMat, code FlipCode, opts ...Option) (*NpuMat, error) {

	if err := src.ready("Flip"); err != nil {
		return nil, err
	}

	rows, cols := src.rows, src.cols
	var fn pixelMap

	switch {
	case code == 0:
		fn = func(x, y int) (int, int) {
			return x, rows - 1 - y
		}
	case code > 0:
		fn = func(x, y int) (int, int) {
			return cols - 1 - x, y
		}
	default:
		fn = func(x, y int) (int, int) {
			return cols - 1 - x, rows - 1 - y
		}
	}

	return c.geometryOp("Flip", src, rows, cols, opts, fn)
}

// Rotate rotates src clockwise by 90, 180 or 270 degrees.  Other codes
// return ErrUnsupported.
func (c *Context) Rotate(src *NpuMat, code RotateCode, opts ...Option) (*NpuMat, error) {

	op := "Rotate"

	if err := src.ready(op); err != nil {
		return nil, err
	}

	rows, cols := src.rows, src.cols

	switch code {
	case Rotate90Clockwise:
		return c.geometryOp(op, src, cols, rows, opts, func(x, y int) (int, int) {
			return y, rows - 1 - x
		})
	case Rotate180Clockwise:
		return c.geometryOp(op, src, rows, cols, opts, func(x, y int) (int, int) {
			return cols - 1 - x, rows - 1 - y
		})
	case Rotate90CounterClockwise:
		return c.geometryOp(op, src, cols, rows, opts, func(x, y int) (int, int) {
			return cols - 1 - y, x
		})
	}

	return nil, newError(ErrCodeUnsupported, op, "rotate code %d", int(code))
}

// Split returns one single channel array per channel of src in channel
// order
func (c *Context) Split(src *NpuMat, opts ...Option) ([]*NpuMat, error) {

	op := "Split"
	o := newOptions(opts)

	dev, err := c.operands(op, src)

	if err != nil {
		return nil, err
	}

	if _, err := c.streamFor(op, dev, o.stream); err != nil {
		return nil, err
	}

	cn := src.typ.Channels()
	typ := MakeType(src.typ.Depth(), 1)
	outs := make([]*NpuMat, cn)
	views := make([]view, cn)

	for i := range outs {
		outs[i] = c.newMatOn(dev)

		if err := outs[i].create(op, src.rows, src.cols, typ); err != nil {
			for _, m := range outs[:i] {
				m.Release()
			}
			return nil, err
		}

		views[i] = outs[i].view()
	}

	sv := src.view()
	es := src.typ.Depth().Size()

	err = c.run(op, dev, o.stream, func() error {
		return c.parallel(sv.rows, func(y int) error {
			for x := 0; x < sv.cols; x++ {
				px := sv.pixel(x, y)

				for ch := range views {
					copy(views[ch].pixel(x, y), px[ch*es:(ch+1)*es])
				}
			}

			return nil
		})
	}, append([]*NpuMat{src}, outs...)...)

	return outs, err
}

// Merge interleaves the arrays into one multi channel array, the inverse of
// Split.  All inputs must share size and depth and hold at most MaxChannels
// channels in total.
func (c *Context) Merge(srcs []*NpuMat, opts ...Option) (*NpuMat, error) {

	op := "Merge"
	o := newOptions(opts)

	if len(srcs) == 0 {
		return nil, newError(ErrCodeUninitialized, op, "no input arrays")
	}

	dev, err := c.operands(op, srcs...)

	if err != nil {
		return nil, err
	}

	first := srcs[0]
	cn := 0

	for _, m := range srcs {
		if m.rows != first.rows || m.cols != first.cols {
			return nil, newError(ErrCodeShapeMismatch, op, "inputs are %v and %v", first.Shape(), m.Shape())
		}

		if m.typ.Depth() != first.typ.Depth() {
			return nil, newError(ErrCodeDtypeMismatch, op, "inputs are %s and %s", first.typ.Depth(), m.typ.Depth())
		}

		cn += m.typ.Channels()
	}

	if cn > MaxChannels {
		return nil, newError(ErrCodeShapeMismatch, op, "%d channels exceeds the maximum of %d", cn, MaxChannels)
	}

	dst, _, err := c.output(op, o, dev, first.rows, first.cols, MakeType(first.typ.Depth(), cn), srcs...)

	if err != nil {
		return nil, err
	}

	views := make([]view, len(srcs))

	for i, m := range srcs {
		views[i] = m.view()
	}

	out := dst.view()

	err = c.run(op, dev, o.stream, func() error {
		for _, v := range views {
			if sameMemory(out, v) {
				return newError(ErrCodeDeviceOperationFailed, op, "destination aliases an input")
			}
		}

		return c.parallel(out.rows, func(y int) error {
			for x := 0; x < out.cols; x++ {
				px := out.pixel(x, y)
				off := 0

				for _, v := range views {
					off += copy(px[off:], v.pixel(x, y))
				}
			}

			return nil
		})
	}, append(append([]*NpuMat{}, srcs...), dst)...)

	return dst, err
}

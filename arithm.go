package cann

import (
	"math"
)

// ThresholdType is the policy Threshold applies to each element
type ThresholdType int

const (
	// ThresholdBinary sets maxval where src > thresh, else 0
	ThresholdBinary ThresholdType = 0
	// ThresholdBinaryInv sets 0 where src > thresh, else maxval
	ThresholdBinaryInv ThresholdType = 1
	// ThresholdTrunc sets thresh where src > thresh, else src
	ThresholdTrunc ThresholdType = 2
	// ThresholdToZero keeps src where src > thresh, else 0
	ThresholdToZero ThresholdType = 3
	// ThresholdToZeroInv sets 0 where src > thresh, else src
	ThresholdToZeroInv ThresholdType = 4
	// ThresholdOtsu and ThresholdTriangle select the threshold from the
	// histogram, they are not supported by the device
	ThresholdOtsu     ThresholdType = 8
	ThresholdTriangle ThresholdType = 16
)

// String returns a readable description of the ThresholdType
func (t ThresholdType) String() string {
	switch t {
	case ThresholdBinary:
		return "Binary"
	case ThresholdBinaryInv:
		return "BinaryInv"
	case ThresholdTrunc:
		return "Trunc"
	case ThresholdToZero:
		return "ToZero"
	case ThresholdToZeroInv:
		return "ToZeroInv"
	case ThresholdOtsu:
		return "Otsu"
	case ThresholdTriangle:
		return "Triangle"
	default:
		return "Unknown"
	}
}

// binaryDst validates two operands of an elementwise operation and returns
// their device and the output type
func (c *Context) binaryDst(op string, a, b *NpuMat, o opOptions) (*device, MatType, error) {

	dev, err := c.operands(op, a, b)

	if err != nil {
		return nil, 0, err
	}

	if a.rows != b.rows || a.cols != b.cols || a.typ.Channels() != b.typ.Channels() {
		return nil, 0, newError(ErrCodeShapeMismatch, op, "operands are %v and %v", a.Shape(), b.Shape())
	}

	if a.typ.Depth() != b.typ.Depth() {
		return nil, 0, newError(ErrCodeDtypeMismatch, op, "operands are %s and %s", a.typ.Depth(), b.typ.Depth())
	}

	typ, err := outputType(op, a.typ, o)

	if err != nil {
		return nil, 0, err
	}

	return dev, typ, nil
}

// outputType returns the type of the result for input type t with the
// WithDType option applied
func outputType(op string, t MatType, o opOptions) (MatType, error) {

	if o.dtype < 0 {
		return t, nil
	}

	if !o.dtype.Valid() {
		return 0, newError(ErrCodeDtypeMismatch, op, "invalid output depth %d", int(o.dtype))
	}

	return MakeType(o.dtype, t.Channels()), nil
}

// arithmOp runs an elementwise operation of two arrays
func (c *Context) arithmOp(op string, a, b *NpuMat, opts []Option, f func(o opOptions, out Depth) elemFunc) (*NpuMat, error) {

	o := newOptions(opts)

	dev, typ, err := c.binaryDst(op, a, b, o)

	if err != nil {
		return nil, err
	}

	mask, err := c.maskFor(op, o, dev, a.rows, a.cols)

	if err != nil {
		return nil, err
	}

	dst, fresh, err := c.output(op, o, dev, a.rows, a.cols, typ, a, b)

	if err != nil {
		return nil, err
	}

	av, bv, out := a.view(), b.view(), dst.view()
	fn := f(o, typ.Depth())

	err = c.run(op, dev, o.stream, func() error {
		return c.elementwise(out, av, &bv, mask, fresh, fn)
	}, a, b, dst, o.mask)

	return dst, err
}

// scalarOp runs an elementwise operation of an array and a scalar, with
// the scalar as the first operand when scalarFirst is set
func (c *Context) scalarOp(op string, a *NpuMat, s Scalar, scalarFirst bool, opts []Option, f func(o opOptions, out Depth) elemFunc) (*NpuMat, error) {

	o := newOptions(opts)

	dev, err := c.operands(op, a)

	if err != nil {
		return nil, err
	}

	typ, err := outputType(op, a.typ, o)

	if err != nil {
		return nil, err
	}

	mask, err := c.maskFor(op, o, dev, a.rows, a.cols)

	if err != nil {
		return nil, err
	}

	dst, fresh, err := c.output(op, o, dev, a.rows, a.cols, typ, a)

	if err != nil {
		return nil, err
	}

	av, out := a.view(), dst.view()
	fn := f(o, typ.Depth())

	err = c.run(op, dev, o.stream, func() error {
		return c.elementwise(out, av, nil, mask, fresh, func(ch int, x, _ float64) float64 {
			if scalarFirst {
				return fn(ch, s[ch], x)
			}

			return fn(ch, x, s[ch])
		})
	}, a, dst, o.mask)

	return dst, err
}

func addFunc(opts opOptions, _ Depth) elemFunc {
	return func(_ int, a, b float64) float64 {
		return a + b
	}
}

func subFunc(opts opOptions, _ Depth) elemFunc {
	return func(_ int, a, b float64) float64 {
		return a - b
	}
}

func mulFunc(opts opOptions, _ Depth) elemFunc {
	scale := opts.scale

	return func(_ int, a, b float64) float64 {
		return a * b * scale
	}
}

func divFunc(opts opOptions, out Depth) elemFunc {
	scale := opts.scale
	integral := out.IsIntegral()

	return func(_ int, a, b float64) float64 {
		// integer division by zero is defined as 0, floats follow IEEE 754
		if b == 0 && integral {
			return 0
		}

		return a * scale / b
	}
}

// Add returns a + b.  Supports WithMask, WithDType, WithDst and WithStream.
func (c *Context) Add(a, b *NpuMat, opts ...Option) (*NpuMat, error) {
	return c.arithmOp("Add", a, b, opts, addFunc)
}

// Subtract returns a - b.  Supports WithMask, WithDType, WithDst and
// WithStream.
func (c *Context) Subtract(a, b *NpuMat, opts ...Option) (*NpuMat, error) {
	return c.arithmOp("Subtract", a, b, opts, subFunc)
}

// Multiply returns a * b * scale.  Supports WithScale, WithMask, WithDType,
// WithDst and WithStream.
func (c *Context) Multiply(a, b *NpuMat, opts ...Option) (*NpuMat, error) {
	return c.arithmOp("Multiply", a, b, opts, mulFunc)
}

// Divide returns a * scale / b.  For integral output depths elements where
// b is 0 are set to 0.
func (c *Context) Divide(a, b *NpuMat, opts ...Option) (*NpuMat, error) {
	return c.arithmOp("Divide", a, b, opts, divFunc)
}

// AddScalar returns a + s per channel
func (c *Context) AddScalar(a *NpuMat, s Scalar, opts ...Option) (*NpuMat, error) {
	return c.scalarOp("AddScalar", a, s, false, opts, addFunc)
}

// SubtractScalar returns a - s per channel
func (c *Context) SubtractScalar(a *NpuMat, s Scalar, opts ...Option) (*NpuMat, error) {
	return c.scalarOp("SubtractScalar", a, s, false, opts, subFunc)
}

// MultiplyScalar returns a * s * scale per channel
func (c *Context) MultiplyScalar(a *NpuMat, s Scalar, opts ...Option) (*NpuMat, error) {
	return c.scalarOp("MultiplyScalar", a, s, false, opts, mulFunc)
}

// DivideScalar returns a * scale / s per channel
func (c *Context) DivideScalar(a *NpuMat, s Scalar, opts ...Option) (*NpuMat, error) {
	return c.scalarOp("DivideScalar", a, s, false, opts, divFunc)
}

// ScalarSubtract returns s - a per channel
func (c *Context) ScalarSubtract(s Scalar, a *NpuMat, opts ...Option) (*NpuMat, error) {
	return c.scalarOp("ScalarSubtract", a, s, true, opts, subFunc)
}

// ScalarDivide returns s * scale / a per channel.  For integral output
// depths elements where a is 0 are set to 0.
func (c *Context) ScalarDivide(s Scalar, a *NpuMat, opts ...Option) (*NpuMat, error) {
	return c.scalarOp("ScalarDivide", a, s, true, opts, divFunc)
}

// bitwiseOp runs a bytewise logical operation.  b and s are nil for unary
// operations, s is the second operand of array and scalar operations.
func (c *Context) bitwiseOp(op string, a, b *NpuMat, s *Scalar, opts []Option, f func(x, y byte) byte) (*NpuMat, error) {

	o := newOptions(opts)
	mats := []*NpuMat{a}

	if b != nil {
		mats = append(mats, b)
	}

	dev, err := c.operands(op, mats...)

	if err != nil {
		return nil, err
	}

	if b != nil {
		if a.rows != b.rows || a.cols != b.cols || a.typ.Channels() != b.typ.Channels() {
			return nil, newError(ErrCodeShapeMismatch, op, "operands are %v and %v", a.Shape(), b.Shape())
		}

		if a.typ.Depth() != b.typ.Depth() {
			return nil, newError(ErrCodeDtypeMismatch, op, "operands are %s and %s", a.typ.Depth(), b.typ.Depth())
		}
	}

	if !a.typ.Depth().IsIntegral() {
		return nil, newError(ErrCodeDtypeMismatch, op, "logical operations require an integral depth, got %s", a.typ.Depth())
	}

	if o.dtype >= 0 && o.dtype != a.typ.Depth() {
		return nil, newError(ErrCodeDtypeMismatch, op, "logical operations preserve depth %s", a.typ.Depth())
	}

	mask, err := c.maskFor(op, o, dev, a.rows, a.cols)

	if err != nil {
		return nil, err
	}

	dst, fresh, err := c.output(op, o, dev, a.rows, a.cols, a.typ, a, b)

	if err != nil {
		return nil, err
	}

	av, out := a.view(), dst.view()

	var bv *view

	if b != nil {
		v := b.view()
		bv = &v
	}

	var px []byte

	if s != nil {
		// the scalar is cast to the array's type before the operation
		px = encodePixel(a.typ, *s)
	}

	err = c.run(op, dev, o.stream, func() error {
		second := bv

		if px != nil {
			v := av
			v.data = make([]byte, len(av.data))

			for off := 0; off < len(v.data); off += len(px) {
				copy(v.data[off:], px)
			}

			second = &v
		}

		return c.bytewise(out, av, second, mask, fresh, f)
	}, a, b, dst, o.mask)

	return dst, err
}

// BitwiseAnd returns a & b, both must have an integral depth
func (c *Context) BitwiseAnd(a, b *NpuMat, opts ...Option) (*NpuMat, error) {
	return c.bitwiseOp("BitwiseAnd", a, b, nil, opts, andByte)
}

// BitwiseOr returns a | b, both must have an integral depth
func (c *Context) BitwiseOr(a, b *NpuMat, opts ...Option) (*NpuMat, error) {
	return c.bitwiseOp("BitwiseOr", a, b, nil, opts, orByte)
}

// BitwiseXor returns a ^ b, both must have an integral depth
func (c *Context) BitwiseXor(a, b *NpuMat, opts ...Option) (*NpuMat, error) {
	return c.bitwiseOp("BitwiseXor", a, b, nil, opts, xorByte)
}

// BitwiseAndScalar returns a & s per channel, the scalar is saturated to
// the depth of a.  The operation is symmetric so it also serves s & a.
func (c *Context) BitwiseAndScalar(a *NpuMat, s Scalar, opts ...Option) (*NpuMat, error) {
	return c.bitwiseOp("BitwiseAndScalar", a, nil, &s, opts, andByte)
}

// BitwiseOrScalar returns a | s per channel
func (c *Context) BitwiseOrScalar(a *NpuMat, s Scalar, opts ...Option) (*NpuMat, error) {
	return c.bitwiseOp("BitwiseOrScalar", a, nil, &s, opts, orByte)
}

// BitwiseXorScalar returns a ^ s per channel
func (c *Context) BitwiseXorScalar(a *NpuMat, s Scalar, opts ...Option) (*NpuMat, error) {
	return c.bitwiseOp("BitwiseXorScalar", a, nil, &s, opts, xorByte)
}

func andByte(x, y byte) byte { return x & y }
func orByte(x, y byte) byte  { return x | y }
func xorByte(x, y byte) byte { return x ^ y }

// BitwiseNot returns the bitwise inverse of a
func (c *Context) BitwiseNot(a *NpuMat, opts ...Option) (*NpuMat, error) {
	return c.bitwiseOp("BitwiseNot", a, nil, nil, opts, func(x, _ byte) byte { return ^x })
}

// AddWeighted returns a * alpha + b * beta + gamma saturated to the output
// depth, which is the input depth unless WithDType is given
func (c *Context) AddWeighted(a *NpuMat, alpha float64, b *NpuMat, beta, gamma float64, opts ...Option) (*NpuMat, error) {
	return c.arithmOp("AddWeighted", a, b, opts, func(_ opOptions, _ Depth) elemFunc {
		return func(_ int, x, y float64) float64 {
			return x*alpha + y*beta + gamma
		}
	})
}

// Threshold applies the threshold policy to every element and returns the
// threshold used with the result.  For integral depths the threshold is
// rounded down.  The histogram based Otsu and Triangle modes return
// ErrUnsupported.
func (c *Context) Threshold(src *NpuMat, thresh, maxval float64, typ ThresholdType, opts ...Option) (float64, *NpuMat, error) {

	op := "Threshold"
	o := newOptions(opts)

	dev, err := c.operands(op, src)

	if err != nil {
		return 0, nil, err
	}

	if typ < ThresholdBinary || typ > ThresholdToZeroInv {
		return 0, nil, newError(ErrCodeUnsupported, op, "threshold type %s (%d)", typ, int(typ))
	}

	if src.typ.Depth().IsIntegral() {
		thresh = math.Floor(thresh)
	}

	dst, _, err := c.output(op, o, dev, src.rows, src.cols, src.typ, src)

	if err != nil {
		return 0, nil, err
	}

	sv, out := src.view(), dst.view()
	t := thresh

	fn := func(_ int, x, _ float64) float64 {
		above := x > t

		switch typ {
		case ThresholdBinary:
			if above {
				return maxval
			}
			return 0
		case ThresholdBinaryInv:
			if above {
				return 0
			}
			return maxval
		case ThresholdTrunc:
			if above {
				return t
			}
			return x
		case ThresholdToZero:
			if above {
				return x
			}
			return 0
		default:
			if above {
				return 0
			}
			return x
		}
	}

	err = c.run(op, dev, o.stream, func() error {
		return c.elementwise(out, sv, nil, nil, false, fn)
	}, src, dst)

	return thresh, dst, err
}

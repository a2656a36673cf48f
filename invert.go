package cann

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Invert returns the inverse of the square single channel F32 or F64
// matrix src.  A singular matrix is reported as a device failure by the
// next synchronizing call.
func (c *Context) Invert(src *NpuMat, opts ...Option) (*NpuMat, error) {

	op := "Invert"
	o := newOptions(opts)

	dev, err := c.operands(op, src)

	if err != nil {
		return nil, err
	}

	if src.rows != src.cols || src.typ.Channels() != 1 {
		return nil, newError(ErrCodeShapeMismatch, op, "matrix must be square and single channel, got %v", src.Shape())
	}

	d := src.typ.Depth()

	if d != DepthF32 && d != DepthF64 {
		return nil, newError(ErrCodeDtypeMismatch, op, "matrix must be F32 or F64, got %s", d)
	}

	dst, _, err := c.output(op, o, dev, src.rows, src.cols, src.typ, src)

	if err != nil {
		return nil, err
	}

	sv, out := src.view(), dst.view()

	err = c.run(op, dev, o.stream, func() error {
		n := sv.rows
		a := mat.NewDense(n, n, nil)

		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				a.Set(y, x, loadElem(d, sv.data, y*n+x))
			}
		}

		var inv mat.Dense

		if err := inv.Inverse(a); err != nil {
			// an ill conditioned result is still usable, only a singular
			// matrix fails
			var cond mat.Condition

			if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
				return fmt.Errorf("matrix inversion failed: %w", err)
			}
		}

		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				storeElem(d, out.data, y*n+x, inv.At(y, x))
			}
		}

		return nil
	}, src, dst)

	return dst, err
}

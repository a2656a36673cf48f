package cann

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// checkInterpolation validates the interpolation is one the device
// supports
func checkInterpolation(op string, interp gocv.InterpolationFlags) error {
	switch interp {
	case gocv.InterpolationNearestNeighbor, gocv.InterpolationLinear,
		gocv.InterpolationCubic, gocv.InterpolationArea:
		return nil
	}

	return newError(ErrCodeUnsupported, op, "interpolation %d", int(interp))
}

// checkBorder validates the border type is one the device supports
func checkBorder(op string, bt gocv.BorderType) error {
	switch bt {
	case gocv.BorderConstant, gocv.BorderReplicate, gocv.BorderReflect,
		gocv.BorderWrap, gocv.BorderReflect101:
		return nil
	}

	return newError(ErrCodeUnsupported, op, "border type %d", int(bt))
}

// resizeView resizes src into dst with OpenCV
func resizeView(dst, src view, interp gocv.InterpolationFlags) error {

	in, err := hostMat(src)

	if err != nil {
		return err
	}

	defer in.Close()

	out := gocv.NewMat()
	defer out.Close()

	gocv.Resize(in, &out, image.Pt(dst.cols, dst.rows), 0, 0, interp)

	return copyFromHost(dst, out)
}

// Resize scales src to size, or by fx and fy when size is zero
func (c *Context) Resize(src *NpuMat, size image.Point, fx, fy float64, interp gocv.InterpolationFlags, opts ...Option) (*NpuMat, error) {

	op := "Resize"
	o := newOptions(opts)

	dev, err := c.operands(op, src)

	if err != nil {
		return nil, err
	}

	if err := checkInterpolation(op, interp); err != nil {
		return nil, err
	}

	if size.X == 0 && size.Y == 0 {
		size = image.Pt(int(math.Round(float64(src.cols)*fx)), int(math.Round(float64(src.rows)*fy)))
	}

	if size.X <= 0 || size.Y <= 0 {
		return nil, newError(ErrCodeShapeMismatch, op, "invalid output size %v", size)
	}

	dst, _, err := c.output(op, o, dev, size.Y, size.X, src.typ, src)

	if err != nil {
		return nil, err
	}

	sv, out := src.view(), dst.view()

	err = c.run(op, dev, o.stream, func() error {
		return resizeView(out, sv, interp)
	}, src, dst)

	return dst, err
}

// borderIndex maps coordinate p outside [0, n) back inside according to the
// border type, -1 is returned for a constant border
func borderIndex(p, n int, bt gocv.BorderType) int {

	if p >= 0 && p < n {
		return p
	}

	switch bt {
	case gocv.BorderReplicate:
		if p < 0 {
			return 0
		}
		return n - 1

	case gocv.BorderReflect, gocv.BorderReflect101:
		if n == 1 {
			return 0
		}

		delta := 0

		if bt == gocv.BorderReflect101 {
			delta = 1
		}

		for p < 0 || p >= n {
			if p < 0 {
				p = -p - 1 + delta
			} else {
				p = n - 1 - (p - n) - delta
			}
		}

		return p

	case gocv.BorderWrap:
		p %= n

		if p < 0 {
			p += n
		}

		return p
	}

	return -1
}

// makeBorder copies src into dst at offset left, top and fills the
// surrounding pixels according to the border type
func (c *Context) makeBorder(dst, src view, top, left int, bt gocv.BorderType, value Scalar) error {

	px := encodePixel(dst.typ, value)

	return c.parallel(dst.rows, func(y int) error {
		sy := borderIndex(y-top, src.rows, bt)

		for x := 0; x < dst.cols; x++ {
			sx := borderIndex(x-left, src.cols, bt)

			if sx < 0 || sy < 0 {
				copy(dst.pixel(x, y), px)
				continue
			}

			copy(dst.pixel(x, y), src.pixel(sx, sy))
		}

		return nil
	})
}

// CopyMakeBorder returns src surrounded by a border of the given widths
func (c *Context) CopyMakeBorder(src *NpuMat, top, bottom, left, right int, bt gocv.BorderType, value Scalar, opts ...Option) (*NpuMat, error) {

	op := "CopyMakeBorder"
	o := newOptions(opts)

	dev, err := c.operands(op, src)

	if err != nil {
		return nil, err
	}

	if err := checkBorder(op, bt); err != nil {
		return nil, err
	}

	if top < 0 || bottom < 0 || left < 0 || right < 0 {
		return nil, newError(ErrCodeShapeMismatch, op, "negative border %d %d %d %d", top, bottom, left, right)
	}

	dst, _, err := c.output(op, o, dev, src.rows+top+bottom, src.cols+left+right, src.typ, src)

	if err != nil {
		return nil, err
	}

	sv, out := src.view(), dst.view()

	err = c.run(op, dev, o.stream, func() error {
		if sameMemory(out, sv) {
			scratch := make([]byte, len(sv.data))
			copy(scratch, sv.data)
			sv.data = scratch
		}

		return c.makeBorder(out, sv, top, left, bt, value)
	}, src, dst)

	return dst, err
}

// CropResize crops the region of interest from src and resizes it to size
func (c *Context) CropResize(src *NpuMat, roi image.Rectangle, size image.Point, interp gocv.InterpolationFlags, opts ...Option) (*NpuMat, error) {
	return c.cropResizeMakeBorder("CropResize", src, roi, size, interp, gocv.BorderConstant, Scalar{}, 0, 0, opts)
}

// CropResizeMakeBorder crops the region of interest from src, resizes it to
// size and places it at offset left, top of an output of size plus the
// offsets, the pixels above and to the left are filled by the border type
func (c *Context) CropResizeMakeBorder(src *NpuMat, roi image.Rectangle, size image.Point, interp gocv.InterpolationFlags,
	bt gocv.BorderType, value Scalar, top, left int, opts ...Option) (*NpuMat, error) {
	return c.cropResizeMakeBorder("CropResizeMakeBorder", src, roi, size, interp, bt, value, top, left, opts)
}

func (c *Context) cropResizeMakeBorder(op string, src *NpuMat, roi image.Rectangle, size image.Point, interp gocv.InterpolationFlags,
	bt gocv.BorderType, value Scalar, top, left int, opts []Option) (*NpuMat, error) {

	o := newOptions(opts)

	dev, err := c.operands(op, src)

	if err != nil {
		return nil, err
	}

	if err := checkROI(op, roi, src.rows, src.cols); err != nil {
		return nil, err
	}

	if err := checkInterpolation(op, interp); err != nil {
		return nil, err
	}

	if err := checkBorder(op, bt); err != nil {
		return nil, err
	}

	if size.X <= 0 || size.Y <= 0 || top < 0 || left < 0 {
		return nil, newError(ErrCodeShapeMismatch, op, "invalid output size %v with offset %d, %d", size, top, left)
	}

	dst, _, err := c.output(op, o, dev, size.Y+top, size.X+left, src.typ, src)

	if err != nil {
		return nil, err
	}

	sv, out := src.view(), dst.view()

	err = c.run(op, dev, o.stream, func() error {
		cropped := view{rows: roi.Dy(), cols: roi.Dx(), typ: sv.typ}
		cropped.data = make([]byte, cropped.rows*cropped.step())
		cropView(cropped, sv, roi)

		resized := view{rows: size.Y, cols: size.X, typ: sv.typ}
		resized.data = make([]byte, resized.rows*resized.step())

		if err := resizeView(resized, cropped, interp); err != nil {
			return err
		}

		return c.makeBorder(out, resized, top, left, bt, value)
	}, src, dst)

	return dst, err
}

// BatchCropResizeMakeBorder applies CropResizeMakeBorder with the same
// parameters to every array in srcs.  The operations are issued on one
// stream so all results are ready once it completes.
func (c *Context) BatchCropResizeMakeBorder(srcs []*NpuMat, roi image.Rectangle, size image.Point, interp gocv.InterpolationFlags,
	bt gocv.BorderType, value Scalar, top, left int, opts ...Option) ([]*NpuMat, error) {

	op := "BatchCropResizeMakeBorder"

	if newOptions(opts).dst != nil {
		return nil, newError(ErrCodeUnsupported, op, "a destination can not be given for a batch")
	}

	outs := make([]*NpuMat, 0, len(srcs))

	for i, src := range srcs {
		dst, err := c.cropResizeMakeBorder(op, src, roi, size, interp, bt, value, top, left, opts)

		if err != nil {
			for _, m := range outs {
				m.Release()
			}

			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}

		outs = append(outs, dst)
	}

	return outs, nil
}

package preprocess

import (
	"errors"
	"fmt"
	"image"

	"github.com/swdee/go-cann"
	"gocv.io/x/gocv"
)

// ErrInvalidSize is returned when a source, destination or slice dimension
// is not positive
var ErrInvalidSize = errors.New("invalid size")

// Resizer defines the struct used for handling image resizing on the device
type Resizer struct {
	ctx *cann.Context
	// srcWidth is the width of the source image
	srcWidth int
	// srcHeight is the height of the source image
	srcHeight int
	// destWidth is the width to scale to
	destWidth int
	// destHeight is the height to scale to
	destHeight int
	// letterbox parameters used in scaling
	xPad  int
	yPad  int
	scale float32
	// resize dimensions
	resizeW int
	resizeH int
}

// NewResizer returns a resizer used for scaling an image on the device to
// the dimensions a downstream consumer needs
func NewResizer(ctx *cann.Context, srcWidth, srcHeight, destWidth, destHeight int) (*Resizer, error) {

	if srcWidth <= 0 || srcHeight <= 0 || destWidth <= 0 || destHeight <= 0 {
		return nil, fmt.Errorf("%w: resize %dx%d to %dx%d", ErrInvalidSize,
			srcWidth, srcHeight, destWidth, destHeight)
	}

	r := &Resizer{
		ctx:        ctx,
		srcWidth:   srcWidth,
		srcHeight:  srcHeight,
		destWidth:  destWidth,
		destHeight: destHeight,
	}

	// precalculate scaling dimensions
	r.preCalc()

	return r, nil
}

// preCalc the scaling factors for source and destination arrays
func (r *Resizer) preCalc() {

	r.resizeW = r.destWidth
	r.resizeH = r.destHeight

	scaleW := float32(r.destWidth) / float32(r.srcWidth)
	scaleH := float32(r.destHeight) / float32(r.srcHeight)
	r.scale = scaleH

	if scaleW < scaleH {
		r.scale = scaleW
		r.resizeH = int(float32(r.srcHeight) * r.scale)
	} else {
		r.resizeW = int(float32(r.srcWidth) * r.scale)
	}

	r.yPad = (r.destHeight - r.resizeH) / 2 // padding height / 2
	r.xPad = (r.destWidth - r.resizeW) / 2  // padding width / 2
}

// LetterBoxResize resizes src to the destination dimensions whilst
// maintaining image aspect, value is the color used for the letter box
// padding.  Given a stream both steps are queued on it.
func (r *Resizer) LetterBoxResize(src *cann.NpuMat, value cann.Scalar, opts ...cann.Option) (*cann.NpuMat, error) {

	if src.Cols() != r.srcWidth || src.Rows() != r.srcHeight {
		return nil, fmt.Errorf("source is %dx%d, resizer expects %dx%d: %w",
			src.Cols(), src.Rows(), r.srcWidth, r.srcHeight, cann.ErrShapeMismatch)
	}

	stream := streamOnly(opts)

	tmp, err := r.ctx.Resize(src, image.Pt(r.resizeW, r.resizeH), 0, 0, gocv.InterpolationArea, stream...)

	if err != nil {
		return nil, fmt.Errorf("error resizing: %w", err)
	}

	// device memory is held by the queued border operation
	defer tmp.Release()

	dst, err := r.ctx.CopyMakeBorder(tmp, r.yPad, r.destHeight-r.resizeH-r.yPad,
		r.xPad, r.destWidth-r.resizeW-r.xPad, gocv.BorderConstant, value, opts...)

	if err != nil {
		return nil, fmt.Errorf("error adding letter box border: %w", err)
	}

	return dst, nil
}

// streamOnly drops every option except the stream, the intermediate resize
// must not write into the caller's destination
func streamOnly(opts []cann.Option) []cann.Option {

	if s := cann.StreamOf(opts...); s != nil {
		return []cann.Option{cann.WithStream(s)}
	}

	return nil
}

// ScaleFactor returns the scale factor used in letterbox resize
func (r *Resizer) ScaleFactor() float32 {
	return r.scale
}

// XPad returns the x padding used in letterbox resize
func (r *Resizer) XPad() int {
	return r.xPad
}

// YPad returns the y padding used in letterbox resize
func (r *Resizer) YPad() int {
	return r.yPad
}

// SrcWidth returns the width of the source image
func (r *Resizer) SrcWidth() int {
	return r.srcWidth
}

// SrcHeight returns the height of the source image
func (r *Resizer) SrcHeight() int {
	return r.srcHeight
}

// ToSource maps a point in the letterboxed output back to the source image
func (r *Resizer) ToSource(p image.Point) image.Point {
	return image.Pt(
		int(float32(p.X-r.xPad)/r.scale),
		int(float32(p.Y-r.yPad)/r.scale),
	)
}

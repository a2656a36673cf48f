package cann

import (
	"gocv.io/x/gocv"
)

// colorChannels is the input and output channel count of a color
// conversion
type colorChannels struct {
	src int
	dst int
}

// colorCodes lists the conversions supported by CvtColor
var colorCodes = map[gocv.ColorConversionCode]colorChannels{
	gocv.ColorBGRToBGRA:  {3, 4},
	gocv.ColorBGRAToBGR:  {4, 3},
	gocv.ColorBGRToRGBA:  {3, 4},
	gocv.ColorRGBAToBGR:  {4, 3},
	gocv.ColorBGRToRGB:   {3, 3},
	gocv.ColorBGRAToRGBA: {4, 4},
	gocv.ColorBGRToGray:  {3, 1},
	gocv.ColorRGBToGray:  {3, 1},
	gocv.ColorGrayToBGR:  {1, 3},
	gocv.ColorGrayToBGRA: {1, 4},
	gocv.ColorBGRAToGray: {4, 1},
	gocv.ColorRGBAToGray: {4, 1},
	gocv.ColorBGRToXYZ:   {3, 3},
	gocv.ColorRGBToXYZ:   {3, 3},
	gocv.ColorXYZToBGR:   {3, 3},
	gocv.ColorXYZToRGB:   {3, 3},
	gocv.ColorBGRToYCrCb: {3, 3},
	gocv.ColorRGBToYCrCb: {3, 3},
	gocv.ColorYCrCbToBGR: {3, 3},
	gocv.ColorYCrCbToRGB: {3, 3},
	gocv.ColorBGRToYUV:   {3, 3},
	gocv.ColorRGBToYUV:   {3, 3},
	gocv.ColorYUVToBGR:   {3, 3},
	gocv.ColorYUVToRGB:   {3, 3},
}

// CvtColor converts src between color spaces.  Supported depths are U8,
// U16 and F32.
func (c *Context) CvtColor(src *NpuMat, code gocv.ColorConversionCode, opts ...Option) (*NpuMat, error) {

	op := "CvtColor"
	o := newOptions(opts)

	dev, err := c.operands(op, src)

	if err != nil {
		return nil, err
	}

	cc, ok := colorCodes[code]

	if !ok {
		return nil, newError(ErrCodeUnsupported, op, "color conversion code %d", int(code))
	}

	if src.typ.Channels() != cc.src {
		return nil, newError(ErrCodeShapeMismatch, op, "conversion %d expects %d channels, got %d",
			int(code), cc.src, src.typ.Channels())
	}

	switch src.typ.Depth() {
	case DepthU8, DepthU16, DepthF32:
	default:
		return nil, newError(ErrCodeDtypeMismatch, op, "depth %s is not supported", src.typ.Depth())
	}

	dst, _, err := c.output(op, o, dev, src.rows, src.cols, MakeType(src.typ.Depth(), cc.dst), src)

	if err != nil {
		return nil, err
	}

	sv, out := src.view(), dst.view()

	err = c.run(op, dev, o.stream, func() error {
		in, err := hostMat(sv)

		if err != nil {
			return err
		}

		defer in.Close()

		res := gocv.NewMat()
		defer res.Close()

		gocv.CvtColor(in, &res, code)

		return copyFromHost(out, res)
	}, src, dst)

	return dst, err
}

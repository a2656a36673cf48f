// Package imgio reads image files into device arrays and writes device
// arrays back out.  PNG, JPEG, GIF, BMP, TIFF and WebP are decoded, PNG, JPEG,
// BMP and TIFF are encoded.
package imgio

import (
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/swdee/go-cann"
	"gocv.io/x/gocv"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decode reads an image and uploads it to the active device as a U8C3 BGR
// array.  The name of the decoded format is also returned.
func Decode(ctx *cann.Context, r io.Reader) (*cann.NpuMat, string, error) {

	img, format, err := image.Decode(r)

	if err != nil {
		return nil, "", fmt.Errorf("error decoding image: %w", err)
	}

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	host, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)

	if err != nil {
		return nil, "", fmt.Errorf("error creating Mat from RGBA: %w", err)
	}

	defer host.Close()

	dev, err := ctx.NewNpuMat()

	if err != nil {
		return nil, "", err
	}

	defer dev.Release()

	// host data is captured by Upload
	err = dev.Upload(host)
	runtime.KeepAlive(rgba.Pix)

	if err != nil {
		return nil, "", fmt.Errorf("error uploading image: %w", err)
	}

	bgr, err := ctx.CvtColor(dev, gocv.ColorRGBAToBGR)

	if err != nil {
		return nil, "", fmt.Errorf("error converting image to BGR: %w", err)
	}

	return bgr, format, nil
}

// Read decodes the image file at path
func Read(ctx *cann.Context, path string) (*cann.NpuMat, error) {

	f, err := os.Open(path)

	if err != nil {
		return nil, fmt.Errorf("error opening image: %w", err)
	}

	defer f.Close()

	m, _, err := Decode(ctx, f)

	return m, err
}

// Format is an image encoding supported by Encode
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
)

// FormatFromPath returns the Format matching the file extension of path
func FormatFromPath(path string) (Format, error) {

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return PNG, nil
	case ".jpg", ".jpeg":
		return JPEG, nil
	case ".bmp":
		return BMP, nil
	case ".tif", ".tiff":
		return TIFF, nil
	}

	return "", fmt.Errorf("unsupported image extension %q", filepath.Ext(path))
}

// rgbaCode returns the conversion from an array of cn channels to RGBA
func rgbaCode(cn int) (gocv.ColorConversionCode, error) {
	switch cn {
	case 1:
		return gocv.ColorGrayToBGRA, nil
	case 3:
		return gocv.ColorBGRToRGBA, nil
	case 4:
		return gocv.ColorBGRAToRGBA, nil
	}

	return 0, fmt.Errorf("unsupported channel count %d", cn)
}

// ToImage downloads a U8 gray, BGR or BGRA array as an image.RGBA
func ToImage(ctx *cann.Context, m *cann.NpuMat) (*image.RGBA, error) {

	if m.Depth() != cann.DepthU8 {
		return nil, fmt.Errorf("array depth %s: %w", m.Depth(), cann.ErrDtypeMismatch)
	}

	code, err := rgbaCode(m.Channels())

	if err != nil {
		return nil, err
	}

	conv, err := ctx.CvtColor(m, code)

	if err != nil {
		return nil, fmt.Errorf("error converting array to RGBA: %w", err)
	}

	defer conv.Release()

	host, err := conv.Download()

	if err != nil {
		return nil, fmt.Errorf("error downloading array: %w", err)
	}

	defer host.Close()

	rgba := image.NewRGBA(image.Rect(0, 0, host.Cols(), host.Rows()))
	copy(rgba.Pix, host.ToBytes())

	return rgba, nil
}

// Encode writes the array in the given format
func Encode(ctx *cann.Context, w io.Writer, m *cann.NpuMat, format Format) error {

	img, err := ToImage(ctx, m)

	if err != nil {
		return err
	}

	switch format {
	case PNG:
		err = png.Encode(w, img)
	case JPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case BMP:
		err = bmp.Encode(w, img)
	case TIFF:
		err = tiff.Encode(w, img, nil)
	default:
		return fmt.Errorf("unsupported image format %q", format)
	}

	if err != nil {
		return fmt.Errorf("error encoding %s: %w", format, err)
	}

	return nil
}

// Write encodes the array to path in the format matching its extension
func Write(ctx *cann.Context, path string, m *cann.NpuMat) error {

	format, err := FormatFromPath(path)

	if err != nil {
		return err
	}

	f, err := os.Create(path)

	if err != nil {
		return fmt.Errorf("error creating image file: %w", err)
	}

	err = Encode(ctx, f, m, format)

	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("error closing image file: %w", cerr)
	}

	return err
}

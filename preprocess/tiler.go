package preprocess

import (
	"fmt"
	"image"
	"math"

	"github.com/swdee/go-cann"
)

// Tiler slices a large device image into overlapping tiles, each letterboxed
// down to a fixed size
type Tiler struct {
	ctx *cann.Context
	// sliceWidth is the width each tile is scaled to
	sliceWidth int
	// sliceHeight is the height each tile is scaled to
	sliceHeight int
	// overlapWidth is a ratio from 0.0 to 1.0 to represent the number of pixels
	// to overlap each slice.  A value of 0.2 represents 20% of sliceWidth's pixels
	overlapWidth float32
	// overlapHeight is a ratio from 0.0 to 1.0 to represent the number of pixels
	// to overlap each slice.  A value of 0.2 represents 20% of sliceHeight's pixels
	overlapHeight float32
}

// Tile is a region of the source image and its letterboxed device array
type Tile struct {
	// Rect is the region of the source image the tile covers
	Rect image.Rectangle
	// Mat is the tile after crop and letterbox resize
	Mat *cann.NpuMat
	// Resizer holds the letterbox parameters used on the tile
	Resizer *Resizer
}

// NewTiler returns a Tiler producing tiles of sliceWidth x sliceHeight.
// Overlap ratios must be in the range [0, 1).
func NewTiler(ctx *cann.Context, sliceWidth, sliceHeight int, overlapWidth, overlapHeight float32) (*Tiler, error) {

	if sliceWidth <= 0 || sliceHeight <= 0 {
		return nil, fmt.Errorf("%w: slice %dx%d", ErrInvalidSize, sliceWidth, sliceHeight)
	}

	for _, ov := range []float32{overlapWidth, overlapHeight} {
		if !(ov >= 0 && ov < 1) {
			return nil, fmt.Errorf("overlap ratio %v is outside [0, 1)", ov)
		}
	}

	return &Tiler{
		ctx:           ctx,
		sliceWidth:    sliceWidth,
		sliceHeight:   sliceHeight,
		overlapWidth:  overlapWidth,
		overlapHeight: overlapHeight,
	}, nil
}

// computePositions returns the start‐coordinates (0‐based) of each tile
// along one axis, and the computed tile length.  It guarantees:
//
//   - you get the smallest n tiles so that n*tileLen – (n−1)*step >= srcLen
//   - step = (srcLen−tileLen)/(n−1) is =< sliceLen
//   - thus overlap = tileLen − step >= sliceLen*overlapRatio
//
// any leftover pixels to cover the image get spread evenly via rounding.
func computePositions(srcLen, sliceLen int, overlapRatio float32) ([]int, int) {

	// minimum pixel‐overlap
	minOv := int(math.Ceil(float64(sliceLen) * float64(overlapRatio)))

	// tile length = sliceLen + that minimum overlap, never more than the
	// source has
	tileLen := min(sliceLen+minOv, srcLen)

	// how many tiles you'd need if you stepped by sliceLen each time?
	//    this ensures step =< sliceLen and so overlap >= minOv
	n := int(math.Ceil(float64(srcLen-tileLen)/float64(sliceLen))) + 1
	if n < 1 {
		n = 1
	}

	// actual step (evenly spread)
	denom := n - 1
	var step float64

	if denom > 0 {
		step = float64(srcLen-tileLen) / float64(denom)
	}

	positions := make([]int, n)

	for i := 0; i < n; i++ {
		p := int(math.Round(step * float64(i)))

		// clamp to [0, srcLen-tileLen]
		if p < 0 {
			p = 0
		} else if p > srcLen-tileLen {
			p = srcLen - tileLen
		}

		positions[i] = p
	}

	return positions, tileLen
}

// Regions returns the source regions the image of the given size is sliced
// into, row by row
func (t *Tiler) Regions(srcWidth, srcHeight int) []image.Rectangle {

	xs, tileW := computePositions(srcWidth, t.sliceWidth, t.overlapWidth)
	ys, tileH := computePositions(srcHeight, t.sliceHeight, t.overlapHeight)

	rects := make([]image.Rectangle, 0, len(xs)*len(ys))

	for _, y := range ys {
		for _, x := range xs {
			rects = append(rects, image.Rect(x, y, x+tileW, y+tileH))
		}
	}

	return rects
}

// Slice crops and letterboxes every tile of src, given a stream the work is
// queued on it
func (t *Tiler) Slice(src *cann.NpuMat, value cann.Scalar, opts ...cann.Option) ([]Tile, error) {

	if src.Empty() {
		return nil, fmt.Errorf("%w: empty source", ErrInvalidSize)
	}

	rects := t.Regions(src.Cols(), src.Rows())
	tiles := make([]Tile, 0, len(rects))
	stream := streamOnly(opts)

	for _, rect := range rects {
		crop, err := src.Crop(rect, stream...)

		if err != nil {
			FreeTiles(tiles)
			return nil, fmt.Errorf("error cropping tile %v: %w", rect, err)
		}

		resizer, err := NewResizer(t.ctx, rect.Dx(), rect.Dy(), t.sliceWidth, t.sliceHeight)

		if err != nil {
			crop.Release()
			FreeTiles(tiles)
			return nil, err
		}

		mat, err := resizer.LetterBoxResize(crop, value, stream...)
		crop.Release()

		if err != nil {
			FreeTiles(tiles)
			return nil, fmt.Errorf("error resizing tile %v: %w", rect, err)
		}

		tiles = append(tiles, Tile{Rect: rect, Mat: mat, Resizer: resizer})
	}

	return tiles, nil
}

// ToSource maps a point in a tile's letterboxed array back to the source
// image
func (t Tile) ToSource(p image.Point) image.Point {
	return t.Resizer.ToSource(p).Add(t.Rect.Min)
}

// FreeTiles releases the device arrays of the tiles
func FreeTiles(tiles []Tile) {
	for _, tile := range tiles {
		if tile.Mat != nil {
			tile.Mat.Release()
		}
	}
}

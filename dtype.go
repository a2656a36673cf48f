package cann

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// Depth is the element data type of an array, numbered as OpenCV depths so
// values convert directly to and from gocv.MatType
type Depth int

const (
	DepthU8  Depth = 0
	DepthS8  Depth = 1
	DepthU16 Depth = 2
	DepthS16 Depth = 3
	DepthS32 Depth = 4
	DepthF32 Depth = 5
	DepthF64 Depth = 6
	DepthF16 Depth = 7
)

// MaxChannels is the maximum number of interleaved channels in an array
const MaxChannels = 4

const (
	depthMask    = 7
	channelShift = 3
)

// Size returns the number of bytes of a single element of the depth
func (d Depth) Size() int {
	switch d {
	case DepthU8, DepthS8:
		return 1
	case DepthU16, DepthS16, DepthF16:
		return 2
	case DepthS32, DepthF32:
		return 4
	case DepthF64:
		return 8
	default:
		return 0
	}
}

// IsIntegral reports if the depth holds integers, the requirement for the
// bitwise operations
func (d Depth) IsIntegral() bool {
	return d >= DepthU8 && d <= DepthS32
}

// IsFloat reports if the depth holds floating point values
func (d Depth) IsFloat() bool {
	return d == DepthF32 || d == DepthF64 || d == DepthF16
}

// Valid reports if the depth is a known value
func (d Depth) Valid() bool {
	return d >= DepthU8 && d <= DepthF16
}

// Range returns the representable value range used by saturating casts
func (d Depth) Range() (lo, hi float64) {
	switch d {
	case DepthU8:
		return 0, 255
	case DepthS8:
		return -128, 127
	case DepthU16:
		return 0, 65535
	case DepthS16:
		return -32768, 32767
	case DepthS32:
		return -2147483648, 2147483647
	case DepthF16:
		return -65504, 65504
	default:
		return -math.MaxFloat64, math.MaxFloat64
	}
}

// String returns a readable description of the Depth
func (d Depth) String() string {
	switch d {
	case DepthU8:
		return "U8"
	case DepthS8:
		return "S8"
	case DepthU16:
		return "U16"
	case DepthS16:
		return "S16"
	case DepthS32:
		return "S32"
	case DepthF32:
		return "F32"
	case DepthF64:
		return "F64"
	case DepthF16:
		return "F16"
	default:
		return "UNKNOW"
	}
}

// MatType is the combined depth and channel count of an array, encoded the
// same way as OpenCV's CV_MAKETYPE
type MatType int

// MakeType returns the MatType of the given depth with cn channels
func MakeType(d Depth, cn int) MatType {
	return MatType(int(d) + (cn-1)<<channelShift)
}

// common array types
var (
	TypeU8C1  = MakeType(DepthU8, 1)
	TypeU8C3  = MakeType(DepthU8, 3)
	TypeU8C4  = MakeType(DepthU8, 4)
	TypeU16C1 = MakeType(DepthU16, 1)
	TypeU16C3 = MakeType(DepthU16, 3)
	TypeS16C3 = MakeType(DepthS16, 3)
	TypeS32C1 = MakeType(DepthS32, 1)
	TypeS32C3 = MakeType(DepthS32, 3)
	TypeF32C1 = MakeType(DepthF32, 1)
	TypeF32C3 = MakeType(DepthF32, 3)
	TypeF64C1 = MakeType(DepthF64, 1)
	TypeF16C1 = MakeType(DepthF16, 1)
)

// Depth returns the element depth of the type
func (t MatType) Depth() Depth {
	return Depth(int(t) & depthMask)
}

// Channels returns the number of channels of the type
func (t MatType) Channels() int {
	return int(t)>>channelShift + 1
}

// ElemSize returns the number of bytes of one pixel, ie: all channels
func (t MatType) ElemSize() int {
	return t.Depth().Size() * t.Channels()
}

// Valid reports if the type has a known depth and 1 to MaxChannels channels
func (t MatType) Valid() bool {
	return t >= 0 && t.Depth().Valid() && t.Channels() >= 1 && t.Channels() <= MaxChannels
}

// Gocv returns the gocv.MatType equivalent
func (t MatType) Gocv() gocv.MatType {
	return gocv.MatType(t)
}

// TypeFromGocv converts a gocv.MatType to a MatType
func TypeFromGocv(mt gocv.MatType) MatType {
	return MatType(mt)
}

// String returns the type formatted in the form U8C3
func (t MatType) String() string {
	return fmt.Sprintf("%sC%d", t.Depth().String(), t.Channels())
}

package cann

import "github.com/x448/float16"

var f16LookupTable [65536]float32

func init() {
	// precompute float16 lookup table for faster conversion to float32
	for i := range f16LookupTable {
		f16 := float16.Frombits(uint16(i))
		f16LookupTable[i] = f16.Float32()
	}
}

// f16ToFloat converts the bits of a half precision value to float64
func f16ToFloat(bits uint16) float64 {
	return float64(f16LookupTable[bits])
}

// floatToF16 converts v to the bits of the nearest half precision value
func floatToF16(v float64) uint16 {
	return float16.Fromfloat32(float32(v)).Bits()
}

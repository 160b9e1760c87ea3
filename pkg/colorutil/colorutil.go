// Package colorutil provides dynamic-range conversions between generator
// output, perceptual scoring range and 8-bit pixels.
package colorutil

import "math"

// SignedToByteRange maps a generator value in [-1, 1] to [0, 255]
// without clamping.
func SignedToByteRange(v float64) float64 {
	return (v + 1) * (255.0 / 2)
}

// ByteRangeGain is d(SignedToByteRange)/dv.
const ByteRangeGain = 255.0 / 2

// ToByte clamps a [0, 255] float to uint8, truncating like a tensor cast.
// NaN maps to 0.
func ToByte(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// SignedToByte converts a [-1, 1] generator value straight to a pixel.
func SignedToByte(v float64) uint8 {
	return ToByte(SignedToByteRange(v))
}

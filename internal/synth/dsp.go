package synth

import (
	"encoding/binary"
	"math"
)

// lcg steps a 64-bit LCG and maps the high bits to a sample in [-1,1).
func lcg(seed *uint64) float64 {
	*seed = *seed*6364136223846793005 + 1442695040888963407
	return float64(int64(*seed>>33)-int64(1<<30)) / float64(1<<30)
}

// softSat applies gentle tanh-like saturation without harsh clipping.
func softSat(x float64) float64 {
	if x > 1.0 {
		return 1.0 - 0.5/(x)
	}
	if x < -1.0 {
		return -1.0 + 0.5/(-x)
	}
	return x - x*x*x/3.0
}

// putFrame writes one interleaved float32 LE stereo frame at frame index i.
func putFrame(buf []byte, i int, left, right float64) {
	binary.LittleEndian.PutUint32(buf[i*8:], math.Float32bits(float32(left)))
	binary.LittleEndian.PutUint32(buf[i*8+4:], math.Float32bits(float32(right)))
}

func triWave(phase float64) float64 {
	return (2.0 / math.Pi) * math.Asin(math.Sin(phase))
}

// Clamp01 limits a level to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return clampF(v, 0, 1)
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

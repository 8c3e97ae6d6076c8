package embedding

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode serializes a vector as little-endian float64s.
func Encode(vector []float64) []byte {
	buf := make([]byte, len(vector)*8)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func Decode(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("invalid vector encoding: %d bytes is not a multiple of 8", len(buf))
	}

	vector := make([]float64, len(buf)/8)
	for i := range vector {
		bits := binary.LittleEndian.Uint64(buf[i*8:])
		vector[i] = math.Float64frombits(bits)
	}

	return vector, nil
}

// FromFloat32 widens vectors returned by backends that embed in float32.
func FromFloat32(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

package testsupport

import (
	"encoding/binary"
	"math"
)

// Float32Frame encodes samples the way a browser AudioWorklet posts them:
// little-endian IEEE 754 float32.
func Float32Frame(samples ...float32) []byte {
	out := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

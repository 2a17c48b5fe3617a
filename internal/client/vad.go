package client

import (
	"encoding/binary"
	"math"
)

// Detector is a simple energy-based voice activity detector over PCM16
// frames. RMS energy is normalized against full scale; frames above the
// threshold count as voiced.
type Detector struct {
	threshold float64
}

// DefaultVADThreshold works for typical close-mic speech at 16 kHz.
const DefaultVADThreshold = 0.04

// NewDetector creates a Detector with the given normalized threshold
// (0..1). Zero selects the default.
func NewDetector(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultVADThreshold
	}
	return &Detector{threshold: threshold}
}

// Voiced reports whether the frame's normalized RMS energy crosses the
// threshold. Odd trailing bytes are ignored.
func (d *Detector) Voiced(frame []byte) bool {
	return d.Energy(frame) >= d.threshold
}

// Energy returns the normalized RMS energy of a little-endian PCM16 frame.
func (d *Detector) Energy(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(frame[2*i:]))
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(n))
	return rms / 32768.0
}

package client

import (
	"encoding/binary"
	"testing"
)

func pcmFrame(amplitude int16, samples int) []byte {
	frame := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(frame[2*i:], uint16(amplitude))
	}
	return frame
}

func TestDetector_Voiced(t *testing.T) {
	d := NewDetector(0.04)

	tests := []struct {
		name      string
		frame     []byte
		wantVoice bool
	}{
		{"silence", pcmFrame(0, 160), false},
		{"quiet hum", pcmFrame(200, 160), false},
		{"speech level", pcmFrame(8000, 160), true},
		{"loud", pcmFrame(30000, 160), true},
		{"empty frame", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Voiced(tt.frame); got != tt.wantVoice {
				t.Errorf("Voiced() = %v, want %v (energy %f)", got, tt.wantVoice, d.Energy(tt.frame))
			}
		})
	}
}

func TestDetector_EnergyNormalized(t *testing.T) {
	d := NewDetector(0)

	if e := d.Energy(pcmFrame(0, 160)); e != 0 {
		t.Errorf("silence energy = %f, want 0", e)
	}
	full := d.Energy(pcmFrame(32767, 160))
	if full < 0.99 || full > 1.0 {
		t.Errorf("full-scale energy = %f, want ~1.0", full)
	}
}

func TestDetector_DefaultThreshold(t *testing.T) {
	d := NewDetector(0)
	if d.threshold != DefaultVADThreshold {
		t.Errorf("expected default threshold, got %f", d.threshold)
	}
}

func TestDelta(t *testing.T) {
	tests := []struct {
		name string
		prev string
		next string
		want string
	}{
		{"first partial", "", "hello there", "hello there"},
		{"grown aggregate", "hello there", "hello there how are", "how are"},
		{"unchanged", "hello there", "hello there", ""},
		{"trimmed prefix", "hello there ", "hello there how", "how"},
		{"rewritten", "hello there", "completely different words", "completely different words"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Delta(tt.prev, tt.next); got != tt.want {
				t.Errorf("Delta(%q, %q) = %q, want %q", tt.prev, tt.next, got, tt.want)
			}
		})
	}
}

package audio

import (
	"math"
	"testing"
)

func TestResamplePassthrough(t *testing.T) {
	t.Parallel()

	in := []int16{1, 2, 3, 4}
	out := Resample(in, 16000, 16000)
	if &out[0] != &in[0] {
		t.Fatal("equal rates should return the input unchanged")
	}
	if got := Resample(nil, 44100, 16000); len(got) != 0 {
		t.Fatalf("want empty output for empty input, got %d samples", len(got))
	}
}

func TestResampleLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		srcRate, dstRate int
		srcLen, wantLen  int
	}{
		{"48k to 16k", 48000, 16000, 4800, 1600},
		{"44.1k to 16k", 44100, 16000, 4410, 1600},
		{"16k to 48k", 16000, 48000, 1600, 4800},
		{"8k to 16k", 8000, 16000, 800, 1600},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out := Resample(make([]int16, tc.srcLen), tc.srcRate, tc.dstRate)
			if len(out) != tc.wantLen {
				t.Fatalf("want %d samples, got %d", tc.wantLen, len(out))
			}
		})
	}
}

func TestResamplePreservesDC(t *testing.T) {
	t.Parallel()

	// A constant signal must survive resampling: the normalised kernel has
	// unity DC gain.
	in := make([]int16, 4410)
	for i := range in {
		in[i] = 10000
	}
	out := Resample(in, 44100, 16000)

	// Ignore edge taps where the kernel is truncated.
	for i := 50; i < len(out)-50; i++ {
		if d := int(out[i]) - 10000; d < -5 || d > 5 {
			t.Fatalf("sample %d: want ~10000, got %d", i, out[i])
		}
	}
}

func TestResamplePreservesTone(t *testing.T) {
	t.Parallel()

	// A 440 Hz tone is far below Nyquist at both rates; its amplitude should
	// survive downsampling from 48 kHz to 16 kHz.
	const freq = 440.0
	in := make([]int16, 9600)
	for i := range in {
		in[i] = int16(20000 * math.Sin(2*math.Pi*freq*float64(i)/48000))
	}
	out := Resample(in, 48000, 16000)

	var peak int
	for i := 100; i < len(out)-100; i++ {
		v := int(out[i])
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	if peak < 18000 || peak > 22000 {
		t.Fatalf("tone amplitude not preserved: peak %d", peak)
	}
}

func TestResampleLinear(t *testing.T) {
	t.Parallel()

	t.Run("passthrough", func(t *testing.T) {
		t.Parallel()
		in := []byte{1, 0, 2, 0}
		if got := ResampleLinear(in, 16000, 16000); &got[0] != &in[0] {
			t.Fatal("equal rates should return the input unchanged")
		}
	})

	t.Run("halves sample count", func(t *testing.T) {
		t.Parallel()
		in := make([]byte, 3200) // 1600 samples
		out := ResampleLinear(in, 32000, 16000)
		if len(out) != 1600 {
			t.Fatalf("want 1600 bytes, got %d", len(out))
		}
	})
}

package audio

import (
	"encoding/binary"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	t.Parallel()

	t.Run("header fields", func(t *testing.T) {
		t.Parallel()
		samples := make([]int16, 1600) // 100 ms at 16 kHz
		data, err := EncodeWAV(samples, 16000)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}

		if len(data) != wavHeaderSize+3200 {
			t.Fatalf("want %d bytes, got %d", wavHeaderSize+3200, len(data))
		}
		if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
			t.Fatal("missing RIFF/WAVE magic")
		}
		if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
			t.Fatalf("want sample rate 16000, got %d", rate)
		}
		if size := binary.LittleEndian.Uint32(data[40:44]); size != 3200 {
			t.Fatalf("want data size 3200, got %d", size)
		}
		if size := binary.LittleEndian.Uint32(data[4:8]); size != uint32(len(data)-8) {
			t.Fatalf("chunk size %d does not match file size %d", size, len(data))
		}
	})

	t.Run("rejects empty input", func(t *testing.T) {
		t.Parallel()
		if _, err := EncodeWAV(nil, 16000); err == nil {
			t.Fatal("want error for empty samples")
		}
		if _, err := EncodeWAV([]int16{1}, 0); err == nil {
			t.Fatal("want error for zero sample rate")
		}
	})
}

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	in := []int16{0, 1, -1, 32767, -32768, 4242}
	data, err := EncodeWAV(in, 48000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rate != 48000 {
		t.Fatalf("want rate 48000, got %d", rate)
	}
	if len(out) != len(in) {
		t.Fatalf("want %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d: want %d, got %d", i, in[i], out[i])
		}
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte("RIFF")},
		{"not riff", make([]byte, 64)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := DecodeWAV(tc.data); err == nil {
				t.Fatal("want decode error")
			}
		})
	}
}

func TestWAVDuration(t *testing.T) {
	t.Parallel()

	data, err := EncodeWAV(make([]int16, 32000), 16000) // 2 s
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	secs, err := WAVDuration(data)
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if secs != 2.0 {
		t.Fatalf("want 2.0s, got %v", secs)
	}
}

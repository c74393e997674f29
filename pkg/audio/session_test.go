package audio

import (
	"bytes"
	"testing"
	"time"
)

func TestSessionBufferCap(t *testing.T) {
	t.Parallel()

	t.Run("never exceeds max samples", func(t *testing.T) {
		t.Parallel()
		b := NewSessionBuffer(16000, 1000)

		chunk := make([]int16, 333)
		for i := 0; i < 50; i++ {
			b.Append(chunk)
			if b.Len() > 1000 {
				t.Fatalf("cap violated after append %d: len=%d", i, b.Len())
			}
		}
	})

	t.Run("keeps most recent window", func(t *testing.T) {
		t.Parallel()
		// 1 s cap at 16 kHz, 3 s appended: the final second must survive.
		b := NewSessionBuffer(16000, 16000)

		samples := make([]int16, 48000)
		for i := range samples {
			samples[i] = int16(i % 32000)
		}
		b.Append(samples)

		if got := b.Len(); got != 16000 {
			t.Fatalf("want 16000 samples, got %d", got)
		}
		kept := b.Samples()
		for i, s := range kept {
			want := int16((32000 + i) % 32000)
			if s != want {
				t.Fatalf("sample %d: want %d, got %d", i, want, s)
			}
		}
	})

	t.Run("zero cap disables trimming", func(t *testing.T) {
		t.Parallel()
		b := NewSessionBuffer(16000, 0)
		b.Append(make([]int16, 100000))
		if got := b.Len(); got != 100000 {
			t.Fatalf("want 100000 samples, got %d", got)
		}
	})
}

func TestSessionBufferEncodeDeterministic(t *testing.T) {
	t.Parallel()

	b := NewSessionBuffer(16000, 0)
	b.Append([]int16{1, -1, 32767, -32768, 0, 12345})

	first, err := b.EncodeWAV()
	if err != nil {
		t.Fatalf("first encode: %v", err)
	}
	second, err := b.EncodeWAV()
	if err != nil {
		t.Fatalf("second encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("repeated encode of an unmodified buffer differs")
	}
	if b.Len() != 6 {
		t.Fatalf("encode mutated the buffer: len=%d", b.Len())
	}
}

func TestSessionBufferClear(t *testing.T) {
	t.Parallel()

	b := NewSessionBuffer(16000, 0)
	b.Append(make([]int16, 1600))
	if b.Duration() != 100*time.Millisecond {
		t.Fatalf("want 100ms, got %v", b.Duration())
	}

	b.Clear()
	if b.Len() != 0 {
		t.Fatalf("want empty buffer after clear, got %d samples", b.Len())
	}
	if _, err := b.EncodeWAV(); err == nil {
		t.Fatal("want error encoding an empty buffer")
	}
}

func TestSessionBufferAppendBytes(t *testing.T) {
	t.Parallel()

	b := NewSessionBuffer(16000, 0)
	b.AppendBytes([]byte{0x01, 0x00, 0xFF, 0xFF}) // 1, -1
	got := b.Samples()
	if len(got) != 2 || got[0] != 1 || got[1] != -1 {
		t.Fatalf("want [1 -1], got %v", got)
	}
}

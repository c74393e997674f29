package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// wavHeader is the 44-byte canonical RIFF/WAVE header for PCM data.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // byte length of the sample data
}

const wavHeaderSize = 44

// EncodeWAV encodes mono PCM16 samples into a WAV container. The output is a
// pure function of the inputs: encoding the same samples twice yields
// byte-identical output.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("audio: encode wav: no samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: encode wav: invalid sample rate %d", sampleRate)
	}

	const (
		channels      = uint16(1)
		bitsPerSample = uint16(16)
	)
	dataSize := uint32(len(samples) * 2)

	hdr := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(wavHeaderSize-8) + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(channels) * uint32(bitsPerSample) / 8,
		BlockAlign:    channels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, hdr); err != nil {
		return nil, fmt.Errorf("audio: write wav header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("audio: write wav data: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWAV parses a mono PCM16 WAV container back into samples and the
// sample rate recorded in its header.
func DecodeWAV(data []byte) ([]int16, int, error) {
	if len(data) < wavHeaderSize {
		return nil, 0, fmt.Errorf("audio: decode wav: %d bytes is shorter than the header", len(data))
	}

	r := bytes.NewReader(data)
	var hdr wavHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, 0, fmt.Errorf("audio: read wav header: %w", err)
	}

	switch {
	case string(hdr.ChunkID[:]) != "RIFF" || string(hdr.Format[:]) != "WAVE":
		return nil, 0, fmt.Errorf("audio: decode wav: not a RIFF/WAVE container")
	case string(hdr.Subchunk1ID[:]) != "fmt " || string(hdr.Subchunk2ID[:]) != "data":
		return nil, 0, fmt.Errorf("audio: decode wav: missing fmt or data chunk")
	case hdr.AudioFormat != 1:
		return nil, 0, fmt.Errorf("audio: decode wav: unsupported format %d (want PCM)", hdr.AudioFormat)
	case hdr.BitsPerSample != 16:
		return nil, 0, fmt.Errorf("audio: decode wav: unsupported bit depth %d", hdr.BitsPerSample)
	case hdr.NumChannels != 1:
		return nil, 0, fmt.Errorf("audio: decode wav: unsupported channel count %d", hdr.NumChannels)
	}

	n := int(hdr.Subchunk2Size) / 2
	if n <= 0 {
		return nil, 0, fmt.Errorf("audio: decode wav: no sample data")
	}
	samples := make([]int16, n)
	if err := binary.Read(r, binary.LittleEndian, samples); err != nil {
		return nil, 0, fmt.Errorf("audio: read wav data: %w", err)
	}
	return samples, int(hdr.SampleRate), nil
}

// WAVDuration returns the play time in seconds recorded in a WAV header
// without decoding the sample data.
func WAVDuration(data []byte) (float64, error) {
	if len(data) < wavHeaderSize {
		return 0, fmt.Errorf("audio: wav duration: %d bytes is shorter than the header", len(data))
	}
	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	if sampleRate == 0 {
		return 0, fmt.Errorf("audio: wav duration: zero sample rate")
	}
	dataSize := binary.LittleEndian.Uint32(data[40:44])
	return float64(dataSize/2) / float64(sampleRate), nil
}

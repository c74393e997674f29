package audio

import "math"

// Sinc resampler parameters. 16 taps per side with a Hann window keeps
// aliasing below the noise floor of speech recordings while staying cheap
// enough to run once per utterance.
const (
	sincTaps   = 16
	sincCutoff = 0.95
)

// Resample converts mono PCM16 samples from srcRate to dstRate using
// band-limited windowed-sinc interpolation. The whole buffer is processed in
// one call so there are no boundary artifacts between chunks; callers should
// resample a finalized utterance, not individual frames.
//
// When srcRate == dstRate the input is returned unchanged.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	srcLen := len(samples)
	dstLen := int(int64(srcLen) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	// When downsampling, the kernel cutoff must shrink to the new Nyquist
	// frequency and the kernel widen accordingly.
	ratio := float64(srcRate) / float64(dstRate)
	cutoff := sincCutoff
	taps := sincTaps
	if dstRate < srcRate {
		cutoff = sincCutoff * float64(dstRate) / float64(srcRate)
		taps = int(math.Ceil(float64(sincTaps) * ratio))
	}

	out := make([]int16, dstLen)
	for i := range dstLen {
		srcPos := float64(i) * ratio

		var acc, norm float64
		lo := int(math.Floor(srcPos)) - taps + 1
		hi := int(math.Floor(srcPos)) + taps
		for j := lo; j <= hi; j++ {
			if j < 0 || j >= srcLen {
				continue
			}
			w := sincWindow(srcPos-float64(j), cutoff, taps)
			acc += float64(samples[j]) * w
			norm += w
		}
		if norm != 0 {
			acc /= norm
		}

		if acc > 32767 {
			acc = 32767
		} else if acc < -32768 {
			acc = -32768
		}
		out[i] = int16(math.Round(acc))
	}
	return out
}

// ResampleLinear converts mono PCM16 bytes from srcRate to dstRate using
// linear interpolation. It is cheap enough for per-frame reframing on the
// VAD path, where fidelity matters less than latency; the sinc resampler is
// used for provider input.
func ResampleLinear(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// sincWindow evaluates the Hann-windowed sinc kernel at offset x from the
// kernel centre.
func sincWindow(x, cutoff float64, taps int) float64 {
	if x == 0 {
		return cutoff
	}
	if x < float64(-taps) || x > float64(taps) {
		return 0
	}
	px := math.Pi * x
	s := cutoff * math.Sin(cutoff*px) / (cutoff * px)
	hann := 0.5 + 0.5*math.Cos(px/float64(taps))
	return s * hann
}

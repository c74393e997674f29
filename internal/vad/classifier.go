package vad

import "math"

// Classifier decides whether a single audio frame contains speech. It is an
// interface so that test code can supply deterministic classifiers and so a
// model-based detector can replace the energy heuristic without touching the
// Detector's debounce logic.
//
// IsSpeech is called synchronously on the pipeline loop for every frame and
// must not block.
type Classifier interface {
	IsSpeech(samples []int16) bool
}

// EnergyClassifier classifies frames by root-mean-square energy against a
// fixed threshold. It is the default classifier: crude compared to a model,
// but dependency-free and good enough to gate dictation recorded close to
// the microphone.
type EnergyClassifier struct {
	// Threshold is the RMS level (in 16-bit PCM units) above which a frame
	// counts as speech. Full scale is 32767; values around 300–1000 separate
	// speech from room tone for typical input gain.
	Threshold float64
}

// DefaultEnergyThreshold corresponds to near-silence for 16-bit audio.
const DefaultEnergyThreshold = 500.0

// NewEnergyClassifier creates an [EnergyClassifier]. A threshold of 0 or
// less selects [DefaultEnergyThreshold].
func NewEnergyClassifier(threshold float64) *EnergyClassifier {
	if threshold <= 0 {
		threshold = DefaultEnergyThreshold
	}
	return &EnergyClassifier{Threshold: threshold}
}

// IsSpeech implements [Classifier].
func (c *EnergyClassifier) IsSpeech(samples []int16) bool {
	return RMS(samples) >= c.Threshold
}

// RMS computes the root-mean-square energy of the samples.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

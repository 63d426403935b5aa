package monitor

import "math"

// energyVAD is a pure-Go voice activity detector based on RMS energy with
// hysteresis: speech starts at or above the onset threshold and ends only
// after enough consecutive frames at or below the (lower) offset threshold.
// The two thresholds avoid chattering at the boundary.
type energyVAD struct {
	onsetRMS              float64
	offsetRMS             float64
	silenceFramesRequired int

	inSpeech           bool
	silenceFrames      int
	accumulatedSamples int
}

func newEnergyVAD(onsetRMS, offsetRMS float64, silenceDurationMs, frameDurationMs uint32) *energyVAD {
	required := int((silenceDurationMs + frameDurationMs - 1) / frameDurationMs)
	if required < 1 {
		required = 1
	}
	return &energyVAD{
		onsetRMS:              onsetRMS,
		offsetRMS:             offsetRMS,
		silenceFramesRequired: required,
	}
}

// reset clears all in-speech state so the next frame starts a fresh
// utterance detection.
func (v *energyVAD) reset() {
	v.inSpeech = false
	v.silenceFrames = 0
	v.accumulatedSamples = 0
}

// processFrame classifies exactly one frame of signed 16-bit samples and
// reports (speechStarted, speechEnded). At most one of the two is true.
func (v *energyVAD) processFrame(samples []int16) (bool, bool) {
	if len(samples) == 0 {
		return false, false
	}

	var sum float64
	for _, s := range samples {
		normalized := float64(s) / 32768.0
		sum += normalized * normalized
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	if !v.inSpeech {
		if rms >= v.onsetRMS {
			v.inSpeech = true
			v.silenceFrames = 0
			v.accumulatedSamples = len(samples)
			return true, false
		}
		return false, false
	}

	v.accumulatedSamples += len(samples)
	if rms <= v.offsetRMS {
		v.silenceFrames++
		if v.silenceFrames >= v.silenceFramesRequired {
			v.inSpeech = false
			v.silenceFrames = 0
			v.accumulatedSamples = 0
			return false, true
		}
	} else {
		// Any renewed energy cancels the countdown toward speech end.
		v.silenceFrames = 0
	}

	return false, false
}

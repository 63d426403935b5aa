package monitor

import "testing"

func loudFrame(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = 1000
	}
	return samples
}

func silentFrame(n int) []int16 {
	return make([]int16, n)
}

// TestVADSpeechOnset verifies that a frame above the onset threshold moves
// the detector from idle to speech, and that a quiet frame does not.
func TestVADSpeechOnset(t *testing.T) {
	v := newEnergyVAD(0.0008, 0.0005, 500, 20)

	if started, ended := v.processFrame(silentFrame(320)); started || ended {
		t.Fatalf("silent frame from idle: got (%v,%v), want (false,false)", started, ended)
	}
	started, ended := v.processFrame(loudFrame(320))
	if !started || ended {
		t.Fatalf("loud frame from idle: got (%v,%v), want (true,false)", started, ended)
	}
	if !v.inSpeech {
		t.Fatal("detector should be in speech after onset")
	}
	if v.accumulatedSamples != 320 {
		t.Fatalf("accumulatedSamples = %d, want 320", v.accumulatedSamples)
	}
}

// TestVADHysteresis verifies the silence countdown: with 500ms of silence at
// 20ms frames, exactly 25 consecutive quiet frames are required to end
// speech, and a single loud frame among them resets the counter to zero.
func TestVADHysteresis(t *testing.T) {
	v := newEnergyVAD(0.0008, 0.0005, 500, 20)
	if v.silenceFramesRequired != 25 {
		t.Fatalf("silenceFramesRequired = %d, want 25", v.silenceFramesRequired)
	}

	if started, _ := v.processFrame(loudFrame(320)); !started {
		t.Fatal("expected speech start")
	}

	// 24 quiet frames must not end speech.
	for i := 0; i < 24; i++ {
		if _, ended := v.processFrame(silentFrame(320)); ended {
			t.Fatalf("speech ended after %d silent frames, want 25", i+1)
		}
	}

	// A loud frame resets the countdown.
	if started, ended := v.processFrame(loudFrame(320)); started || ended {
		t.Fatalf("loud frame in speech: got (%v,%v), want (false,false)", started, ended)
	}
	if v.silenceFrames != 0 {
		t.Fatalf("silenceFrames = %d after loud frame, want 0", v.silenceFrames)
	}

	// Now a full run of 25 quiet frames ends the utterance.
	for i := 0; i < 24; i++ {
		if _, ended := v.processFrame(silentFrame(320)); ended {
			t.Fatalf("speech ended early at frame %d", i+1)
		}
	}
	if _, ended := v.processFrame(silentFrame(320)); !ended {
		t.Fatal("expected speech end on 25th consecutive silent frame")
	}
	if v.inSpeech || v.silenceFrames != 0 || v.accumulatedSamples != 0 {
		t.Fatalf("state not cleared after speech end: %+v", v)
	}
}

// TestVADSilenceFramesCeil verifies the required-frame count rounds up and
// never drops below one.
func TestVADSilenceFramesCeil(t *testing.T) {
	cases := []struct {
		silenceMs, frameMs uint32
		want               int
	}{
		{500, 20, 25},
		{500, 30, 17}, // ceil(500/30)
		{10, 20, 1},
		{0, 20, 1},
	}
	for _, tc := range cases {
		v := newEnergyVAD(0.0008, 0.0005, tc.silenceMs, tc.frameMs)
		if v.silenceFramesRequired != tc.want {
			t.Errorf("silence=%dms frame=%dms: required=%d, want %d",
				tc.silenceMs, tc.frameMs, v.silenceFramesRequired, tc.want)
		}
	}
}

// TestVADEmptyFrame verifies an empty frame is a silent no-op.
func TestVADEmptyFrame(t *testing.T) {
	v := newEnergyVAD(0.0008, 0.0005, 500, 20)
	if started, ended := v.processFrame(nil); started || ended {
		t.Fatal("empty frame should report (false,false)")
	}
}

package audio

// samplesFromPCMBytes converts little-endian s16 bytes to samples. A
// trailing odd byte is ignored.
func samplesFromPCMBytes(data []byte) []int16 {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
	}
	return samples
}

// samplesToPCMBytes converts samples to little-endian s16 bytes.
func samplesToPCMBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[2*i] = byte(uint16(s))
		data[2*i+1] = byte(uint16(s) >> 8)
	}
	return data
}

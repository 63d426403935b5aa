package audio

import (
	"net"
	"testing"
	"time"
)

// TestPCMByteConversionRoundTrip verifies the little-endian s16 helpers.
func TestPCMByteConversionRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345, -12345}
	data := samplesToPCMBytes(samples)
	if len(data) != len(samples)*2 {
		t.Fatalf("byte length = %d, want %d", len(data), len(samples)*2)
	}
	back := samplesFromPCMBytes(data)
	if len(back) != len(samples) {
		t.Fatalf("sample length = %d, want %d", len(back), len(samples))
	}
	for i := range samples {
		if back[i] != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, back[i], samples[i])
		}
	}
}

// TestPCMBytesIgnoreTrailingOddByte verifies partial trailing samples are
// dropped rather than misaligned.
func TestPCMBytesIgnoreTrailingOddByte(t *testing.T) {
	data := append(samplesToPCMBytes([]int16{100, 200}), 0x7f)
	got := samplesFromPCMBytes(data)
	if len(got) != 2 || got[0] != 100 || got[1] != 200 {
		t.Fatalf("got %v, want [100 200]", got)
	}
}

// TestUDPIngestPCM16 verifies a raw PCM datagram reaches the feed intact.
func TestUDPIngestPCM16(t *testing.T) {
	fed := make(chan []int16, 4)
	in, err := NewUDPIngest(IngestConfig{
		BindAddress: "127.0.0.1",
		Port:        0,
		Codec:       CodecPCM16,
		SampleRate:  16000,
	}, func(samples []int16) { fed <- samples }, nil)
	if err != nil {
		t.Fatalf("NewUDPIngest: %v", err)
	}
	if err := in.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer in.Stop()

	conn, err := net.Dial("udp", in.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	want := []int16{10, -20, 30, -40}
	if _, err := conn.Write(samplesToPCMBytes(want)); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-fed:
		if len(got) != len(want) {
			t.Fatalf("fed %d samples, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("sample %d = %d, want %d", i, got[i], want[i])
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("datagram never reached the feed")
	}
}

// TestUDPIngestRejectsUnknownCodec verifies codec validation up front.
func TestUDPIngestRejectsUnknownCodec(t *testing.T) {
	_, err := NewUDPIngest(IngestConfig{Codec: "mp3", SampleRate: 16000}, func([]int16) {}, nil)
	if err == nil {
		t.Fatal("unknown codec accepted")
	}
	_, err = NewUDPIngest(IngestConfig{Codec: CodecPCM16, SampleRate: 16000}, nil, nil)
	if err == nil {
		t.Fatal("nil feed accepted")
	}
}

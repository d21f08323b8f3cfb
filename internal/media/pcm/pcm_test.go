package pcm_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"prdforge/internal/media/pcm"
)

func TestFloat32ToInt16Clamps(t *testing.T) {
	got := pcm.Float32ToInt16([]float32{-2, -1, 0, 0.5, 1, 3})
	want := []int16{-32768, -32768, 0, 16383, 32767, 32767}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestFromFloat32Frame(t *testing.T) {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint32(raw[0:], math.Float32bits(1))
	binary.LittleEndian.PutUint32(raw[4:], math.Float32bits(-1))

	out, err := pcm.FromFloat32Frame(raw)
	if err != nil {
		t.Fatalf("FromFloat32Frame: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(out))
	}
	if int16(binary.LittleEndian.Uint16(out[0:])) != 32767 || int16(binary.LittleEndian.Uint16(out[2:])) != -32768 {
		t.Fatalf("unexpected samples %v", out)
	}

	if _, err := pcm.FromFloat32Frame([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated frame")
	}
}

func TestFramesSplitsWithShortTail(t *testing.T) {
	data := make([]byte, 6400*2+100)
	frames := pcm.Frames(data, 6400)
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if len(frames[0]) != 6400 || len(frames[2]) != 100 {
		t.Fatalf("unexpected frame sizes %d/%d", len(frames[0]), len(frames[2]))
	}
	if pcm.Frames(nil, 6400) != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestWAVRoundTripKeepsSamples(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768}
	data := pcm.Int16Bytes(samples)

	riff, err := pcm.EncodeWAV(data, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if !bytes.HasPrefix(riff, []byte("RIFF")) {
		t.Fatalf("expected RIFF header, got %q", riff[:4])
	}

	decoded, rate, err := pcm.Normalize(riff)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rate != 16000 {
		t.Fatalf("expected 16000 Hz, got %d", rate)
	}
	if !bytes.Equal(decoded, data) {
		t.Fatalf("pcm mismatch: got %v want %v", decoded, data)
	}
}

func TestNormalizePassesRawPCM(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	out, rate, err := pcm.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rate != 0 || !bytes.Equal(out, raw) {
		t.Fatalf("expected passthrough, got rate=%d out=%v", rate, out)
	}
}

// Package pcm converts browser audio into the 16-bit little-endian PCM that
// speech recognizers accept, and moves it in and out of WAV containers.
package pcm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// Float32ToInt16 clamps samples to [-1, 1] and scales them to int16.
// Negative values scale by 0x8000 and positive values by 0x7FFF.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if math.IsNaN(float64(s)) {
			continue
		}
		v := math.Max(-1, math.Min(1, float64(s)))
		if v < 0 {
			out[i] = int16(v * 0x8000)
		} else {
			out[i] = int16(v * 0x7FFF)
		}
	}
	return out
}

// DecodeFloat32LE reads little-endian IEEE-754 float32 samples.
func DecodeFloat32LE(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("float32 frame length %d is not a multiple of 4", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

// Int16Bytes encodes samples as little-endian bytes.
func Int16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// FromFloat32Frame converts one browser Float32 frame to Int16 PCM bytes.
func FromFloat32Frame(data []byte) ([]byte, error) {
	samples, err := DecodeFloat32LE(data)
	if err != nil {
		return nil, err
	}
	return Int16Bytes(Float32ToInt16(samples)), nil
}

// Frames splits data into chunks of size bytes. The last chunk may be short.
// The chunks alias data.
func Frames(data []byte, size int) [][]byte {
	if size <= 0 || len(data) == 0 {
		return nil
	}
	frames := make([][]byte, 0, (len(data)+size-1)/size)
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		frames = append(frames, data[start:end])
	}
	return frames
}

// EncodeWAV wraps mono 16-bit PCM in a RIFF/WAV container.
func EncodeWAV(data []byte, sampleRate int) ([]byte, error) {
	if len(data)%2 != 0 {
		return nil, errors.New("pcm length must be even")
	}
	ints := make([]int, len(data)/2)
	for i := range ints {
		ints[i] = int(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}

	wavFile := &writerseeker.WriterSeeker{}
	encoder := wav.NewEncoder(wavFile, sampleRate, 16, 1, 1)
	if err := encoder.Write(buffer); err != nil {
		return nil, fmt.Errorf("encoder write buffer: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encoder close: %w", err)
	}
	riff, err := io.ReadAll(wavFile.Reader())
	if err != nil {
		return nil, fmt.Errorf("reading wav into memory: %w", err)
	}
	return riff, nil
}

// DecodeWAV extracts 16-bit PCM from a WAV container. Multi-channel input
// keeps only the first channel.
func DecodeWAV(r io.ReadSeeker) ([]byte, int, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, 0, errors.New("not a valid wav file")
	}
	if decoder.BitDepth != 16 {
		return nil, 0, fmt.Errorf("unsupported wav bit depth %d", decoder.BitDepth)
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	channels := int(decoder.NumChans)
	if channels < 1 {
		channels = 1
	}
	samples := make([]int16, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, int16(buf.Data[i]))
	}
	return Int16Bytes(samples), int(decoder.SampleRate), nil
}

// Normalize returns raw PCM for data that is either a WAV file or already
// raw PCM. The sample rate is zero when data carried no header.
func Normalize(data []byte) ([]byte, int, error) {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return DecodeWAV(bytes.NewReader(data))
	}
	return data, 0, nil
}

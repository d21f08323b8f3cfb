// Package ffprobe wraps the ffprobe binary for the audio probes the segmenter
// needs.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: audio stream properties (codec, sample rate, channels)
//   - Format: container-level metadata (duration, size, bitrate)
//
// Primary entry points:
//   - Duration: runs the single-value duration probe used before splitting
//   - Inspect: executes a full probe and returns the parsed Result
package ffprobe

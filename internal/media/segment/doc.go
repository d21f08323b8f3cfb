// Package segment splits long recordings into fixed-length windows.
//
// Plan computes the window boundaries, Segmenter cuts each window with an
// ffmpeg stream copy, and Scratch owns the per-run temporary directory that
// uploads and segments live in until cleanup.
package segment

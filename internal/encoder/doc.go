// Package encoder wraps a continuously running ffmpeg process that
// turns raw RGB frames into a live fragmented MP4 stream.
//
// Frames go in on stdin at a fixed cadence; container output comes out
// on stdout and is relayed to a stream buffer. The initialization
// segment (ftyp+moov) is detected by locating the first moof box so
// that late-joining viewers can be primed with a playable header.
//
// Encoding requires ffmpeg to be installed and available in the system
// PATH.
package encoder

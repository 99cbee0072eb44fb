// Package render rasterizes terminal grid snapshots into fixed-size
// RGB video frames.
//
// Glyphs come from the Inconsolata bitmap faces in golang.org/x/image;
// the drawn grid is scaled to the configured font size and letterboxed
// into the output resolution with the background color filling the
// remainder.
package render

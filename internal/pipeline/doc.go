// Package pipeline runs the capture, render, encode loop at a fixed
// frame cadence and manages the lifecycle of the encoder process and
// the stream server around it.
package pipeline

// Package memory configures the Go runtime memory limit from container
// environment variables, leaving headroom for the encoder subprocess.
package memory

// Package metrics defines the Prometheus metrics exported by
// tmux-cast.
//
// Metrics cover the capture/render/encode tick loop, the encoder
// process byte flow, the HTTP stream server, and Chromecast control
// commands. All metrics are registered with the default registry via
// promauto and served on the stream server's /metrics endpoint.
package metrics

// Package middleware provides HTTP middleware for the stream server,
// covering request logging in W3C Extended Log Format and Prometheus
// request metrics.
package middleware

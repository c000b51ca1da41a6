// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry bootstrap, health probes, and graceful shutdown for the
// HERON portal.
package observability

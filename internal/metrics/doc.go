// Package metrics records pipeline and web UI measurements through the
// OpenTelemetry metrics API.
//
// The web UI installs InitProvider and serves the Prometheus exporter at
// /metrics. The CLI uses Noop so one-shot runs carry no exporter.
package metrics

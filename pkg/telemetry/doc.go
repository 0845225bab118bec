// Package telemetry provides the observability surface for rig: structured
// zerolog logging, Prometheus metrics, and OpenTelemetry tracing for runs,
// steps, and backend invocations.
//
// Logging is always on; metrics and tracing are opt-in via Config. A colored
// console writer is used for interactive sessions and JSON elsewhere, so
// every event ends up both in the live log stream and in the final run
// report.
package telemetry

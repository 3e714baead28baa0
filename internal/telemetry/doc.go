// Package telemetry wraps OpenTelemetry SDK initialization, providing
// centralized TracerProvider and MeterProvider configuration for the
// engine. When telemetry is disabled it installs nothing and the global
// providers remain noop, so no external service is contacted.
package telemetry

// Package tracing wraps OpenTelemetry so kernel operations can be traced
// without the rest of the code importing the SDK. Spans are no-ops until
// Init or InitWithExporter installs a provider.
package tracing

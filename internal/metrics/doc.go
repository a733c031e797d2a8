// Package metrics defines the Prometheus instrumentation for the client:
// recording lifecycle counters, encoding fallbacks, submission outcomes
// and latencies, and playback activity.
package metrics

// Package metrics exposes contentsync counters and histograms.
//
// Components receive a Recorder. NoopRecorder is the default so nothing has
// to nil-check; the serve command swaps in a PrometheusRecorder registered on
// the registry served at /metrics.
package metrics

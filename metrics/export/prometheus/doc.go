// Package prometheus renders session metrics in the Prometheus text format.
//
// [NewPrometheusExporter] wraps an [authsession.Manager] and exposes an
// [http.Handler]. Counters are named authsession_*_total; the one histogram is
// authsession_identity_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in a global Prometheus registry. Callers mount the Handler.
//   - Mutate manager state.
package prometheus

// Package metrics provides lock-free counters and an identity-call latency
// histogram for the session manager.
//
// # Design
//
// Counters are stored in cache-line-padded uint64 slots and updated atomically.
// The histogram uses [BucketCount] fixed buckets (≤50ms … +Inf). Both are
// allocation-free on the write path.
//
// # Architecture boundaries
//
// This package owns metric storage and snapshots. Export (Prometheus, OTel)
// lives in metrics/export/ and reads Snapshot values through the root package.
//
// # What this package must NOT do
//
//   - Perform I/O or network calls.
//   - Import authsession or any sibling package.
//   - Expose global metric registries.
package metrics

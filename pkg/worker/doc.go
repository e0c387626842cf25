// Package worker provides a generic bounded worker pool.
//
// The pool runs a fixed number of goroutines over a buffered queue of
// work items of any type T. It supports two modes:
//
//   - Streaming: Start the pool, Submit items as they arrive, Stop to
//     drain. Processing failures are counted, not returned to the
//     submitter.
//
//   - Batch: RunBatch feeds a fixed slice through fresh workers and
//     fails fast, cancelling the remaining items on the first error.
//     The lifecycle orchestrator uses this mode to start a dependency
//     layer concurrently.
//
// Pools optionally publish queue depth and throughput metrics through
// a metric.Registry.
package worker

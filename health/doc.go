// Package health aggregates component health into a single system view.
//
// Components expose a probe function; the Aggregator runs probes on
// demand or on a fixed interval, caches each result for a TTL so noisy
// callers do not hammer slow probes, and folds individual reports into
// a system status using worst-wins semantics:
//
//	any unhealthy        -> unhealthy
//	else any degraded    -> degraded
//	else any healthy     -> healthy
//	nothing but unknown  -> unknown
//
// Probes run concurrently with a per-probe timeout. A probe that times
// out or panics reports unhealthy rather than taking the aggregator
// down with it.
package health

// Package config implements the runtime's layered configuration store.
//
// Configuration is assembled from pluggable sources (compiled-in defaults,
// YAML/JSON files, environment variables, a NATS JetStream KV bucket,
// explicit overrides) into immutable, versioned snapshots. Sources are
// merged in ascending precedence; identical dotted paths from a
// higher-precedence source override lower ones. Environment variables
// always outrank file sources, and explicit overrides outrank everything.
//
// A Snapshot is never mutated after publication. Reload re-reads every
// source, re-merges, validates the result against every registered
// configuration shape, and only then swaps the published snapshot, so
// concurrent readers either see the complete old snapshot or the complete
// new one, never a mix.
//
// Dotted paths address values in the merged tree:
//
//	snap.String("services.bidding.endpoint")
//	snap.Duration("services.bidding.timeout")
//	snap.Bind("services.bidding", &cfg)
//
// Environment variables map to dotted paths through a fixed convention:
// a registered prefix, then path segments upper-cased and joined by
// underscores. ADSP_SERVICES_BIDDING_ENDPOINT populates
// services.bidding.endpoint.
//
// Sources that can detect their own changes implement Watchable; the
// Store debounces their signals and triggers a full reload. File sources
// watch through fsnotify, KV sources through a JetStream key watcher.
package config

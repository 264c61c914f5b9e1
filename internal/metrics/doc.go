// Package metrics exposes Prometheus instrumentation for the collector:
// cycle and point counters, per-account error counters, and backfill
// progress. The /metrics endpoint is optional and configured separately
// from the data path; disabling it changes nothing about collection.
package metrics

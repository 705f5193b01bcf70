/*
Package metrics exposes the broker's Prometheus instrumentation:
connection and pool gauges, per-channel subscriber counts, dispatch
outcome counters, and dispatch latency. Call Handler to mount the
scrape endpoint, and NewTimer/ObserveDuration(Vec) around the dispatch
pipeline's hot path.
*/
package metrics

// Package stats keeps aggregated scheduler counters for one boot of the
// kernel core. Counters are updated with deltas, read as Stats snapshots and
// can be observed through an OnChange callback.
package stats

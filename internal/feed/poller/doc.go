// Package poller drives the transaction feed refresh cycle.
//
// A Poller:
//   - runs one fetch-normalize-replace cycle immediately on Start
//   - repeats the cycle every Interval (5s by default)
//   - never runs two cycles at once; ticks that land on a busy cycle are skipped
//   - keeps the last good snapshot when a cycle fails
//   - discards the result of any cycle that finishes after Stop
package poller

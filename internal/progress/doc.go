// Package progress persists the download run's durable state: which
// session dates are done, which downloads failed, and counters.
//
// The record is stored as one JSON object in the download bucket, next
// to the files themselves, and is meant to be read by humans as much
// as by the next run.
//
// # Invariants
//
//   - The completed set only grows; a date marked complete is never
//     retried.
//   - The failure log is append-only and advisory; it never drives
//     retry decisions.
//   - Load never fails: missing or corrupt state degrades to a fresh
//     empty record.
//   - Flush is best effort: a write failure is logged and the run
//     continues in memory.
package progress

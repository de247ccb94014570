// Package scheduler coordinates the acquisition pipeline: which dates
// get processed, how many at a time, and when progress is persisted.
//
// # Model
//
// Years are processed in ascending order, strictly one at a time. A
// year's date list is split into fixed-size batches, also strictly
// sequential. Within a batch, a bounded worker pool runs one
// (resolve, download) unit per date; completion order within a batch
// is whatever order units finish in.
//
// Workers never touch completion state. They report outcomes over a
// channel and a single collector loop marks dates complete, applies
// the pacing delay, and tallies successes.
//
// Progress is flushed after every batch, so a crash loses at most one
// batch of completions — and since downloads are idempotent (existing
// files are skipped), kill-and-restart is always a safe recovery path.
package scheduler

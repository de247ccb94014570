// Package downloader fetches resolved document URLs into the download
// bucket.
//
// Each document lands under a deterministic key derived from its
// session date: {year}/{NN_Month}/{filename}. A key that already
// exists is skipped without a network call, which is what makes a
// killed run safe to restart.
//
// Writes go through the bucket's writer, which only publishes the
// object when the full body has been written and Close succeeds, so a
// resumed run can trust every existing key to be a completed download.
//
// Transient fetch failures are retried with exponential backoff (the
// delay doubles per attempt). Exhausting all attempts is not an error
// to the caller: it becomes a failure record in the progress store
// plus a diagnostic log entry, and the batch moves on.
package downloader

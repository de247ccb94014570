// Package http provides the HTTP client shared by page fetches and
// file downloads.
//
// This package handles:
//   - Connection pooling sized above the worker count
//   - Per-request timeouts
//   - A fixed User-Agent header on every request
//   - Mapping of HTTP status codes to sentinel errors
//
// It deliberately does not retry: page fetches and file downloads want
// different retry policies, so retrying is owned by callers.
//
// # Usage
//
//	client := http.NewClient(Options{
//	    MaxIdleConnsPerHost: 60,
//	    Timeout:             15 * time.Second,
//	    UserAgent:           "...",
//	})
//
//	// Fetch a page into memory
//	page, err := client.Get(ctx, url)
//
//	// Stream a file
//	body, err := client.Fetch(ctx, url)
//	defer body.Close()
package http

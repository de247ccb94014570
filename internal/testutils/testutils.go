// Package testutils provides shared test infrastructure: an HTTP
// server that plays the role of the remote archive, serving canned
// pages and files keyed by request URI.
package testutils

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ArchiveServer is an httptest server preloaded with fixture pages.
// It records how often each URI was requested so tests can assert
// that idempotent paths issue no extra fetches.
type ArchiveServer struct {
	*httptest.Server

	mu    sync.Mutex
	pages map[string][]byte
	hits  map[string]int
}

// StartArchiveServer starts a fixture server. Keys of pages are
// request URIs (path plus query, e.g. "/pesquisa_diario_basica.asp?ano=2023").
// Unknown URIs return 404.
func StartArchiveServer(t *testing.T, pages map[string]string) *ArchiveServer {
	t.Helper()

	s := &ArchiveServer{
		pages: make(map[string][]byte, len(pages)),
		hits:  make(map[string]int),
	}
	for uri, body := range pages {
		s.pages[uri] = []byte(body)
	}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uri := r.URL.RequestURI()

		s.mu.Lock()
		s.hits[uri]++
		body, ok := s.pages[uri]
		s.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(s.Close)

	return s
}

// SetPage adds or replaces a fixture page while the server is running.
func (s *ArchiveServer) SetPage(uri, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[uri] = []byte(body)
}

// Hits returns how many times the given request URI was served,
// including 404s.
func (s *ArchiveServer) Hits(uri string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[uri]
}

// Package testutil holds helpers shared by package tests.
package testutil

import (
	"errors"
	"net"
	"net/http"
	"testing"
)

// Server is an HTTP server bound to the IPv4 loopback interface.
type Server struct {
	URL       string
	server    *http.Server
	transport *http.Transport
	client    *http.Client
}

// NewServer starts handler on 127.0.0.1 and closes it when the test ends.
// Streaming handlers are cut off on close rather than drained.
func NewServer(t *testing.T, handler http.Handler) *Server {
	t.Helper()
	if handler == nil {
		handler = http.NewServeMux()
	}
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: tcp4 loopback unavailable (%v)", err)
	}
	transport := &http.Transport{}
	s := &Server{
		URL:       "http://" + l.Addr().String(),
		server:    &http.Server{Handler: handler},
		transport: transport,
		client:    &http.Client{Transport: transport},
	}
	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("test server: %v", err)
		}
	}()
	t.Cleanup(s.Close)
	return s
}

// Client returns an HTTP client configured for the server.
func (s *Server) Client() *http.Client {
	return s.client
}

// Close stops the server and frees idle connections. Safe to call twice.
func (s *Server) Close() {
	_ = s.server.Close()
	s.transport.CloseIdleConnections()
}

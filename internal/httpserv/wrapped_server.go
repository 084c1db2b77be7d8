// Package httpserv contains HTTP server utilities.
package httpserv

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"
)

type nilWriter struct{}

func (nilWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

// exit when there's a panic inside the HTTP handler.
// https://github.com/golang/go/issues/16542
type exitOnPanicHandler struct {
	http.Handler
}

func (h exitOnPanicHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		err := recover()
		if err != nil {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "panic: %v\n\n%s", err, buf[:n])
			os.Exit(1)
		}
	}()
	h.Handler.ServeHTTP(w, r)
}

// WrappedServer is a wrapper around http.Server that provides:
// - net.Listener allocation and closure
// - exit on panic
type WrappedServer struct {
	Network     string
	Address     string
	ReadTimeout time.Duration
	Handler     http.Handler

	ln    net.Listener
	inner *http.Server
}

// Initialize initializes a WrappedServer.
func (s *WrappedServer) Initialize() error {
	var err error
	s.ln, err = net.Listen(s.Network, s.Address)
	if err != nil {
		return err
	}

	s.inner = &http.Server{
		Handler:           exitOnPanicHandler{s.Handler},
		ReadHeaderTimeout: s.ReadTimeout,
		ErrorLog:          log.New(&nilWriter{}, "", 0),
	}

	go s.inner.Serve(s.ln) //nolint:errcheck

	return nil
}

// Close closes all resources and waits for all routines to return.
func (s *WrappedServer) Close() {
	s.inner.Shutdown(context.Background()) //nolint:errcheck
	s.ln.Close()
}

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// serve runs srv on ln until ctx is cancelled. Shutdown waits for in-flight
// requests for up to grace, and drain runs only after that, so nothing a
// handler started can be cut short by it.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration, drain func()) error {
	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		done <- srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	err := <-done
	drain()
	return err
}

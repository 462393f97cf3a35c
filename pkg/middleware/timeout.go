package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Timeout cancels the request context after timeout and answers 503 with a
// JSON error if the handler has not written anything by then. Writes the
// handler attempts afterwards fail with http.ErrHandlerTimeout.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			done := make(chan struct{})
			tw := &timeoutWriter{w: w, header: make(http.Header)}
			go func() {
				next.ServeHTTP(tw, r.WithContext(ctx))
				close(done)
			}()
			select {
			case <-done:
				tw.flush()
			case <-ctx.Done():
				tw.mu.Lock()
				defer tw.mu.Unlock()
				tw.timedOut = true
				if tw.wroteHeader {
					tw.flushLocked()
					return
				}
				slog.Warn("request timed out", "method", r.Method, "path", r.URL.Path, "timeout", timeout)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"error":"request timeout"}` + "\n"))
			}
		})
	}
}

// timeoutWriter buffers the handler's response so the timeout branch and the
// handler goroutine never write to the real ResponseWriter concurrently.
type timeoutWriter struct {
	w           http.ResponseWriter
	header      http.Header
	mu          sync.Mutex
	buf         []byte
	status      int
	wroteHeader bool
	timedOut    bool
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.header
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.wroteHeader {
		return
	}
	tw.status = code
	tw.wroteHeader = true
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if !tw.wroteHeader {
		tw.status = http.StatusOK
		tw.wroteHeader = true
	}
	tw.buf = append(tw.buf, b...)
	return len(b), nil
}

func (tw *timeoutWriter) flush() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.flushLocked()
}

func (tw *timeoutWriter) flushLocked() {
	dst := tw.w.Header()
	for k, v := range tw.header {
		dst[k] = v
	}
	if !tw.wroteHeader {
		tw.status = http.StatusOK
	}
	tw.w.WriteHeader(tw.status)
	tw.w.Write(tw.buf)
}

package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/banux/nxt-shelf/internal/logger"
)

type ctxKey int

const ctxKeyRequestID ctxKey = iota

var ridRe = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,64}$`)

// requestID propagates a client-supplied X-Request-ID or generates one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if !ridRe.MatchString(rid) {
			rid = genRID()
		}
		r = r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, rid))
		r.Header.Set("X-Request-ID", rid)
		w.Header().Set("X-Request-ID", rid)

		next.ServeHTTP(w, r)
	})
}

// getRequestID extracts the value previously set by requestID.
func getRequestID(r *http.Request) string {
	v, _ := r.Context().Value(ctxKeyRequestID).(string)
	if v != "" {
		return v
	}
	return r.Header.Get("X-Request-ID")
}

func genRID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	// timestamp prefix helps with log sorting
	ts := time.Now().UTC().Format("20060102T150405Z")
	return ts + "-" + hex.EncodeToString(b[:])
}

// recovery turns a handler panic into a 500 and logs the stack.
func recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Errorf("panic: request_id=%s %s %s: %v\n%s",
						getRequestID(r), r.Method, r.URL.Path, err, debug.Stack())
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger logs every request at debug level, and server errors at warn.
func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			fields := []interface{}{
				r.Method, r.URL.Path, rec.status, time.Since(start), getRequestID(r),
			}
			if rec.status >= 500 {
				log.Warnf("%s %s -> %d (%s) request_id=%s", fields...)
				return
			}
			log.Debugf("%s %s -> %d (%s) request_id=%s", fields...)
		})
	}
}

// bodySizeLimit caps the body of requests that carry one.
func bodySizeLimit(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	logx "soulverse/pkg/logx"
)

// bearerToken returns the token of an "Authorization: Bearer x" header, or "".
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// AuthMiddleware rejects requests whose bearer token does not match token.
// An empty token rejects everything.
func AuthMiddleware(token string, log logx.Logger) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(bearerToken(r))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				log.Warn("auth failure",
					logx.String("path", r.URL.Path),
					logx.String("method", r.Method),
					logx.String("remote_ip", r.RemoteAddr),
				)
				WriteProblem(w, r, http.StatusUnauthorized, "missing or invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs one line per request.
func LoggingMiddleware(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Duration("took", time.Since(start)),
				logx.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// RecoveryMiddleware turns a handler panic into a 500 problem. The panic value
// is logged, never returned.
func RecoveryMiddleware(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("handler panic",
						logx.String("path", r.URL.Path),
						logx.String("panic", fmt.Sprint(rec)),
						logx.Stack(logx.StackTrace(3, 24)),
					)
					WriteProblem(w, r, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

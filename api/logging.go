package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs one structured entry per request. It must run after
// middleware.RequestID so the request id is available.
func RequestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				entry := logger.WithFields(logrus.Fields{
					"request_id":  middleware.GetReqID(r.Context()),
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      status,
					"bytes":       ww.BytesWritten(),
					"duration_ms": time.Since(start).Milliseconds(),
					"remote":      r.RemoteAddr,
				})
				switch {
				case status >= 500:
					entry.Error("request failed")
				case status >= 400:
					entry.Warn("request rejected")
				default:
					entry.Info("request")
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

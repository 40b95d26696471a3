package auth

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
	"github.com/harunnryd/warden/internal/logger"
)

const HeaderAPIKey = "X-API-Key"

// RequireSignature rejects any request that does not carry a valid signature
// from one of the allowed callers. The body is read once, bounded by
// maxBody, and restored for the next handler.
func RequireSignature(v *Verifier, allowed []string, maxBody int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeFailure(w, http.StatusRequestEntityTooLarge, "body_too_large")
					return
				}
				writeFailure(w, http.StatusBadRequest, "unreadable_body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			serviceID, err := v.Verify(r.Context(), HeadersFrom(r.Header), r.Method, r.URL.RequestURI(), body, allowed)
			if err != nil {
				slog.Warn("Rejected request", "method", r.Method, "path", r.URL.Path,
					"claimed_service", r.Header.Get(HeaderServiceID), "reason", wardenErrors.Code(err))
				writeFailure(w, wardenErrors.HTTPStatus(err), wardenErrors.Code(err))
				return
			}

			ctx := WithServiceID(r.Context(), serviceID)
			ctx = logger.WithServiceID(ctx, serviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireOperatorKey guards operator-only routes with a static API key.
func RequireOperatorKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderAPIKey)
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeFailure(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			next.ServeHTTP(w, r.WithContext(logger.WithServiceID(r.Context(), "operator")))
		})
	}
}

func writeFailure(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code})
}

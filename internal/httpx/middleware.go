package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/storefront-orders/internal/auth"
)

// RequestLogger writes one access log line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			ev := log.Info()
			if ww.Status() >= http.StatusInternalServerError {
				ev = log.Error()
			}
			ev.Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http: request")
		}()
		next.ServeHTTP(ww, r)
	})
}

type TokenVerifier interface {
	Verify(raw string) (auth.Principal, error)
}

// Authenticate requires a valid "Authorization: Bearer <token>" header and
// stores the caller in the request context.
func Authenticate(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				respondWithError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			p, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				log.Warn().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("http: rejected token")
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAdmin admits only admin principals.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		if !p.IsAdmin {
			respondWithError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireBuyer rejects admins: admin accounts cannot purchase.
func RequireBuyer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		if p.IsAdmin {
			respondWithError(w, http.StatusForbidden, "admins cannot place orders")
			return
		}
		next.ServeHTTP(w, r)
	})
}

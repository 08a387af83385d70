package server

import (
	"context"
	"net/http"

	"golang.org/x/mod/semver"

	"github.com/untoldecay/LoreVault/internal/version"
)

type contextKey string

const tenantKey contextKey = "tenant"

// tenantFrom returns the tenant the auth middleware stored on the
// request context, or "" outside the authed chain.
func tenantFrom(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantKey).(string)
	return tenant
}

// withCommon applies the concerns shared by every route: the request
// body cap and the client version skew check.
func (s *Server) withCommon(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		if clientVersion := r.Header.Get("X-LV-Client-Version"); clientVersion != "" {
			// Warn-only. Old clients keep working until a breaking
			// change forces a major bump.
			if semver.Major("v"+clientVersion) != semver.Major("v"+version.Version) {
				s.log.Warn("client version %s differs from server %s (%s %s)",
					clientVersion, version.Version, r.Method, r.URL.Path)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// authed verifies the bearer token and stores the tenant on the
// request context.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.auth.VerifyHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey, tenant)))
	})
}

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/untoldecay/LoreVault/internal/auth"
	"github.com/untoldecay/LoreVault/internal/types"
)

// decodeJSON reads a JSON request body into v. An empty body leaves v
// untouched.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return types.NewError(types.KindPayloadTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
	}
	return types.WrapError(types.KindValidation, err, "invalid JSON body")
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAuthState hands a one-time state to the identity-provider
// flow. The state must come back on the matching POST /api/tokens.
func (s *Server) handleAuthState(w http.ResponseWriter, r *http.Request) {
	state, err := s.states.Issue()
	if err != nil {
		writeError(w, types.WrapError(types.KindInternal, err, "failed to issue state"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":      state,
		"expires_in": int(stateTTL / time.Second),
	})
}

// handleIssueToken mints a bearer token. Accepted callers:
//   - a request carrying a valid token (refresh for the same tenant),
//   - a request redeeming a one-time state from /api/auth/state,
//   - anyone, when the server is not in production.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tenant     string `json:"tenant"`
		TTLSeconds int    `json:"ttl_seconds"`
		State      string `json:"state"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	authorized := false
	if header := r.Header.Get("Authorization"); header != "" {
		caller, err := s.auth.VerifyHeader(header)
		if err != nil {
			writeError(w, err)
			return
		}
		if req.Tenant == "" {
			req.Tenant = caller
		}
		if req.Tenant != caller {
			writeError(w, types.NewError(types.KindForbidden, "cannot issue tokens for another tenant"))
			return
		}
		authorized = true
	}
	if !authorized && req.State != "" {
		if !s.states.Consume(req.State) {
			writeError(w, types.NewError(types.KindUnauthorized, "unknown or expired state"))
			return
		}
		authorized = true
	}
	if !authorized && s.cfg.Production {
		writeError(w, types.NewError(types.KindUnauthorized, "token issuance requires a valid token or state"))
		return
	}
	if req.Tenant == "" {
		req.Tenant = auth.DevTenant
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = s.cfg.TokenTTL
	}
	token, expiresAt, err := s.auth.Issue(req.Tenant, ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"tenant":     req.Tenant,
		"expires_at": expiresAt,
	})
}

// handleDemoToken issues a short-lived token for the shared demo
// tenant. Public on purpose.
func (s *Server) handleDemoToken(w http.ResponseWriter, r *http.Request) {
	ttl := s.cfg.DemoTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	token, expiresAt, err := s.auth.Issue(auth.DemoTenant, ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"tenant":     auth.DemoTenant,
		"expires_at": expiresAt,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"tenant": tenantFrom(r.Context())})
}

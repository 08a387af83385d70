package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/untoldecay/LoreVault/internal/types"
)

// errorEnvelope is the JSON body of every failed request.
type errorEnvelope struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// statusFor maps the error taxonomy to HTTP statuses. This is the
// only place kinds become status codes.
func statusFor(kind types.ErrorKind) int {
	switch kind {
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindUnauthorized:
		return http.StatusUnauthorized
	case types.KindForbidden:
		return http.StatusForbidden
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindVersionConflict, types.KindConflict:
		return http.StatusConflict
	case types.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case types.KindBadGateway:
		return http.StatusBadGateway
	case types.KindGatewayTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := types.KindOf(err)
	envelope := errorEnvelope{Error: string(kind)}

	var appErr *types.Error
	if errors.As(err, &appErr) {
		envelope.Message = appErr.Message
		envelope.Detail = appErr.Detail
	} else if kind == types.KindInternal {
		// Unclassified errors stay opaque to callers.
		envelope.Message = "internal error"
	} else {
		envelope.Message = err.Error()
	}
	writeJSON(w, statusFor(kind), envelope)
}

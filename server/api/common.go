package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/throne/server/api/middleware"
	"github.com/compose-network/throne/x/auth"
)

// WriteError writes a standardized error response with request tracking.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := middleware.RequestIDFromContext(r.Context())

	body := map[string]any{
		"code":       code,
		"message":    message,
		"request_id": requestID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if details != nil {
		body["details"] = details
	}

	WriteJSON(w, status, map[string]any{"error": body})
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// DecodeJSON decodes a bounded request body into dst, rejecting unknown
// fields and trailing data. On failure it writes a 400/413 and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) bool {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, r, http.StatusRequestEntityTooLarge, "body_too_large",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), nil)
			return false
		}
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "failed to decode request", err.Error())
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "unexpected data after JSON body", nil)
		return false
	}
	return true
}

// Authorize checks that the request was signed by want. With required set to
// false unsigned requests pass, but a signature from another key never does.
// On failure it writes a 401/403 and returns false.
func Authorize(w http.ResponseWriter, r *http.Request, want common.Address, required bool) bool {
	signer, ok := middleware.SignerFromContext(r.Context())
	if !ok {
		if !required {
			return true
		}
		WriteError(w, r, http.StatusUnauthorized, "unauthenticated",
			"missing or invalid X-Signature header", nil)
		return false
	}
	if signer != want {
		WriteError(w, r, http.StatusForbidden, "forbidden",
			fmt.Sprintf("request signed by %s, expected %s", signer.Hex(), want.Hex()), nil)
		return false
	}
	return true
}

// Fresh rejects a body whose issued_at stamp is outside maxAge of now, so a
// captured signed request stops working once the window closes. On failure
// it writes a 401 and returns false.
func Fresh(w http.ResponseWriter, r *http.Request, issuedAt int64, now time.Time, maxAge time.Duration) bool {
	if err := auth.CheckIssuedAt(issuedAt, now, maxAge); err != nil {
		WriteError(w, r, http.StatusUnauthorized, "stale_request", err.Error(), nil)
		return false
	}
	return true
}

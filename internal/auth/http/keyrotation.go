package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/service"
	"github.com/aussiebroadwan/tokensmith/pkg/authsdk"
	"github.com/aussiebroadwan/tokensmith/pkg/httpx"
	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
)

// KeyRotationHandler handles signing key management endpoints.
type KeyRotationHandler struct {
	KeyRotationService *service.KeyRotationService
}

// HandleRotate handles POST /v1/keys/rotate
//
//	@Summary		Rotate Signing Key
//	@Description	Generates a signing key and makes it active. The previous key keeps verifying tokens until its overlap window ends.
//	@Tags			Keys
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string						true	"Bearer token of a trusted client with the write scope"
//	@Param			request			body		authsdk.RotateKeyRequest	false	"Optional algorithm (RS256, ES256, EdDSA)"
//	@Success		200				{object}	authsdk.RotateKeyResponse	"new_key, retired_key"
//	@Failure		400				{object}	authsdk.ErrorResponse		"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse		"error, error_description"
//	@Failure		403				{object}	authsdk.ErrorResponse		"error, error_description"
//	@Failure		409				{object}	authsdk.ErrorResponse		"error, error_description"
//	@Failure		500				{object}	authsdk.ErrorResponse		"error, error_description"
//	@Router			/v1/keys/rotate [post].
func (h *KeyRotationHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RotateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		authsdk.ErrInvalidRequest.WithDescription("invalid JSON in request body").WriteError(w)
		return
	}

	alg := strings.TrimSpace(req.Algorithm)
	if alg != "" && !jwtx.IsSupportedAlgorithm(alg) {
		authsdk.ErrInvalidRequest.WithDescription("unsupported algorithm: " + alg).WriteError(w)
		return
	}

	result, err := h.KeyRotationService.RotateKey(r.Context(), alg)
	if err != nil {
		writeServiceError(w, r, "rotate key", err)
		return
	}

	resp := authsdk.RotateKeyResponse{NewKey: keyInfo(result.NewKey)}
	if result.RetiredKey != nil {
		resp.RetiredKey = keyInfo(*result.RetiredKey)
	}

	slogx.FromContext(r.Context()).InfoContext(r.Context(), "signing key rotated",
		"kid", result.NewKey.Kid,
		"alg", result.NewKey.Algorithm,
	)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleListKeys handles GET /v1/keys
//
//	@Summary		List Signing Keys
//	@Description	Lists the active key and every key still inside its overlap window.
//	@Tags			Keys
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string					true	"Bearer token of a trusted client with the read scope"
//	@Success		200				{array}		authsdk.SigningKeyInfo	"keys"
//	@Failure		401				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		403				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		500				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Router			/v1/keys [get].
func (h *KeyRotationHandler) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.KeyRotationService.ListSigningKeys(r.Context())
	if err != nil {
		writeServiceError(w, r, "list keys", err)
		return
	}

	out := make([]authsdk.SigningKeyInfo, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyInfo(k))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleRetireKey handles POST /v1/keys/{kid}/retire
//
//	@Summary		Retire Signing Key
//	@Description	Retires a non-active key. It keeps verifying tokens until the overlap window, counted from now, ends.
//	@Tags			Keys
//	@Security		BearerAuth
//	@Param			Authorization	header	string	true	"Bearer token of a trusted client with the write scope"
//	@Param			kid				path	string	true	"Key ID"
//	@Success		204				"No Content"
//	@Failure		400				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		403				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		404				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Router			/v1/keys/{kid}/retire [post].
func (h *KeyRotationHandler) HandleRetireKey(w http.ResponseWriter, r *http.Request) {
	kid := r.PathValue("kid")
	if kid == "" {
		authsdk.ErrInvalidRequest.WithDescription("kid is required").WriteError(w)
		return
	}

	if err := h.KeyRotationService.RetireKey(r.Context(), kid); err != nil {
		writeServiceError(w, r, "retire key", err)
		return
	}

	slogx.FromContext(r.Context()).InfoContext(r.Context(), "signing key retired", "kid", kid)
	w.WriteHeader(http.StatusNoContent)
}

func keyInfo(k service.KeyInfo) authsdk.SigningKeyInfo {
	return authsdk.SigningKeyInfo{
		Kid:       k.Kid,
		Algorithm: k.Algorithm,
		Active:    k.Active,
		RetiredAt: formatTime(k.RetiredAt),
		ExpiresAt: formatTime(k.ExpiresAt),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

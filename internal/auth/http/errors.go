package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tokensmith/internal/auth/service"
	"github.com/aussiebroadwan/tokensmith/pkg/authsdk"
	"github.com/aussiebroadwan/tokensmith/pkg/httpx"
	"github.com/aussiebroadwan/tokensmith/pkg/policy"
	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
)

// writeServiceError maps a service error onto its OAuth2 response.
// Anything unrecognised is logged and reported as server_error.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidClient):
		authsdk.ErrInvalidClient.WriteError(w)
	case errors.Is(err, service.ErrUnauthorizedGrant):
		authsdk.ErrUnauthorizedGrant.WriteError(w)
	case errors.Is(err, service.ErrUnsupportedGrantType):
		authsdk.ErrUnsupportedGrantType.WriteError(w)
	case errors.Is(err, service.ErrInvalidScope):
		authsdk.ErrInvalidScope.WriteError(w)
	case errors.Is(err, service.ErrInvalidToken):
		authsdk.ErrInvalidToken.WriteError(w)
	case errors.Is(err, service.ErrAccessDenied):
		authsdk.ErrAccessDenied.WriteError(w)
	case errors.Is(err, service.ErrClientNotFound), errors.Is(err, service.ErrKeyNotFound):
		authsdk.ErrNotFound.WriteError(w)
	case errors.Is(err, service.ErrClientExists):
		authsdk.NewOAuth2Error(http.StatusConflict, authsdk.ErrorCodeInvalidRequest, "client already exists").WriteError(w)
	case errors.Is(err, service.ErrClientProtected):
		authsdk.ErrAccessDenied.WithDescription("client is protected").WriteError(w)
	case errors.Is(err, service.ErrInvalidMetadata):
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
	case errors.Is(err, service.ErrKeyActive):
		authsdk.ErrInvalidRequest.WithDescription("the active signing key cannot be retired").WriteError(w)
	case errors.Is(err, service.ErrRotationDisabled):
		authsdk.NewOAuth2Error(http.StatusConflict, authsdk.ErrorCodeInvalidRequest, "key rotation is not available for static keys").WriteError(w)
	default:
		slogx.FromContext(r.Context()).ErrorContext(r.Context(), op+" failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

// requireForm parses an application/x-www-form-urlencoded body. It writes
// the error response and returns false when the request is not one.
func requireForm(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodPost {
		if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
			authsdk.ErrInvalidContentType.WriteError(w)
			return false
		}
	}
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return false
	}
	return true
}

// requireClient returns the authenticated caller, or challenges for client
// credentials when the request is anonymous.
func requireClient(w http.ResponseWriter, r *http.Request) (policy.Subject, bool) {
	caller := httpx.SubjectFromContext(r.Context())
	if caller.Anonymous {
		authsdk.ErrInvalidClient.WithDescription("client authentication required").WriteError(w)
		return policy.Subject{}, false
	}
	return caller, true
}

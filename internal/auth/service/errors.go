package service

import "errors"

// Token flow failures. All of them are terminal for the request.
var (
	ErrInvalidClient        = errors.New("invalid_client")
	ErrUnauthorizedGrant    = errors.New("unauthorized_grant")
	ErrUnsupportedGrantType = errors.New("unsupported_grant_type")
	ErrInvalidScope         = errors.New("invalid_scope")
	ErrInvalidToken         = errors.New("invalid_token")
	ErrAccessDenied         = errors.New("access_denied")
)

// Administration failures.
var (
	ErrClientNotFound   = errors.New("client not found")
	ErrClientExists     = errors.New("client already exists")
	ErrClientProtected  = errors.New("client is protected and cannot be deleted")
	ErrInvalidMetadata  = errors.New("invalid client metadata")
	ErrKeyNotFound      = errors.New("signing key not found")
	ErrKeyActive        = errors.New("the active signing key cannot be retired")
	ErrRotationDisabled = errors.New("key rotation is not available for static keys")
)

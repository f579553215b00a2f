package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// RotateKey makes a fresh signing key active. The previous key keeps
// verifying tokens for the server's overlap window. Requires write.
func (s *Session) RotateKey(ctx context.Context, req RotateKeyRequest) (*RotateKeyResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/keys/rotate", bytes.NewReader(body), "application/json", "write")
	if err != nil {
		return nil, err
	}

	var out RotateKeyResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListKeys returns every verification key and its status. Requires read.
func (s *Session) ListKeys(ctx context.Context) ([]SigningKeyInfo, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/keys", nil, "", "read")
	if err != nil {
		return nil, err
	}

	var keys []SigningKeyInfo
	if err := decodeJSON(resp, &keys, http.StatusOK); err != nil {
		return nil, err
	}
	return keys, nil
}

// RetireKey starts the overlap window for a non-active key. Requires write.
func (s *Session) RetireKey(ctx context.Context, kid string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/keys/"+url.PathEscape(kid)+"/retire", nil, "", "write")
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

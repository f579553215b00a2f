package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// CreateClient registers a client. The generated secret is only returned
// here. Requires the write scope.
func (s *Session) CreateClient(ctx context.Context, req CreateClientRequest) (*CreateClientResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/clients", bytes.NewReader(body), "application/json", "write")
	if err != nil {
		return nil, err
	}

	var out CreateClientResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListClients requires the read scope.
func (s *Session) ListClients(ctx context.Context) (*ListClientsResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/clients", nil, "", "read")
	if err != nil {
		return nil, err
	}

	var out ListClientsResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteClient requires the write scope. Protected clients cannot be
// deleted.
func (s *Session) DeleteClient(ctx context.Context, clientID string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/clients/"+url.PathEscape(clientID), nil, "", "write")
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// Me returns the caller as the resource server sees it, from GET /api/me.
func (s *Session) Me(ctx context.Context) (*CallerResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/api/me", nil, "")
	if err != nil {
		return nil, err
	}

	var out CallerResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

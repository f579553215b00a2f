package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/domain"
	"github.com/aussiebroadwan/tokensmith/internal/auth/service"
	"github.com/aussiebroadwan/tokensmith/pkg/authsdk"
	"github.com/aussiebroadwan/tokensmith/pkg/httpx"
	"github.com/aussiebroadwan/tokensmith/pkg/slogx"
)

// ClientsHandler handles all client management endpoints.
type ClientsHandler struct {
	ClientService *service.ClientService
}

// HandleCreate handles POST /v1/clients
//
//	@Summary		Create OAuth2 Client
//	@Description	Registers a client and returns its generated secret. The secret is only ever returned here; the server keeps an Argon2id hash.
//	@Tags			Clients
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string							true	"Bearer token of a trusted client with the write scope"
//	@Param			request			body		authsdk.CreateClientRequest		true	"Client creation request"
//	@Success		201				{object}	authsdk.CreateClientResponse	"client_id and client_secret"
//	@Failure		400				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Failure		403				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Failure		409				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Failure		500				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Router			/v1/clients [post].
func (h *ClientsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WithDescription("invalid JSON in request body").WriteError(w)
		return
	}

	if len(req.Scopes) == 0 {
		authsdk.ErrInvalidRequest.WithDescription("at least one scope is required").WriteError(w)
		return
	}
	if req.AccessTokenValiditySeconds < 0 {
		authsdk.ErrInvalidRequest.WithDescription("access_token_validity_seconds must not be negative").WriteError(w)
		return
	}

	client, secret, err := h.ClientService.CreateClient(r.Context(), service.NewClient{
		ID:                  strings.TrimSpace(req.ID),
		Name:                strings.TrimSpace(req.Name),
		GrantTypes:          req.GrantTypes,
		Authorities:         req.Authorities,
		Scopes:              req.Scopes,
		AccessTokenValidity: time.Duration(req.AccessTokenValiditySeconds) * time.Second,
	})
	if err != nil {
		writeServiceError(w, r, "create client", err)
		return
	}

	slogx.FromContext(r.Context()).InfoContext(r.Context(), "client created", "new_client_id", client.ID)

	httpx.WriteJSON(w, http.StatusCreated, authsdk.CreateClientResponse{
		ClientID:     client.ID,
		ClientSecret: secret,
	})
}

// HandleList handles GET /v1/clients
//
//	@Summary		List OAuth2 Clients
//	@Description	Lists every registered client. Secrets are never returned.
//	@Tags			Clients
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string						true	"Bearer token of a trusted client with the read scope"
//	@Success		200				{object}	authsdk.ListClientsResponse	"clients"
//	@Failure		401				{object}	authsdk.ErrorResponse		"error, error_description"
//	@Failure		403				{object}	authsdk.ErrorResponse		"error, error_description"
//	@Failure		500				{object}	authsdk.ErrorResponse		"error, error_description"
//	@Router			/v1/clients [get].
func (h *ClientsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	clients, err := h.ClientService.ListClients(r.Context())
	if err != nil {
		writeServiceError(w, r, "list clients", err)
		return
	}

	resp := authsdk.ListClientsResponse{Clients: make([]authsdk.ClientInfo, 0, len(clients))}
	for _, c := range clients {
		resp.Clients = append(resp.Clients, clientInfo(c))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleDelete handles DELETE /v1/clients/{id}
//
//	@Summary		Delete OAuth2 Client
//	@Description	Deletes a client. Clients seeded from configuration are protected and cannot be deleted.
//	@Tags			Clients
//	@Security		BearerAuth
//	@Param			Authorization	header	string	true	"Bearer token of a trusted client with the write scope"
//	@Param			id				path	string	true	"Client ID"
//	@Success		204				"No Content"
//	@Failure		401				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		403				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		404				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		500				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Router			/v1/clients/{id} [delete].
func (h *ClientsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		authsdk.ErrInvalidRequest.WithDescription("client id is required").WriteError(w)
		return
	}

	if err := h.ClientService.DeleteClient(r.Context(), id); err != nil {
		writeServiceError(w, r, "delete client", err)
		return
	}

	slogx.FromContext(r.Context()).InfoContext(r.Context(), "client deleted", "deleted_client_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func clientInfo(c domain.Client) authsdk.ClientInfo {
	return authsdk.ClientInfo{
		ID:                         c.ID,
		Name:                       c.Name,
		GrantTypes:                 nonNil(c.GrantTypes),
		Authorities:                nonNil(c.Authorities),
		Scopes:                     nonNil(c.Scopes),
		AccessTokenValiditySeconds: int(c.AccessTokenValidity / time.Second),
		Protected:                  c.Protected,
		CreatedAt:                  c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

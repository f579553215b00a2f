package http

import (
	"net/http"

	"github.com/aussiebroadwan/tokensmith/pkg/authsdk"
	"github.com/aussiebroadwan/tokensmith/pkg/httpx"
	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
)

// JWKSHandler exposes the JSON Web Key Set for public key discovery. Keys
// inside their overlap window are listed next to the active one.
//
//	@Summary		Get JWKS
//	@Description	Returns the JSON Web Key Set used to verify JWTs.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get].
func JWKSHandler(km *jwtx.KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.JWKSResponse(km.KeySet().PublicJWKS()))
	}
}

package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
)

// GetJWKS retrieves the JSON Web Key Set for token verification.
func (c *SDKClient) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/.well-known/jwks.json", nil, nil)
	if err != nil {
		return nil, err
	}

	var jwks JWKSResponse
	if err := decodeJSON(resp, &jwks, http.StatusOK); err != nil {
		return nil, err
	}

	return &jwks, nil
}

// NewRemoteVerifier fetches the server's JWKS once and returns a verifier
// for resource servers. It does not refresh; build a new one after the
// server rotates keys.
func (c *SDKClient) NewRemoteVerifier(ctx context.Context, issuer string, skew time.Duration) (*jwtx.Codec, error) {
	jwks, err := c.GetJWKS(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := jwtx.NewKeySetFromJWKS(jwtx.JWKS(*jwks))
	if err != nil {
		return nil, fmt.Errorf("authsdk: load jwks: %w", err)
	}

	return jwtx.NewVerifier(keys, jwtx.CodecOptions{Issuer: issuer, ClockSkew: skew})
}

/*
Package authsdk is the Go client for the tokensmith authorization server.

# Tokens

Clients authenticate with the client_credentials grant:

	client := authsdk.NewSDKClient("https://auth.example.com")
	creds := authsdk.Credentials{ClientID: "billing", ClientSecret: secret}

	tok, err := client.RequestToken(ctx, creds, "", []string{"read"})

An empty scope list asks for every scope the client is registered with.
Errors are *OAuth2Error values and match the predefined errors with
errors.Is:

	if errors.Is(err, authsdk.ErrInvalidScope) { ... }

# Verifying tokens

Resource servers can verify tokens locally against the published key set:

	verifier, err := client.NewRemoteVerifier(ctx, "tokensmith", 0)
	claims, err := verifier.Verify(raw)

Trusted clients may instead ask the server through CheckToken or
Introspect, and fetch the PEM key with TokenKey. TokenKey also works
anonymously when passed nil credentials.

# Admin sessions

A Session wraps a token carrying ROLE_TRUSTED_CLIENT and renews it by
authenticating again shortly before it expires:

	session, err := client.Authenticate(ctx, creds, []string{"read", "write"})
	keys, err := session.ListKeys(ctx)
	rotated, err := session.RotateKey(ctx, authsdk.RotateKeyRequest{})

Client administration needs the write scope for changes and read for
listing. Scope checks run locally before the request unless CheckScopes is
false.
*/
package authsdk

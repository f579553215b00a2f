package app

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aussiebroadwan/tokensmith/internal/auth/store"
	"github.com/aussiebroadwan/tokensmith/pkg/cryptox"
	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
)

// staticKeys is the key material of a static deployment after parsing.
type staticKeys struct {
	private  []byte
	signer   crypto.Signer
	previous []crypto.PublicKey
}

// staticKeyMaterial reads and cross-checks the configured static keys. An
// optional public key must belong to the private key.
func (c Config) staticKeyMaterial() (staticKeys, error) {
	var keys staticKeys

	priv, err := readKey(c.PrivateKeyFile, c.PrivateKey)
	if err != nil {
		return keys, fmt.Errorf("private key: %w", err)
	}
	if priv == nil {
		return keys, errors.New("AUTH_PRIVATE_KEY_FILE or AUTH_PRIVATE_KEY is required for static keys")
	}
	signer, err := jwtx.ParsePrivateKeyPEM(priv)
	if err != nil {
		return keys, fmt.Errorf("private key: %w", err)
	}

	pubPEM, err := readKey(c.PublicKeyFile, c.PublicKey)
	if err != nil {
		return keys, fmt.Errorf("public key: %w", err)
	}
	if pubPEM != nil {
		pub, err := jwtx.ParsePublicKeyPEM(pubPEM)
		if err != nil {
			return keys, fmt.Errorf("public key: %w", err)
		}
		if !jwtx.SamePublicKey(pub, signer.Public()) {
			return keys, errors.New("public key does not match the private key")
		}
	}

	for _, path := range c.PreviousPublicKeyFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return keys, fmt.Errorf("previous public key: %w", err)
		}
		pub, err := jwtx.ParsePublicKeyPEM(data)
		if err != nil {
			return keys, fmt.Errorf("previous public key %s: %w", path, err)
		}
		keys.previous = append(keys.previous, pub)
	}

	keys.private = priv
	keys.signer = signer
	return keys, nil
}

// readKey prefers the file over the inline value. Both empty yields nil.
func readKey(path, inline string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	if inline != "" {
		return []byte(inline), nil
	}
	return nil, nil
}

// InitAuthKeys builds the KeyManager for the configured key source.
//
// Key sources:
//   - "static": the signing key is read from PEM files or variables.
//     Previous public keys verify for KeyOverlap. Rotation is disabled.
//   - "persistent": keys are sealed with the master key and stored in the
//     database, so tokens survive restarts and rotation is durable.
//   - "ephemeral": a key is generated on startup and lives only in memory.
//
// The returned sealer is nil outside persistent mode.
func InitAuthKeys(ctx context.Context, cfg Config, db store.Store, logger *slog.Logger) (*jwtx.KeyManager, jwtx.KeySealer, error) {
	switch cfg.KeySource {
	case KeySourceStatic:
		km, err := initStaticKeys(cfg, time.Now())
		if err != nil {
			return nil, nil, err
		}
		logger.Info("static signing key loaded",
			"kid", km.Active().KID(),
			"algorithm", km.Algorithm(),
			"previous_keys", len(cfg.PreviousPublicKeyFiles),
		)
		return km, nil, nil

	case KeySourcePersistent:
		sealer, err := cryptox.LoadKeyEncryptor(cfg.MasterKeyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load master key: %w", err)
		}

		km, err := jwtx.LoadPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
			Store:     store.NewKeyStoreAdapter(db),
			Sealer:    sealer,
			Algorithm: cfg.Algorithm,
			RSABits:   cfg.RSABits,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize persistent key manager: %w", err)
		}
		logger.Info("persistent signing keys loaded",
			"kid", km.Active().KID(),
			"algorithm", km.Algorithm(),
			"keys", len(km.Keys()),
		)
		return km, sealer, nil

	case KeySourceEphemeral:
		km, err := jwtx.NewEphemeralKeyManager(cfg.Algorithm, cfg.RSABits)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
		}
		logger.Info("generated ephemeral signing key",
			"kid", km.Active().KID(),
			"algorithm", km.Algorithm(),
		)
		logger.Warn("ephemeral keys are lost on restart, all issued tokens become invalid")
		return km, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown key source %q", cfg.KeySource)
	}
}

func initStaticKeys(cfg Config, now time.Time) (*jwtx.KeyManager, error) {
	material, err := cfg.staticKeyMaterial()
	if err != nil {
		return nil, err
	}

	kid := cfg.KeyID
	if kid == "" {
		if kid, err = jwtx.Thumbprint(material.signer.Public()); err != nil {
			return nil, fmt.Errorf("key id: %w", err)
		}
	}

	signer, err := jwtx.NewSigner(kid, material.private)
	if err != nil {
		return nil, err
	}
	km, err := jwtx.NewKeyManager(signer)
	if err != nil {
		return nil, err
	}

	for _, pub := range material.previous {
		prevKid, err := jwtx.Thumbprint(pub)
		if err != nil {
			return nil, fmt.Errorf("previous key id: %w", err)
		}
		if err := km.AddVerificationKey(prevKid, pub, now.Add(cfg.KeyOverlap)); err != nil {
			return nil, fmt.Errorf("previous key %s: %w", prevKid, err)
		}
	}

	return km, nil
}

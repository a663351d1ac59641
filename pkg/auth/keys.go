package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

// keyPrefix marks raw secrets so they are recognizable in configuration
// without being guessable
const keyPrefix = "rk_"

// GenerateKey creates a new raw API key secret. The raw form is returned
// exactly once at creation; only its hash is ever persisted.
func GenerateKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate key material: %w", err)
	}
	return keyPrefix + hex.EncodeToString(bytes), nil
}

// HashKey returns the SHA-256 hex digest of a raw key
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Authenticator resolves bearer credentials to users
type Authenticator struct {
	store storage.Store
}

// NewAuthenticator creates an authenticator over the store
func NewAuthenticator(store storage.Store) *Authenticator {
	return &Authenticator{store: store}
}

// Authenticate resolves a raw API key to its key record and owning user.
// Unknown and expired keys both yield ErrUnauthorized.
func (a *Authenticator) Authenticate(rawKey string) (*types.ApiKey, *types.User, error) {
	if rawKey == "" {
		return nil, nil, types.ErrUnauthorized
	}
	key, err := a.store.GetApiKeyByHash(HashKey(rawKey))
	if err != nil {
		return nil, nil, types.ErrUnauthorized
	}
	if key.Expired(time.Now()) {
		return nil, nil, fmt.Errorf("%w: key expired", types.ErrUnauthorized)
	}
	user, err := a.store.GetUser(key.UserID)
	if err != nil {
		return nil, nil, types.ErrUnauthorized
	}
	return key, user, nil
}

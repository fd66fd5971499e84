package shared

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ReplayGuard remembers approval-style mutations so a retried hub action does
// not reach the backend twice within the TTL.
type ReplayGuard interface {
	// Claim marks key as in-flight or done. It returns false if the key was
	// already claimed and not yet expired.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release forgets key, used when the guarded backend call failed.
	Release(ctx context.Context, key string) error

	Close() error
}

// ReplayKey identifies one user's action on one backend object. The caller
// email is hashed so the store never holds it in clear.
func ReplayKey(connector, action, objectID, email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return strings.Join([]string{connector, action, objectID, hex.EncodeToString(sum[:12])}, ":")
}

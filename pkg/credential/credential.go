// Package credential issues and verifies the AK/SK pairs workers use to
// authenticate against the coordinator.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/cascade/pkg/storage"
	"github.com/cuemby/cascade/pkg/types"
)

// ErrAuth is returned by Verify on any failure (unknown access key,
// secret mismatch, or inactive node). Callers must not distinguish
// between these cases in the response; doing so would leak which
// field failed.
var ErrAuth = errors.New("authentication failed")

const (
	accessKeyPrefix = "AK-"
	secretPrefix    = "SK-"
	randomBytes     = 32
)

// Store issues and verifies node credentials against the persisted
// node row. The raw secret is never stored; only its SHA-256 digest is.
type Store struct {
	store storage.Store
}

// New builds a credential Store backed by the given persistence layer.
func New(s storage.Store) *Store {
	return &Store{store: s}
}

// Issue generates a new access key and secret for a worker node,
// persists the secret's hash, and returns the raw secret. It is never
// recoverable again once this call returns. Rejects nodes that are
// not workers.
func (c *Store) Issue(nodeID string) (accessKey, secret string, err error) {
	node, err := c.store.GetNode(nodeID)
	if err != nil {
		return "", "", fmt.Errorf("issue credentials: %w", err)
	}
	if node.Kind != types.NodeKindWorker {
		return "", "", fmt.Errorf("issue credentials: node %s is not a worker", nodeID)
	}

	accessKey, err = randomToken(accessKeyPrefix)
	if err != nil {
		return "", "", fmt.Errorf("generate access key: %w", err)
	}
	secret, err = randomToken(secretPrefix)
	if err != nil {
		return "", "", fmt.Errorf("generate secret: %w", err)
	}

	node.AccessKey = accessKey
	node.SecretHash = hashSecret(secret)
	node.UpdatedAt = time.Now().UTC()
	if err := c.store.UpdateNode(node); err != nil {
		return "", "", fmt.Errorf("persist credentials: %w", err)
	}

	return accessKey, secret, nil
}

// Verify resolves an access key to its node, checks the secret against
// the stored hash in constant time, and rejects inactive nodes. On
// success it also touches the node's heartbeat, a documented side
// effect callers rely on instead of a separate heartbeat call on
// every request.
func (c *Store) Verify(accessKey, secret string) (*types.Node, error) {
	node, err := c.store.GetNodeByAccessKey(clean(accessKey))
	if err != nil {
		return nil, ErrAuth
	}
	if !node.Active {
		return nil, ErrAuth
	}

	want := hashSecret(clean(secret))
	if subtle.ConstantTimeCompare([]byte(want), []byte(node.SecretHash)) != 1 {
		return nil, ErrAuth
	}

	node.ReportedStatus = types.NodeStatusOnline
	node.LastHeartbeatAt = time.Now().UTC()
	node.UpdatedAt = node.LastHeartbeatAt
	if err := c.store.UpdateNode(node); err != nil {
		return nil, fmt.Errorf("touch heartbeat: %w", err)
	}

	return node, nil
}

// ParseAuthHeader splits the "AK-SK <access_key>:<secret>" header value
// cascade uses for worker authentication.
func ParseAuthHeader(header string) (accessKey, secret string, ok bool) {
	const scheme = "AK-SK "
	if !strings.HasPrefix(header, scheme) {
		return "", "", false
	}
	rest := strings.TrimPrefix(header, scheme)
	idx := strings.IndexByte(rest, ':')
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

// randomToken generates a fixed-prefix, base64 URL-safe random token.
// The prefix keeps credentials greppable when pasted into a worker's
// config file by hand.
func randomToken(prefix string) (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashSecret computes the one-way digest stored in place of a secret.
func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// clean trims whitespace and stray quote characters, since credentials
// flow through human-edited config files.
func clean(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

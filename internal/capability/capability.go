// Package capability seals filesystem root paths into opaque tokens. A
// token is the only thing the registry persists for a filesystem plugin;
// it resolves back into directory access only while the host key that
// sealed it is still current. Rotating (or deleting) the key file revokes
// every outstanding token at once, independently of the plugin rows.
package capability

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
)

const keyFileName = "capability.key"

// ErrRevoked is returned when a token cannot be opened with the current
// host key or no longer resolves to an accessible directory.
var ErrRevoked = errors.New("capability token revoked")

// Keeper seals and resolves root-path tokens with a host-local secret key.
type Keeper struct {
	key [32]byte
}

// NewKeeper creates a Keeper from an explicit key. Used by tests.
func NewKeeper(key [32]byte) *Keeper {
	return &Keeper{key: key}
}

// LoadKeeper reads the host key from dataDir, creating one on first run.
func LoadKeeper(dataDir string) (*Keeper, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	keyPath := filepath.Join(dataDir, keyFileName)
	k := &Keeper{}

	data, err := os.ReadFile(keyPath)
	if err == nil && len(data) == len(k.key) {
		copy(k.key[:], data)
		return k, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read capability key: %w", err)
	}

	if _, err := rand.Read(k.key[:]); err != nil {
		return nil, fmt.Errorf("failed to generate capability key: %w", err)
	}
	if err := os.WriteFile(keyPath, k.key[:], 0600); err != nil {
		return nil, fmt.Errorf("failed to persist capability key: %w", err)
	}
	return k, nil
}

// Seal wraps an absolute directory path into an opaque token. The path must
// exist and be a directory at sealing time.
func (k *Keeper) Seal(rootPath string) ([]byte, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("root path is not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path %q is not a directory", rootPath)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(rootPath), &nonce, &k.key), nil
}

// Resolve opens a token back into the directory path it grants access to.
// Returns ErrRevoked if the token was sealed under a different key or the
// directory has since become inaccessible.
func (k *Keeper) Resolve(token []byte) (string, error) {
	if len(token) < 24 {
		return "", ErrRevoked
	}
	var nonce [24]byte
	copy(nonce[:], token[:24])

	path, ok := secretbox.Open(nil, token[24:], &nonce, &k.key)
	if !ok {
		return "", ErrRevoked
	}

	info, err := os.Stat(string(path))
	if err != nil || !info.IsDir() {
		return "", ErrRevoked
	}
	return string(path), nil
}

// Writeable reports whether the directory a token resolves to accepts
// writes from this process.
func (k *Keeper) Writeable(token []byte) bool {
	root, err := k.Resolve(token)
	if err != nil {
		return false
	}
	probe, err := os.CreateTemp(root, ".mankai-probe-*")
	if err != nil {
		return false
	}
	probe.Close()
	os.Remove(probe.Name())
	return true
}

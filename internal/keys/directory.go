// Package keys resolves the key material of a conversation: the local
// private key and the peer's public key.
package keys

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"

	"github.com/valkey-io/valkey-go"

	"github.com/Vasu1712/scenyx-securechat/internal/crypto"
)

var ErrKeyNotFound = errors.New("public key not found")

// Directory looks up users' public keys.
type Directory interface {
	PublicKey(ctx context.Context, userID string) (*rsa.PublicKey, error)
}

// StaticDirectory is an in-memory Directory.
type StaticDirectory struct {
	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{keys: make(map[string]*rsa.PublicKey)}
}

func (d *StaticDirectory) Add(userID string, pub *rsa.PublicKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[userID] = pub
}

func (d *StaticDirectory) PublicKey(_ context.Context, userID string) (*rsa.PublicKey, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	pub, ok := d.keys[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, userID)
	}
	return pub, nil
}

// valkeyPrefix namespaces public key entries.
const valkeyPrefix = "pubkey:"

// ValkeyDirectory keeps PEM encoded public keys in valkey under
// "pubkey:<user id>".
type ValkeyDirectory struct {
	client valkey.Client
}

// DialValkey connects to the valkey server at addr.
func DialValkey(addr string) (*ValkeyDirectory, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("connect valkey %s: %w", addr, err)
	}
	return NewValkeyDirectory(client), nil
}

func NewValkeyDirectory(client valkey.Client) *ValkeyDirectory {
	return &ValkeyDirectory{client: client}
}

func (d *ValkeyDirectory) PublicKey(ctx context.Context, userID string) (*rsa.PublicKey, error) {
	pemData, err := d.client.Do(ctx, d.client.B().Get().Key(valkeyPrefix+userID).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get public key of %s: %w", userID, err)
	}
	return crypto.ImportPublicKeyPEM([]byte(pemData))
}

// Publish stores userID's PEM encoded public key, replacing any earlier one.
func (d *ValkeyDirectory) Publish(ctx context.Context, userID string, pemData []byte) error {
	cmd := d.client.B().Set().Key(valkeyPrefix + userID).Value(string(pemData)).Build()
	if err := d.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set public key of %s: %w", userID, err)
	}
	return nil
}

func (d *ValkeyDirectory) Close() {
	d.client.Close()
}

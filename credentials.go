package printdesk

import (
	"context"
	"sync"

	"github.com/MrEthical07/printdesk/store"
)

// Tokens is the stored credential pair. An empty field means absent.
type Tokens struct {
	Access  string
	Refresh string
}

// CredentialStore reads and writes the credential pair through a store.KV.
//
// Calls are serialized so a refresh write and a logout cannot interleave
// between the two keys.
type CredentialStore struct {
	mu         sync.Mutex
	kv         store.KV
	accessKey  string
	refreshKey string
}

// NewCredentialStore wraps kv. Empty key names fall back to the defaults.
func NewCredentialStore(kv store.KV, cfg CredentialsConfig) *CredentialStore {
	if kv == nil {
		kv = store.NewMemoryStore()
	}
	if cfg.AccessKey == "" {
		cfg.AccessKey = defaultAccessKey
	}
	if cfg.RefreshKey == "" {
		cfg.RefreshKey = defaultRefreshKey
	}
	return &CredentialStore{
		kv:         kv,
		accessKey:  cfg.AccessKey,
		refreshKey: cfg.RefreshKey,
	}
}

// AccessToken returns the stored access token or "" when absent.
func (c *CredentialStore) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(ctx, c.accessKey)
}

// RefreshToken returns the stored refresh token or "" when absent.
func (c *CredentialStore) RefreshToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(ctx, c.refreshKey)
}

// Tokens reads both tokens under one lock.
func (c *CredentialStore) Tokens(ctx context.Context) (Tokens, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	access, err := c.get(ctx, c.accessKey)
	if err != nil {
		return Tokens{}, err
	}
	refresh, err := c.get(ctx, c.refreshKey)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{Access: access, Refresh: refresh}, nil
}

// SetTokens writes both tokens, as a login does.
func (c *CredentialStore) SetTokens(ctx context.Context, t Tokens) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.put(ctx, c.accessKey, t.Access); err != nil {
		return err
	}
	return c.put(ctx, c.refreshKey, t.Refresh)
}

// SetAccessToken overwrites the access token. A non-empty rotated refresh
// token replaces the stored one; an empty one leaves it untouched.
func (c *CredentialStore) SetAccessToken(ctx context.Context, access, rotatedRefresh string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.put(ctx, c.accessKey, access); err != nil {
		return err
	}
	if rotatedRefresh == "" {
		return nil
	}
	return c.put(ctx, c.refreshKey, rotatedRefresh)
}

// Clear removes both tokens.
func (c *CredentialStore) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv.Remove(ctx, c.accessKey, c.refreshKey)
}

func (c *CredentialStore) get(ctx context.Context, key string) (string, error) {
	v, ok, err := c.kv.Get(ctx, key)
	if err != nil || !ok {
		return "", err
	}
	return v, nil
}

func (c *CredentialStore) put(ctx context.Context, key, value string) error {
	if value == "" {
		return c.kv.Remove(ctx, key)
	}
	return c.kv.Set(ctx, key, value)
}

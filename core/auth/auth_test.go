package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"monitor-hub/core/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memKeys struct {
	mu      sync.Mutex
	keys    map[string]*store.APIKey
	touches int
}

func newMemKeys() *memKeys {
	return &memKeys{keys: map[string]*store.APIKey{}}
}

func (m *memKeys) CreateAPIKey(_ context.Context, key *store.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *key
	m.keys[key.ID] = &cp
	return nil
}

func (m *memKeys) FindAPIKeysByPrefix(_ context.Context, prefix string) ([]store.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []store.APIKey
	for _, k := range m.keys {
		if k.Prefix == prefix && !k.Revoked {
			res = append(res, *k)
		}
	}
	return res, nil
}

func (m *memKeys) TouchAPIKey(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touches++
	if k, ok := m.keys[id]; ok {
		k.LastUsedAt = &at
	}
	return nil
}

func (m *memKeys) RevokeAPIKey(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.Revoked {
		return store.ErrNotFound
	}
	k.Revoked = true
	return nil
}

func newTestKeyService(keys store.APIKeysStore) *KeyService {
	s := NewKeyService(keys, nil)
	s.cost = bcrypt.MinCost
	return s
}

func TestCreateAndAuthenticate(t *testing.T) {
	keys := newMemKeys()
	svc := newTestKeyService(keys)
	ctx := context.Background()

	token, key, err := svc.Create(ctx, 7, " ci ", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "mh_"+key.Prefix+"_"))
	assert.Equal(t, RoleViewer, key.Role)
	assert.Equal(t, "ci", key.Name)
	assert.NotContains(t, key.KeyHash, strings.Split(token, "_")[2])

	p, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.UserID)
	assert.Equal(t, RoleViewer, p.Role)
	assert.Equal(t, key.ID, p.KeyID)
	assert.Equal(t, 1, keys.touches)

	_, err = svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, 1, keys.touches, "recently used keys are not touched again")
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	svc := newTestKeyService(newMemKeys())
	ctx := context.Background()
	token, _, err := svc.Create(ctx, 1, "admin", RoleAdmin)
	require.NoError(t, err)

	parts := strings.Split(token, "_")
	for _, bad := range []string{"", "garbage", "mh__x", "xx_" + parts[1] + "_" + parts[2], "mh_" + parts[1] + "_wrong", "mh_ffffffff_" + parts[2]} {
		_, err := svc.Authenticate(ctx, bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestRevokedKeyIsRejected(t *testing.T) {
	svc := newTestKeyService(newMemKeys())
	ctx := context.Background()
	token, key, err := svc.Create(ctx, 1, "tmp", RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, key.ID))
	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, svc.Revoke(ctx, key.ID), store.ErrNotFound)
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	svc := newTestKeyService(newMemKeys())
	_, _, err := svc.Create(context.Background(), 1, "x", "root")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)
	ctx := WithPrincipal(context.Background(), &Principal{UserID: 3, Role: RoleAdmin})
	p, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(3), p.UserID)
}

func TestAuthorizerRoles(t *testing.T) {
	a, err := NewAuthorizer()
	require.NoError(t, err)
	cases := []struct {
		role, path, method string
		want               bool
	}{
		{RoleAdmin, "/api/monitors", "POST", true},
		{RoleAdmin, "/api/monitors/4/check", "POST", true},
		{RoleAdmin, "/api/alert-rules/2", "DELETE", true},
		{RoleViewer, "/api/monitors", "GET", true},
		{RoleViewer, "/api/monitors", "POST", false},
		{RoleViewer, "/api/sweep", "POST", false},
		{RoleViewer, "/metrics", "GET", true},
		{"intruder", "/api/monitors", "GET", false},
	}
	for _, tc := range cases {
		got, err := a.Allow(tc.role, tc.path, tc.method)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s %s %s", tc.role, tc.method, tc.path)
	}
}

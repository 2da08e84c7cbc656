package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"monitor-hub/core/store"
	"monitor-hub/core/utils"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	keyScheme   = "mh"
	prefixBytes = 4
	secretBytes = 16
	touchEvery  = time.Minute

	RoleAdmin   = "admin"
	RoleViewer  = "viewer"
	DefaultUser = int64(1)
)

var (
	ErrInvalidKey  = errors.New("invalid api key")
	ErrInvalidRole = errors.New("invalid role")
)

// Principal is the caller resolved from an API key.
type Principal struct {
	UserID int64
	Role   string
	KeyID  string
}

type KeyService struct {
	store  store.APIKeysStore
	logger *utils.Logger
	cost   int
	now    func() time.Time
}

func NewKeyService(keys store.APIKeysStore, logger *utils.Logger) *KeyService {
	return &KeyService{store: keys, logger: logger, cost: bcrypt.DefaultCost, now: utils.NowUTC}
}

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleViewer
}

// Create mints a new key and returns the plain token once. Only the bcrypt
// hash of the secret is stored.
func (s *KeyService) Create(ctx context.Context, userID int64, name, role string) (string, *store.APIKey, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = RoleViewer
	}
	if !ValidRole(role) {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	prefix, err := utils.RandString(prefixBytes)
	if err != nil {
		return "", nil, err
	}
	secret, err := utils.RandString(secretBytes)
	if err != nil {
		return "", nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return "", nil, err
	}
	key := &store.APIKey{
		ID:        uuid.Must(uuid.NewV4()).String(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		Role:      role,
		Prefix:    prefix,
		KeyHash:   string(hash),
		CreatedAt: s.now(),
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s_%s_%s", keyScheme, prefix, secret), key, nil
}

// Authenticate resolves a token of the form mh_<prefix>_<secret>.
func (s *KeyService) Authenticate(ctx context.Context, token string) (*Principal, error) {
	prefix, secret, ok := splitToken(token)
	if !ok {
		return nil, ErrInvalidKey
	}
	candidates, err := s.store.FindAPIKeysByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	for _, k := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(secret)) != nil {
			continue
		}
		now := s.now()
		if k.LastUsedAt == nil || now.Sub(*k.LastUsedAt) >= touchEvery {
			if err := s.store.TouchAPIKey(ctx, k.ID, now); err != nil {
				s.logger.Warnf("auth touch api key: %v", err)
			}
		}
		return &Principal{UserID: k.UserID, Role: k.Role, KeyID: k.ID}, nil
	}
	return nil, ErrInvalidKey
}

func (s *KeyService) Revoke(ctx context.Context, id string) error {
	return s.store.RevokeAPIKey(ctx, id)
}

func splitToken(token string) (string, string, bool) {
	parts := strings.Split(strings.TrimSpace(token), "_")
	if len(parts) != 3 || parts[0] != keyScheme || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

package store

import (
	"context"
	"database/sql"
	"time"
)

type APIKeysStore interface {
	CreateAPIKey(ctx context.Context, key *APIKey) error
	FindAPIKeysByPrefix(ctx context.Context, prefix string) ([]APIKey, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
	RevokeAPIKey(ctx context.Context, id string) error
}

type apiKeysStore struct {
	db *DB
}

func NewAPIKeysStore(db *DB) APIKeysStore {
	return &apiKeysStore{db: db}
}

func (s *apiKeysStore) CreateAPIKey(ctx context.Context, key *APIKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys(id, user_id, name, role, prefix, key_hash, revoked, created_at)
		VALUES(?,?,?,?,?,?,?,?)`,
		key.ID, key.UserID, key.Name, key.Role, key.Prefix, key.KeyHash, boolToInt(key.Revoked), key.CreatedAt.UTC())
	return err
}

func (s *apiKeysStore) FindAPIKeysByPrefix(ctx context.Context, prefix string) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, role, prefix, key_hash, revoked, created_at, last_used_at
		FROM api_keys
		WHERE prefix=? AND revoked=0`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []APIKey
	for rows.Next() {
		var k APIKey
		var revoked int
		var lastUsed sql.NullTime
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.Role, &k.Prefix, &k.KeyHash, &revoked, &k.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		k.Revoked = revoked == 1
		k.LastUsedAt = timePtr(lastUsed)
		res = append(res, k)
	}
	return res, rows.Err()
}

func (s *apiKeysStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at=? WHERE id=?`, at.UTC(), id)
	return err
}

func (s *apiKeysStore) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET revoked=1 WHERE id=? AND revoked=0`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type TargetsStore interface {
	CreateTarget(ctx context.Context, t *Target) (int64, error)
	UpdateTarget(ctx context.Context, t *Target) error
	GetTarget(ctx context.Context, id int64) (*Target, error)
	ListTargets(ctx context.Context, userID int64) ([]Target, error)
	ListActive(ctx context.Context) ([]Target, error)
	DeleteTarget(ctx context.Context, id int64) error
}

type targetsStore struct {
	db *DB
}

func NewTargetsStore(db *DB) TargetsStore {
	return &targetsStore{db: db}
}

const targetColumns = `id, user_id, name, kind, url, method, headers_json, body, expected_status, timeout_sec, interval_min, is_active, created_at, updated_at`

func (s *targetsStore) CreateTarget(ctx context.Context, t *Target) (int64, error) {
	normalizeTarget(t)
	now := time.Now().UTC()
	headersJSON, _ := json.Marshal(normalizeHeaders(t.Headers))
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO targets(user_id, name, kind, url, method, headers_json, body, expected_status, timeout_sec, interval_min, is_active, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)
		RETURNING id`,
		t.UserID, t.Name, t.Kind, t.URL, t.Method, string(headersJSON), nullableString(t.Body),
		t.ExpectedStatus, t.TimeoutSec, t.IntervalMin, boolToInt(t.IsActive), now, now,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return id, nil
}

func (s *targetsStore) UpdateTarget(ctx context.Context, t *Target) error {
	normalizeTarget(t)
	headersJSON, _ := json.Marshal(normalizeHeaders(t.Headers))
	res, err := s.db.ExecContext(ctx, `
		UPDATE targets
		SET name=?, kind=?, url=?, method=?, headers_json=?, body=?, expected_status=?, timeout_sec=?, interval_min=?, is_active=?, updated_at=?
		WHERE id=?`,
		t.Name, t.Kind, t.URL, t.Method, string(headersJSON), nullableString(t.Body),
		t.ExpectedStatus, t.TimeoutSec, t.IntervalMin, boolToInt(t.IsActive), time.Now().UTC(), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTarget removes the target; its checks, incidents and scoped rules go with it.
func (s *targetsStore) DeleteTarget(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *targetsStore) GetTarget(ctx context.Context, id int64) (*Target, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+targetColumns+` FROM targets WHERE id=?`, id)
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (s *targetsStore) ListTargets(ctx context.Context, userID int64) ([]Target, error) {
	return s.list(ctx, `SELECT `+targetColumns+` FROM targets WHERE user_id=? ORDER BY name, id`, userID)
}

func (s *targetsStore) ListActive(ctx context.Context) ([]Target, error) {
	return s.list(ctx, `SELECT `+targetColumns+` FROM targets WHERE is_active=1 ORDER BY id`)
}

func (s *targetsStore) list(ctx context.Context, query string, args ...any) ([]Target, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}
	return res, rows.Err()
}

func scanTarget(row interface {
	Scan(dest ...any) error
}) (*Target, error) {
	var t Target
	var headersRaw string
	var body sql.NullString
	var isActive int
	if err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Kind, &t.URL, &t.Method, &headersRaw, &body,
		&t.ExpectedStatus, &t.TimeoutSec, &t.IntervalMin, &isActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.IsActive = isActive == 1
	t.Body = stringPtr(body)
	if headersRaw != "" {
		if err := json.Unmarshal([]byte(headersRaw), &t.Headers); err != nil {
			return nil, fmt.Errorf("decode headers of target %d: %w", t.ID, err)
		}
	}
	if t.Headers == nil {
		t.Headers = map[string]string{}
	}
	return &t, nil
}

func normalizeTarget(t *Target) {
	t.Name = strings.TrimSpace(t.Name)
	t.Kind = strings.ToLower(strings.TrimSpace(t.Kind))
	if t.Kind == "" {
		t.Kind = KindWebsite
	}
	t.URL = strings.TrimSpace(t.URL)
	t.Method = strings.ToUpper(strings.TrimSpace(t.Method))
	if t.Method == "" {
		t.Method = "GET"
	}
	if t.ExpectedStatus == 0 {
		t.ExpectedStatus = 200
	}
	if t.TimeoutSec <= 0 {
		t.TimeoutSec = 30
	}
	if t.IntervalMin <= 0 {
		t.IntervalMin = 5
	}
}

func normalizeHeaders(in map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range in {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(v)
	}
	return out
}

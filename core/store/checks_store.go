package store

import (
	"context"
	"database/sql"
	"time"
)

type ChecksStore interface {
	AddCheck(ctx context.Context, r *ProbeResult) (int64, error)
	RecentChecks(ctx context.Context, targetID int64, since time.Time, limit int) ([]ProbeResult, error)
	ChecksSummary(ctx context.Context, userID int64, since time.Time) (up int, total int, avgMs float64, err error)
	ChecksSince(ctx context.Context, userID int64, since time.Time) ([]ProbeResult, error)
	RecentActivity(ctx context.Context, userID int64, limit int) ([]ActivityCheck, error)
	DeleteChecksBefore(ctx context.Context, before time.Time) (int64, error)
}

type checksStore struct {
	db *DB
}

func NewChecksStore(db *DB) ChecksStore {
	return &checksStore{db: db}
}

func (s *checksStore) AddCheck(ctx context.Context, r *ProbeResult) (int64, error) {
	checkedAt := r.CheckedAt.UTC()
	if checkedAt.IsZero() {
		checkedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO checks(target_id, status, response_time_ms, status_code, error, checked_at)
		VALUES(?,?,?,?,?,?)
		RETURNING id`,
		r.TargetID, r.Status, nullableInt(r.ResponseTimeMs), nullableInt(r.StatusCode), nullableString(r.Error), checkedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

func (s *checksStore) RecentChecks(ctx context.Context, targetID int64, since time.Time, limit int) ([]ProbeResult, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_id, status, response_time_ms, status_code, error, checked_at
		FROM checks
		WHERE target_id=? AND checked_at>=?
		ORDER BY checked_at DESC, id DESC
		LIMIT ?`, targetID, since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ProbeResult
	for rows.Next() {
		r, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// ChecksSince returns every check of userID's targets since the given time, oldest first.
func (s *checksStore) ChecksSince(ctx context.Context, userID int64, since time.Time) ([]ProbeResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.target_id, c.status, c.response_time_ms, c.status_code, c.error, c.checked_at
		FROM checks c
		JOIN targets t ON t.id=c.target_id
		WHERE t.user_id=? AND c.checked_at>=?
		ORDER BY c.checked_at ASC, c.id ASC`, userID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ProbeResult
	for rows.Next() {
		r, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// RecentActivity returns the latest checks across userID's targets with the target details.
func (s *checksStore) RecentActivity(ctx context.Context, userID int64, limit int) ([]ActivityCheck, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.target_id, c.status, c.response_time_ms, c.status_code, c.error, c.checked_at,
			t.name, t.kind, t.url
		FROM checks c
		JOIN targets t ON t.id=c.target_id
		WHERE t.user_id=?
		ORDER BY c.checked_at DESC, c.id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ActivityCheck
	for rows.Next() {
		var a ActivityCheck
		var rt, code sql.NullInt64
		var errText sql.NullString
		if err := rows.Scan(&a.ID, &a.TargetID, &a.Status, &rt, &code, &errText, &a.CheckedAt,
			&a.TargetName, &a.TargetKind, &a.TargetURL); err != nil {
			return nil, err
		}
		a.ResponseTimeMs = intPtr(rt)
		a.StatusCode = intPtr(code)
		a.Error = stringPtr(errText)
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *checksStore) ChecksSummary(ctx context.Context, userID int64, since time.Time) (int, int, float64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN c.status='up' THEN 1 ELSE 0 END), 0),
			COUNT(c.id),
			COALESCE(AVG(c.response_time_ms), 0)
		FROM checks c
		JOIN targets t ON t.id=c.target_id
		WHERE t.user_id=? AND c.checked_at>=?`, userID, since.UTC())
	var up, total int
	var avg float64
	if err := row.Scan(&up, &total, &avg); err != nil {
		return 0, 0, 0, err
	}
	return up, total, avg, nil
}

func (s *checksStore) DeleteChecksBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checks WHERE checked_at<?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanCheck(row interface {
	Scan(dest ...any) error
}) (ProbeResult, error) {
	var r ProbeResult
	var rt, code sql.NullInt64
	var errText sql.NullString
	if err := row.Scan(&r.ID, &r.TargetID, &r.Status, &rt, &code, &errText, &r.CheckedAt); err != nil {
		return r, err
	}
	r.ResponseTimeMs = intPtr(rt)
	r.StatusCode = intPtr(code)
	r.Error = stringPtr(errText)
	return r, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type IncidentsStore interface {
	FindOpenIncident(ctx context.Context, targetID int64) (*Incident, error)
	CreateIncident(ctx context.Context, inc *Incident) (int64, error)
	ResolveIncident(ctx context.Context, id int64, resolvedAt time.Time) error
	GetIncident(ctx context.Context, id int64) (*Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error)
	CountOpenIncidents(ctx context.Context, userID int64) (int, error)
}

type incidentsStore struct {
	db *DB
}

func NewIncidentsStore(db *DB) IncidentsStore {
	return &incidentsStore{db: db}
}

const incidentColumns = `id, target_id, title, description, status, severity, opened_at, resolved_at`

func (s *incidentsStore) FindOpenIncident(ctx context.Context, targetID int64) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE target_id=? AND status='open'
		ORDER BY opened_at DESC, id DESC
		LIMIT 1`, targetID)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return inc, err
}

// CreateIncident returns ErrConflict when the target already has an open incident.
func (s *incidentsStore) CreateIncident(ctx context.Context, inc *Incident) (int64, error) {
	if inc.Status == "" {
		inc.Status = IncidentOpen
	}
	if inc.OpenedAt.IsZero() {
		inc.OpenedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO incidents(target_id, title, description, status, severity, opened_at, resolved_at)
		VALUES(?,?,?,?,?,?,?)
		RETURNING id`,
		inc.TargetID, strings.TrimSpace(inc.Title), inc.Description, inc.Status, inc.Severity,
		inc.OpenedAt.UTC(), nullableTime(inc.ResolvedAt),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	inc.ID = id
	return id, nil
}

// ResolveIncident returns ErrConflict when the incident is missing or already resolved.
func (s *incidentsStore) ResolveIncident(ctx context.Context, id int64, resolvedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET status='resolved', resolved_at=?
		WHERE id=? AND status='open'`, resolvedAt.UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

func (s *incidentsStore) GetIncident(ctx context.Context, id int64) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id=?`, id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return inc, err
}

func (s *incidentsStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error) {
	query := `
		SELECT i.id, i.target_id, i.title, i.description, i.status, i.severity, i.opened_at, i.resolved_at
		FROM incidents i
		JOIN targets t ON t.id=i.target_id`
	var clauses []string
	var args []any
	if filter.UserID > 0 {
		clauses = append(clauses, "t.user_id=?")
		args = append(args, filter.UserID)
	}
	if filter.TargetID > 0 {
		clauses = append(clauses, "i.target_id=?")
		args = append(args, filter.TargetID)
	}
	if st := strings.ToLower(strings.TrimSpace(filter.Status)); st != "" {
		clauses = append(clauses, "i.status=?")
		args = append(args, st)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += " ORDER BY i.opened_at DESC, i.id DESC LIMIT ?"
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *inc)
	}
	return res, rows.Err()
}

func (s *incidentsStore) CountOpenIncidents(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(i.id)
		FROM incidents i
		JOIN targets t ON t.id=i.target_id
		WHERE t.user_id=? AND i.status='open'`, userID).Scan(&n)
	return n, err
}

func scanIncident(row interface {
	Scan(dest ...any) error
}) (*Incident, error) {
	var inc Incident
	var resolved sql.NullTime
	if err := row.Scan(&inc.ID, &inc.TargetID, &inc.Title, &inc.Description, &inc.Status, &inc.Severity, &inc.OpenedAt, &resolved); err != nil {
		return nil, err
	}
	inc.OpenedAt = inc.OpenedAt.UTC()
	inc.ResolvedAt = timePtr(resolved)
	return &inc, nil
}

package store

import (
	"context"
	"database/sql"
	"time"
)

type NotificationsStore interface {
	AddNotification(ctx context.Context, rec *NotificationRecord) (int64, error)
	ListNotifications(ctx context.Context, userID int64, limit int) ([]NotificationRecord, error)
}

type notificationsStore struct {
	db *DB
}

func NewNotificationsStore(db *DB) NotificationsStore {
	return &notificationsStore{db: db}
}

func (s *notificationsStore) AddNotification(ctx context.Context, rec *NotificationRecord) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications(user_id, target_id, incident_id, channel, title, message, status, message_id, error, created_at)
		VALUES(?,?,?,?,?,?,?,?,?,?)
		RETURNING id`,
		rec.UserID, rec.TargetID, nullableID(rec.IncidentID), rec.Channel, rec.Title, rec.Message,
		rec.Status, rec.MessageID, rec.Error, rec.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	rec.ID = id
	return id, nil
}

func (s *notificationsStore) ListNotifications(ctx context.Context, userID int64, limit int) ([]NotificationRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, target_id, incident_id, channel, title, message, status, message_id, error, created_at
		FROM notifications
		WHERE user_id=?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []NotificationRecord
	for rows.Next() {
		var rec NotificationRecord
		var incidentID sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TargetID, &incidentID, &rec.Channel, &rec.Title, &rec.Message,
			&rec.Status, &rec.MessageID, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.IncidentID = idPtr(incidentID)
		res = append(res, rec)
	}
	return res, rows.Err()
}

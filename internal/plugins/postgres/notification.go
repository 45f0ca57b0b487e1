package postgres

import (
	"context"
	"database/sql"

	"github.com/iklevente/crewdo-backend-sub001/internal/core/domain"
)

// NotificationRepo creates durable notification records for users who
// were offline at dispatch time.
type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, event, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, n.ID, n.UserID, n.Event, n.Payload, n.CreatedAt)
	return err
}

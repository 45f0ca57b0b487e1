package postgres

import (
	"context"
	"database/sql"

	"github.com/iklevente/crewdo-backend-sub001/internal/core/domain"
)

// PresenceRepo stores exactly one presence row per user, created
// lazily on the first transition and mutated in place afterwards.
type PresenceRepo struct {
	db *sql.DB
}

func NewPresenceRepo(db *sql.DB) *PresenceRepo {
	return &PresenceRepo{db: db}
}

func (r *PresenceRepo) Get(ctx context.Context, userID string) (*domain.PresenceRecord, error) {
	exec := GetExecutor(ctx, r.db)
	row := exec.QueryRowContext(ctx, `
		SELECT user_id, status, status_source, manual_status, last_seen_at, updated_at
		FROM user_presence
		WHERE user_id = $1
	`, userID)
	var rec domain.PresenceRecord
	var manual sql.NullString
	err := row.Scan(&rec.UserID, &rec.Status, &rec.Source, &manual, &rec.LastSeenAt, &rec.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrPresenceNotFound
		}
		return nil, err
	}
	if manual.Valid {
		s := domain.Status(manual.String)
		rec.ManualStatus = &s
	}
	return &rec, nil
}

func (r *PresenceRepo) Upsert(ctx context.Context, rec *domain.PresenceRecord) error {
	exec := GetExecutor(ctx, r.db)
	var manual sql.NullString
	if rec.ManualStatus != nil {
		manual = sql.NullString{String: string(*rec.ManualStatus), Valid: true}
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO user_presence (user_id, status, status_source, manual_status, last_seen_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			status = EXCLUDED.status,
			status_source = EXCLUDED.status_source,
			manual_status = EXCLUDED.manual_status,
			last_seen_at = EXCLUDED.last_seen_at,
			updated_at = EXCLUDED.updated_at
	`, rec.UserID, rec.Status, rec.Source, manual, rec.LastSeenAt, rec.UpdatedAt)
	return err
}

package postgres

import (
	"context"
	"database/sql"
)

// MembershipRepo reads persisted channel membership. Writes belong to
// the channel CRUD collaborator; the core only looks membership up.
type MembershipRepo struct {
	db *sql.DB
}

func NewMembershipRepo(db *sql.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

func (r *MembershipRepo) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	exec := GetExecutor(ctx, r.db)
	var exists bool
	err := exec.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM channel_members
			WHERE channel_id = $1 AND user_id = $2
		)
	`, channelID, userID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *MembershipRepo) ChannelsFor(ctx context.Context, userID string) ([]string, error) {
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT channel_id FROM channel_members
		WHERE user_id = $1
		ORDER BY channel_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *MembershipRepo) MembersOf(ctx context.Context, channelID string) ([]string, error) {
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT user_id FROM channel_members
		WHERE channel_id = $1
		ORDER BY user_id
	`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

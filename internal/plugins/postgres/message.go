package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/iklevente/crewdo-backend-sub001/internal/core/domain"
)

// MessageRepo persists channel messages, reactions and read cursors.
type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// SaveWithSequence increments the channel's sequence counter and
// inserts the message under it. Callers run it inside a transaction so
// the counter and the insert commit together.
func (r *MessageRepo) SaveWithSequence(ctx context.Context, msg *domain.Message) (int64, error) {
	exec := GetExecutor(ctx, r.db)
	var seq int64
	err := exec.QueryRowContext(ctx, `
		INSERT INTO channel_sequences (channel_id, last_seq)
		VALUES ($1, 1)
		ON CONFLICT (channel_id) DO UPDATE SET last_seq = channel_sequences.last_seq + 1
		RETURNING last_seq
	`, msg.ChannelID).Scan(&seq)
	if err != nil {
		return 0, err
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO messages (id, channel_id, sender_id, client_msg_id, seq, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.ChannelID, msg.SenderID, msg.ClientMsgID, seq, msg.Body, msg.CreatedAt)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *MessageRepo) AddReaction(ctx context.Context, messageID uuid.UUID, userID, emoji string) (*domain.ReactionSummary, error) {
	exec := GetExecutor(ctx, r.db)
	var channelID, authorID string
	err := exec.QueryRowContext(ctx, `
		SELECT channel_id, sender_id FROM messages WHERE id = $1
	`, messageID).Scan(&channelID, &authorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO message_reactions (message_id, user_id, emoji)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING
	`, messageID, userID, emoji)
	if err != nil {
		return nil, err
	}
	summary := &domain.ReactionSummary{
		MessageID: messageID,
		ChannelID: channelID,
		AuthorID:  authorID,
		Emoji:     emoji,
	}
	rows, err := exec.QueryContext(ctx, `
		SELECT user_id FROM message_reactions
		WHERE message_id = $1 AND emoji = $2
		ORDER BY user_id
	`, messageID, emoji)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		summary.UserIDs = append(summary.UserIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	summary.Count = len(summary.UserIDs)
	return summary, nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, channelID, userID string, lastSeq int64) error {
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO channel_reads (channel_id, user_id, last_seq, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (channel_id, user_id) DO UPDATE SET
			last_seq = GREATEST(channel_reads.last_seq, EXCLUDED.last_seq),
			updated_at = now()
	`, channelID, userID, lastSeq)
	return err
}

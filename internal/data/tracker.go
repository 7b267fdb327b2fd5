package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
	"github.com/DevRickLin/feishu-greeter/internal/biz/repo"
)

// trackerRepo persists tracked lifecycle messages
type trackerRepo struct {
	db *sql.DB
}

// NewTrackerRepo creates a new tracker repository
func NewTrackerRepo(db *sql.DB) repo.TrackerRepo {
	return &trackerRepo{db: db}
}

// Save creates or replaces the tracked message of its key
func (r *trackerRepo) Save(ctx context.Context, msg *domain.TrackedMessage) error {
	var deleteAt int64
	if msg.HasDeadline() {
		deleteAt = msg.DeleteAt.UnixMilli()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tracked_messages (group_id, kind, message_id, target_type, target_user_id, sent_at, delete_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		msg.GroupID,
		string(msg.Kind),
		msg.MessageID,
		string(msg.Target.Type),
		msg.Target.UserID,
		msg.SentAt.UnixMilli(),
		deleteAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save tracked message: %w", err)
	}
	return nil
}

// Delete removes the tracked message of a key
func (r *trackerRepo) Delete(ctx context.Context, key domain.Key) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tracked_messages WHERE group_id = ? AND kind = ?`,
		key.GroupID, string(key.Kind))
	if err != nil {
		return fmt.Errorf("failed to delete tracked message: %w", err)
	}
	return nil
}

// DeleteIf removes the tracked message only if it still has messageID
func (r *trackerRepo) DeleteIf(ctx context.Context, key domain.Key, messageID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM tracked_messages WHERE group_id = ? AND kind = ? AND message_id = ?
	`, key.GroupID, string(key.Kind), messageID)
	if err != nil {
		return fmt.Errorf("failed to delete tracked message: %w", err)
	}
	return nil
}

// ListAll lists every tracked message
func (r *trackerRepo) ListAll(ctx context.Context) ([]*domain.TrackedMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT group_id, kind, message_id, target_type, target_user_id, sent_at, delete_at
		FROM tracked_messages
		ORDER BY sent_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked messages: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.TrackedMessage
	for rows.Next() {
		msg, err := scanTracked(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracked message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func scanTracked(s scanner) (*domain.TrackedMessage, error) {
	var msg domain.TrackedMessage
	var kind, targetType, userID string
	var sentAt, deleteAt int64
	if err := s.Scan(&msg.GroupID, &kind, &msg.MessageID, &targetType, &userID, &sentAt, &deleteAt); err != nil {
		return nil, err
	}
	msg.Kind = domain.Kind(kind)
	msg.Target = domain.Target{Type: domain.TargetType(targetType), GroupID: msg.GroupID, UserID: userID}
	msg.SentAt = time.UnixMilli(sentAt)
	if deleteAt > 0 {
		msg.DeleteAt = time.UnixMilli(deleteAt)
	}
	return &msg, nil
}

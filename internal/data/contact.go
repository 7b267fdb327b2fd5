package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DevRickLin/feishu-greeter/internal/biz/repo"
)

// contactRepo records users who have a private chat with the bot
type contactRepo struct {
	db *sql.DB
}

// NewContactRepo creates a new contact repository
func NewContactRepo(db *sql.DB) repo.ContactRepo {
	return &contactRepo{db: db}
}

// AddContact records the private chat of a user
func (r *contactRepo) AddContact(ctx context.Context, userID, chatID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO dm_contacts (user_id, chat_id, updated_at) VALUES (?, ?, ?)
	`, userID, chatID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to add contact: %w", err)
	}
	return nil
}

// HasContact reports whether the user has a private chat with the bot
func (r *contactRepo) HasContact(ctx context.Context, userID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dm_contacts WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query contact: %w", err)
	}
	return n > 0, nil
}

// RemoveContact forgets a user, e.g. after the bot was blocked
func (r *contactRepo) RemoveContact(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM dm_contacts WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to remove contact: %w", err)
	}
	return nil
}

package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DevRickLin/feishu-greeter/internal/biz/repo"
)

type rulesRepo struct {
	db *sql.DB
}

// NewRulesRepo creates a new rules link repository
func NewRulesRepo(db *sql.DB) repo.RulesRepo {
	return &rulesRepo{db: db}
}

// GetRulesLink returns "" when the group has no rules link
func (r *rulesRepo) GetRulesLink(ctx context.Context, groupID string) (string, error) {
	var link string
	err := r.db.QueryRowContext(ctx, `SELECT link FROM group_rules WHERE group_id = ?`, groupID).Scan(&link)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query rules link: %w", err)
	}
	return link, nil
}

// SetRulesLink stores the rules link of a group; an empty link removes it
func (r *rulesRepo) SetRulesLink(ctx context.Context, groupID, link string) error {
	var err error
	if link == "" {
		_, err = r.db.ExecContext(ctx, `DELETE FROM group_rules WHERE group_id = ?`, groupID)
	} else {
		_, err = r.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO group_rules (group_id, link, updated_at) VALUES (?, ?, ?)
		`, groupID, link, time.Now().Unix())
	}
	if err != nil {
		return fmt.Errorf("failed to set rules link: %w", err)
	}
	return nil
}

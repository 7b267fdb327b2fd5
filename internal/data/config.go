package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
	"github.com/DevRickLin/feishu-greeter/internal/biz/repo"
)

// configRepo implements the lifecycle config store on SQLite
type configRepo struct {
	db *sql.DB
}

// NewConfigRepo creates a new config repository
func NewConfigRepo(db *sql.DB) repo.ConfigRepo {
	return &configRepo{db: db}
}

const configColumns = `group_id, kind, content, is_enabled, delete_previous, send_as_dm,
	delete_after_seconds, has_buttons, buttons, updated_at`

// GetLifecycleConfig gets the config of a group and kind
func (r *configRepo) GetLifecycleConfig(ctx context.Context, groupID string, kind domain.Kind) (*domain.LifecycleConfig, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+configColumns+`
		FROM lifecycle_configs
		WHERE group_id = ? AND kind = ?
	`, groupID, string(kind))

	cfg, err := scanConfig(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lifecycle config: %w", err)
	}
	return cfg, nil
}

// SaveLifecycleConfig creates or replaces a config
func (r *configRepo) SaveLifecycleConfig(ctx context.Context, cfg *domain.LifecycleConfig) error {
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO lifecycle_configs (`+configColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cfg.GroupID,
		string(cfg.Kind),
		cfg.Content,
		boolInt(cfg.IsEnabled),
		boolInt(cfg.DeletePrevious),
		boolInt(cfg.SendAsDM),
		cfg.DeleteAfterSeconds,
		boolInt(cfg.HasButtons),
		string(cfg.Buttons),
		cfg.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save lifecycle config: %w", err)
	}
	return nil
}

// ListLifecycleConfigs lists the configs of a group
func (r *configRepo) ListLifecycleConfigs(ctx context.Context, groupID string) ([]*domain.LifecycleConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+configColumns+`
		FROM lifecycle_configs
		WHERE group_id = ?
		ORDER BY kind
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lifecycle configs: %w", err)
	}
	defer rows.Close()

	var configs []*domain.LifecycleConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lifecycle config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConfig(s scanner) (*domain.LifecycleConfig, error) {
	var cfg domain.LifecycleConfig
	var kind, buttons string
	var enabled, deletePrev, asDM, hasButtons int
	var updatedAt int64
	err := s.Scan(&cfg.GroupID, &kind, &cfg.Content, &enabled, &deletePrev, &asDM,
		&cfg.DeleteAfterSeconds, &hasButtons, &buttons, &updatedAt)
	if err != nil {
		return nil, err
	}
	cfg.Kind = domain.Kind(kind)
	if cfg.DeleteAfterSeconds < 0 {
		cfg.DeleteAfterSeconds = 0
	}
	cfg.IsEnabled = enabled != 0
	cfg.DeletePrevious = deletePrev != 0
	cfg.SendAsDM = asDM != 0
	cfg.HasButtons = hasButtons != 0
	if buttons != "" {
		cfg.Buttons = json.RawMessage(buttons)
	}
	cfg.UpdatedAt = time.Unix(updatedAt, 0)
	return &cfg, nil
}

package repo

import (
	"context"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
)

// TrackerRepo persists tracked lifecycle messages across restarts
type TrackerRepo interface {
	// Save creates or replaces the tracked message of its key
	Save(ctx context.Context, msg *domain.TrackedMessage) error

	// Delete removes the tracked message of a key
	Delete(ctx context.Context, key domain.Key) error

	// DeleteIf removes the tracked message only if it still has messageID
	DeleteIf(ctx context.Context, key domain.Key, messageID string) error

	// ListAll lists every tracked message
	ListAll(ctx context.Context) ([]*domain.TrackedMessage, error)
}

// ContactRepo records users who opened a private chat with the bot
type ContactRepo interface {
	AddContact(ctx context.Context, userID, chatID string) error
	HasContact(ctx context.Context, userID string) (bool, error)
	RemoveContact(ctx context.Context, userID string) error
}

// RulesRepo stores per-group rules links
type RulesRepo interface {
	GetRulesLink(ctx context.Context, groupID string) (string, error)
	SetRulesLink(ctx context.Context, groupID, link string) error
}

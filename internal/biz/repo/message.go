package repo

import (
	"context"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
)

// Transport delivers and deletes lifecycle messages
type Transport interface {
	// Send delivers text (and an optional attachment) and returns the message ID.
	// Returns domain.ErrDirectDeliveryUnavailable when a direct target cannot be reached.
	Send(ctx context.Context, target domain.Target, text string, att *domain.Attachment) (string, error)

	// Delete removes a previously sent message
	Delete(ctx context.Context, target domain.Target, messageID string) error

	// CanDirectMessage reports whether the bot can reach the user privately
	CanDirectMessage(ctx context.Context, user domain.User) bool
}

// GroupRepo provides group metadata for template bindings
type GroupRepo interface {
	MemberCount(ctx context.Context, groupID string) (int, error)
	GroupName(ctx context.Context, groupID string) (string, error)
	RulesLink(ctx context.Context, groupID string) (string, error)
}

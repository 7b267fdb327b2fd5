package domain

import "time"

// TargetType is where a message is delivered
type TargetType string

const (
	TargetGroup  TargetType = "group"
	TargetDirect TargetType = "dm"
)

// Target addresses a delivery: the group chat or a member's private chat
type Target struct {
	Type    TargetType `json:"type"`
	GroupID string     `json:"group_id"`
	UserID  string     `json:"user_id,omitempty"`
}

// GroupTarget addresses the group chat
func GroupTarget(groupID string) Target {
	return Target{Type: TargetGroup, GroupID: groupID}
}

// DirectTarget addresses a member's private chat
func DirectTarget(groupID, userID string) Target {
	return Target{Type: TargetDirect, GroupID: groupID, UserID: userID}
}

// IsDirect reports whether the target is a private chat
func (t Target) IsDirect() bool {
	return t.Type == TargetDirect
}

// Attachment is an optional payload sent along with the text
type Attachment struct {
	Buttons []byte // opaque button layout
}

// TrackedMessage is the last lifecycle message sent for a group and kind
type TrackedMessage struct {
	GroupID   string    `json:"group_id"`
	Kind      Kind      `json:"kind"`
	MessageID string    `json:"message_id"`
	Target    Target    `json:"target"`
	SentAt    time.Time `json:"sent_at"`
	DeleteAt  time.Time `json:"delete_at,omitempty"` // zero when no auto-delete is armed
}

// Key returns the tracker key
func (m *TrackedMessage) Key() Key {
	return Key{GroupID: m.GroupID, Kind: m.Kind}
}

// HasDeadline reports whether an auto-delete was armed for the message
func (m *TrackedMessage) HasDeadline() bool {
	return !m.DeleteAt.IsZero()
}

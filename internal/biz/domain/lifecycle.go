package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the lifecycle message kind
type Kind string

const (
	KindWelcome Kind = "welcome"
	KindGoodbye Kind = "goodbye"
)

// ParseKind parses a kind name
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindWelcome, KindGoodbye:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown lifecycle kind %q", s)
}

// EventKind is the membership change kind
type EventKind string

const (
	EventJoin  EventKind = "join"
	EventLeave EventKind = "leave"
)

// MessageKind maps a membership change to the message it triggers
func (k EventKind) MessageKind() Kind {
	if k == EventLeave {
		return KindGoodbye
	}
	return KindWelcome
}

// Key identifies one tracked lifecycle stream (group + kind)
type Key struct {
	GroupID string
	Kind    Kind
}

func (k Key) String() string {
	return k.GroupID + "/" + string(k.Kind)
}

// LifecycleConfig is the per-group welcome/goodbye configuration
type LifecycleConfig struct {
	GroupID            string          `json:"group_id"`
	Kind               Kind            `json:"kind"`
	Content            string          `json:"content"`
	IsEnabled          bool            `json:"is_enabled"`
	DeletePrevious     bool            `json:"delete_previous"`
	SendAsDM           bool            `json:"send_as_dm"` // welcome only
	DeleteAfterSeconds int             `json:"delete_after_seconds"`
	HasButtons         bool            `json:"has_buttons"`
	Buttons            json.RawMessage `json:"buttons,omitempty"` // opaque, passed to the transport
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Key returns the tracker key of the config
func (c *LifecycleConfig) Key() Key {
	return Key{GroupID: c.GroupID, Kind: c.Kind}
}

// Snapshot returns a copy detached from the original record
func (c *LifecycleConfig) Snapshot() LifecycleConfig {
	snap := *c
	if c.Buttons != nil {
		snap.Buttons = append(json.RawMessage(nil), c.Buttons...)
	}
	if snap.DeleteAfterSeconds < 0 {
		snap.DeleteAfterSeconds = 0
	}
	return snap
}

// Validate checks the config before it is stored
func (c *LifecycleConfig) Validate() error {
	if c.GroupID == "" {
		return fmt.Errorf("group_id is required")
	}
	if _, err := ParseKind(string(c.Kind)); err != nil {
		return err
	}
	if c.DeleteAfterSeconds < 0 {
		return fmt.Errorf("delete_after_seconds must not be negative")
	}
	if c.HasButtons && len(c.Buttons) > 0 && !json.Valid(c.Buttons) {
		return fmt.Errorf("buttons must be valid JSON")
	}
	return nil
}

// MembershipEvent is a join or leave observed in a group
type MembershipEvent struct {
	ID         string
	GroupID    string
	User       User
	Kind       EventKind
	OccurredAt time.Time
}

// Key returns the key of the message the event triggers
func (e *MembershipEvent) Key() Key {
	return Key{GroupID: e.GroupID, Kind: e.Kind.MessageKind()}
}

package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
	"github.com/DevRickLin/feishu-greeter/internal/biz/repo"
)

// DeliveryTracker remembers the last lifecycle message sent per group and kind.
// Updates to one key are serialised by the tracker itself, so RecordSent is
// atomic even when callers do not hold the engine's key lock.
type DeliveryTracker struct {
	locks   *keyLocker
	entries sync.Map // domain.Key -> *domain.TrackedMessage
	store   repo.TrackerRepo
	log     zerolog.Logger
}

// NewDeliveryTracker creates a tracker. store may be nil for a volatile tracker.
func NewDeliveryTracker(store repo.TrackerRepo, logger zerolog.Logger) *DeliveryTracker {
	return &DeliveryTracker{
		locks: newKeyLocker(),
		store: store,
		log:   logger.With().Str("component", "tracker").Logger(),
	}
}

// Load hydrates the tracker from its store
func (t *DeliveryTracker) Load(ctx context.Context) (int, error) {
	if t.store == nil {
		return 0, nil
	}
	msgs, err := t.store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load tracked messages: %w", err)
	}
	for _, m := range msgs {
		cp := *m
		t.entries.Store(cp.Key(), &cp)
	}
	return len(msgs), nil
}

// RecordSent swaps in msg for its key and returns the previously tracked message
func (t *DeliveryTracker) RecordSent(ctx context.Context, msg domain.TrackedMessage) *domain.TrackedMessage {
	key := msg.Key()
	unlock := t.locks.Lock(key)
	defer unlock()

	prev, loaded := t.entries.Swap(key, &msg)

	if t.store != nil {
		if err := t.store.Save(ctx, &msg); err != nil {
			t.log.Warn().Err(err).Str("key", key.String()).Msg("failed to persist tracked message")
		}
	}

	if !loaded {
		return nil
	}
	cp := *prev.(*domain.TrackedMessage)
	return &cp
}

// Peek returns a copy of the tracked message, or nil
func (t *DeliveryTracker) Peek(groupID string, kind domain.Kind) *domain.TrackedMessage {
	v, ok := t.entries.Load(domain.Key{GroupID: groupID, Kind: kind})
	if !ok {
		return nil
	}
	cp := *v.(*domain.TrackedMessage)
	return &cp
}

// Clear forgets the tracked message of a key
func (t *DeliveryTracker) Clear(ctx context.Context, groupID string, kind domain.Kind) {
	key := domain.Key{GroupID: groupID, Kind: kind}
	unlock := t.locks.Lock(key)
	defer unlock()

	t.entries.Delete(key)
	if t.store != nil {
		if err := t.store.Delete(ctx, key); err != nil {
			t.log.Warn().Err(err).Str("key", key.String()).Msg("failed to delete tracked message")
		}
	}
}

// ClearIf forgets the tracked message only if it is still messageID.
// Returns false when a newer message has replaced it.
func (t *DeliveryTracker) ClearIf(ctx context.Context, key domain.Key, messageID string) bool {
	unlock := t.locks.Lock(key)
	defer unlock()

	v, ok := t.entries.Load(key)
	if !ok || v.(*domain.TrackedMessage).MessageID != messageID {
		return false
	}
	t.entries.Delete(key)

	if t.store != nil {
		if err := t.store.DeleteIf(ctx, key, messageID); err != nil {
			t.log.Warn().Err(err).Str("key", key.String()).Msg("failed to delete tracked message")
		}
	}
	return true
}

// Snapshot returns copies of every tracked message
func (t *DeliveryTracker) Snapshot() []domain.TrackedMessage {
	var out []domain.TrackedMessage
	t.entries.Range(func(_, v any) bool {
		out = append(out, *v.(*domain.TrackedMessage))
		return true
	})
	return out
}

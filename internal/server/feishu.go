package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
	"github.com/DevRickLin/feishu-greeter/internal/infra/feishu"
)

// seenTTL is how long a delivered event ID is remembered
const seenTTL = 5 * time.Minute

// EventSource delivers Feishu events
type EventSource interface {
	OnMemberChange(handler func(feishu.MemberChange))
	OnDirectMessage(handler func(feishu.DirectMessage))
	Start(ctx context.Context) error
	Stop()
}

// Dispatcher receives converted events
type Dispatcher interface {
	Dispatch(ev domain.MembershipEvent) error
	RecordContact(ctx context.Context, userID, chatID string)
}

// FeishuServer turns Feishu membership events into lifecycle events
type FeishuServer struct {
	source     EventSource
	dispatcher Dispatcher
	log        zerolog.Logger

	// Event deduplication cache
	seenMu sync.Mutex
	seen   map[string]time.Time // event ID -> first delivery
	now    func() time.Time
}

// NewFeishuServer creates a new Feishu server
func NewFeishuServer(source EventSource, dispatcher Dispatcher, logger zerolog.Logger) *FeishuServer {
	return &FeishuServer{
		source:     source,
		dispatcher: dispatcher,
		log:        logger.With().Str("component", "server").Logger(),
		seen:       make(map[string]time.Time),
		now:        time.Now,
	}
}

// Start registers handlers and blocks while the event source runs
func (s *FeishuServer) Start(ctx context.Context) error {
	s.source.OnMemberChange(s.handleMemberChange)
	s.source.OnDirectMessage(s.handleDirectMessage)
	return s.source.Start(ctx)
}

// Stop stops the event source
func (s *FeishuServer) Stop() {
	s.source.Stop()
}

func (s *FeishuServer) handleMemberChange(change feishu.MemberChange) {
	// Feishu redelivers events it did not see acknowledged in time
	if change.EventID != "" && s.markSeen(change.EventID) {
		s.log.Debug().Str("event_id", change.EventID).Msg("duplicate event ignored")
		return
	}

	for _, ev := range MembershipEvents(change) {
		if err := s.dispatcher.Dispatch(ev); err != nil {
			s.log.Warn().Err(err).Str("event_id", ev.ID).Msg("event dropped")
		}
	}
}

func (s *FeishuServer) handleDirectMessage(msg feishu.DirectMessage) {
	s.dispatcher.RecordContact(context.Background(), msg.SenderID, msg.ChatID)
}

// markSeen records id and reports whether it had been seen already
func (s *FeishuServer) markSeen(id string) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()

	now := s.now()
	if ts, ok := s.seen[id]; ok && now.Sub(ts) < seenTTL {
		return true
	}
	s.seen[id] = now

	// Clean up expired records when marking new ones
	cutoff := now.Add(-seenTTL)
	for k, ts := range s.seen {
		if ts.Before(cutoff) {
			delete(s.seen, k)
		}
	}
	return false
}

// MembershipEvents splits a Feishu member change into one event per user
func MembershipEvents(change feishu.MemberChange) []domain.MembershipEvent {
	kind := domain.EventLeave
	if change.Joined {
		kind = domain.EventJoin
	}
	baseID := change.EventID
	if baseID == "" {
		baseID = uuid.NewString()
	}

	events := make([]domain.MembershipEvent, 0, len(change.Users))
	for _, u := range change.Users {
		id := baseID
		if len(change.Users) > 1 {
			id = baseID + ":" + u.OpenID
		}
		events = append(events, domain.MembershipEvent{
			ID:         id,
			GroupID:    change.ChatID,
			User:       domain.NewUserFromName(u.OpenID, u.Name),
			Kind:       kind,
			OccurredAt: change.CreateAt,
		})
	}
	return events
}

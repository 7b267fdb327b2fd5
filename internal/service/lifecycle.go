package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
	"github.com/DevRickLin/feishu-greeter/internal/biz/repo"
	"github.com/DevRickLin/feishu-greeter/internal/biz/usecase"
)

// ErrStopped is returned by Dispatch after Stop
var ErrStopped = errors.New("lifecycle service stopped")

// EventHandler processes one membership event
type EventHandler interface {
	HandleEvent(ctx context.Context, ev domain.MembershipEvent) (*usecase.Result, error)
}

// LifecycleService runs membership events through the engine off the
// event source goroutine
type LifecycleService struct {
	engine   EventHandler
	contacts repo.ContactRepo
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	stopped  bool
	wg       sync.WaitGroup
	log      zerolog.Logger
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(engine EventHandler, contacts repo.ContactRepo, logger zerolog.Logger) *LifecycleService {
	ctx, cancel := context.WithCancel(context.Background())
	return &LifecycleService{
		engine:   engine,
		contacts: contacts,
		ctx:      ctx,
		cancel:   cancel,
		log:      logger.With().Str("component", "service").Logger(),
	}
}

// Dispatch processes ev asynchronously
func (s *LifecycleService) Dispatch(ev domain.MembershipEvent) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.process(ev)
	}()
	return nil
}

func (s *LifecycleService) process(ev domain.MembershipEvent) {
	res, err := s.engine.HandleEvent(s.ctx, ev)
	if errors.Is(err, context.Canceled) {
		s.log.Warn().Str("event_id", ev.ID).Str("group_id", ev.GroupID).Msg("event dropped on shutdown")
		return
	}
	if err != nil {
		s.log.Error().Err(err).
			Str("event_id", ev.ID).
			Str("group_id", ev.GroupID).
			Str("user_id", ev.User.ID).
			Msg("lifecycle message not delivered")
		return
	}
	s.log.Debug().
		Str("event_id", res.EventID).
		Str("key", res.Key.String()).
		Str("state", string(res.State)).
		Bool("fallback", res.Fallback).
		Msg("event processed")
}

// RecordContact remembers that a user opened a private chat with the bot
func (s *LifecycleService) RecordContact(ctx context.Context, userID, chatID string) {
	if s.contacts == nil {
		return
	}
	if err := s.contacts.AddContact(ctx, userID, chatID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to record contact")
	}
}

// Stop rejects new events and waits for in-flight ones
func (s *LifecycleService) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		// Abort transport calls still in flight
		s.cancel()
		<-done
		return ctx.Err()
	}
}

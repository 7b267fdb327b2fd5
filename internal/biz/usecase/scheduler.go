package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
	"github.com/DevRickLin/feishu-greeter/internal/biz/repo"
)

// Timer is a stoppable one-shot timer
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d
type AfterFunc func(d time.Duration, f func()) Timer

// RealAfterFunc schedules on the runtime clock
func RealAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Deleter removes delivered messages
type Deleter interface {
	Delete(ctx context.Context, target domain.Target, messageID string) error
}

// TimerHandle identifies one armed auto-delete timer
type TimerHandle struct {
	Key       domain.Key
	MessageID string
	ID        uint64
	entry     *armedTimer
}

type armedTimer struct {
	id        uint64
	target    domain.Target
	messageID string

	mu      sync.Mutex
	timer   Timer
	stopped bool
}

func (a *armedTimer) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
	}
}

// DeletionScheduler runs auto-delete timers, at most one per key
type DeletionScheduler struct {
	deleter       Deleter
	tracker       *DeliveryTracker
	observer      repo.Observer
	afterFunc     AfterFunc
	deleteTimeout time.Duration

	timers sync.Map // domain.Key -> *armedTimer
	nextID atomic.Uint64
	wg     sync.WaitGroup

	log zerolog.Logger
}

// NewDeletionScheduler creates a scheduler. afterFunc defaults to RealAfterFunc.
func NewDeletionScheduler(
	deleter Deleter,
	tracker *DeliveryTracker,
	observer repo.Observer,
	afterFunc AfterFunc,
	deleteTimeout time.Duration,
	logger zerolog.Logger,
) *DeletionScheduler {
	if afterFunc == nil {
		afterFunc = RealAfterFunc
	}
	if observer == nil {
		observer = repo.NopObserver
	}
	return &DeletionScheduler{
		deleter:       deleter,
		tracker:       tracker,
		observer:      observer,
		afterFunc:     afterFunc,
		deleteTimeout: deleteTimeout,
		log:           logger.With().Str("component", "scheduler").Logger(),
	}
}

// Arm schedules deletion of messageID after delay, replacing any timer
// already armed for the key
func (s *DeletionScheduler) Arm(key domain.Key, target domain.Target, messageID string, delay time.Duration) TimerHandle {
	entry := &armedTimer{
		id:        s.nextID.Add(1),
		target:    target,
		messageID: messageID,
	}

	if old, loaded := s.timers.Swap(key, entry); loaded {
		old.(*armedTimer).stop()
		s.log.Debug().Str("key", key.String()).Str("message_id", old.(*armedTimer).messageID).Msg("superseded armed timer")
	}

	entry.mu.Lock()
	if !entry.stopped {
		entry.timer = s.afterFunc(delay, func() { s.fire(key, entry) })
	}
	entry.mu.Unlock()

	return TimerHandle{Key: key, MessageID: messageID, ID: entry.id, entry: entry}
}

// Cancel aborts the timer if it is still the one armed for its key
func (s *DeletionScheduler) Cancel(h TimerHandle) bool {
	if h.entry == nil {
		return false
	}
	if !s.timers.CompareAndDelete(h.Key, h.entry) {
		return false
	}
	h.entry.stop()
	return true
}

// CancelAll aborts whatever timer is armed for the group and kind
func (s *DeletionScheduler) CancelAll(groupID string, kind domain.Kind) bool {
	v, ok := s.timers.LoadAndDelete(domain.Key{GroupID: groupID, Kind: kind})
	if !ok {
		return false
	}
	v.(*armedTimer).stop()
	return true
}

// Handle returns the timer armed for a key
func (s *DeletionScheduler) Handle(key domain.Key) (TimerHandle, bool) {
	v, ok := s.timers.Load(key)
	if !ok {
		return TimerHandle{}, false
	}
	entry := v.(*armedTimer)
	return TimerHandle{Key: key, MessageID: entry.messageID, ID: entry.id, entry: entry}, true
}

// Armed lists the keys with a pending timer
func (s *DeletionScheduler) Armed() []domain.Key {
	var keys []domain.Key
	s.timers.Range(func(k, _ any) bool {
		keys = append(keys, k.(domain.Key))
		return true
	})
	return keys
}

// Stop cancels every pending timer and waits for running deletions
func (s *DeletionScheduler) Stop() {
	s.timers.Range(func(k, v any) bool {
		if s.timers.CompareAndDelete(k, v) {
			v.(*armedTimer).stop()
		}
		return true
	})
	s.wg.Wait()
}

func (s *DeletionScheduler) fire(key domain.Key, entry *armedTimer) {
	if !s.timers.CompareAndDelete(key, entry) {
		return
	}
	entry.mu.Lock()
	if entry.stopped {
		entry.mu.Unlock()
		return
	}
	entry.stopped = true
	entry.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.deleteTimeout)
	defer cancel()

	outcome := domain.Outcome{
		Type:      domain.OutcomeTimerFired,
		Key:       key,
		MessageID: entry.messageID,
		Target:    entry.target,
	}
	if err := s.deleter.Delete(ctx, entry.target, entry.messageID); err != nil {
		outcome.Err = fmt.Errorf("%w: %w", domain.ErrCleanupFailed, err)
	}
	s.tracker.ClearIf(ctx, key, entry.messageID)

	s.observer.Observe(ctx, outcome)
}

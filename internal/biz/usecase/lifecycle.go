package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
	"github.com/DevRickLin/feishu-greeter/internal/biz/repo"
)

// State is the last state an event reached
type State string

const (
	StateReceived     State = "received"
	StateConfigLoaded State = "config_loaded"
	StateSkipped      State = "skipped"
	StateRendered     State = "rendered"
	StateSent         State = "sent"
	StateSendFailed   State = "send_failed"
	StateTracked      State = "tracked"
	StateTimerArmed   State = "timer_armed"
	StateNoTimer      State = "no_timer"
)

// EngineConfig holds lifecycle engine settings
type EngineConfig struct {
	SendTimeout   time.Duration
	DeleteTimeout time.Duration
}

// DefaultEngineConfig is the default engine configuration
var DefaultEngineConfig = EngineConfig{
	SendTimeout:   10 * time.Second,
	DeleteTimeout: 5 * time.Second,
}

// Result describes how an event was processed
type Result struct {
	EventID   string
	Key       domain.Key
	State     State
	Skip      domain.SkipReason
	Text      string
	MessageID string
	Target    domain.Target
	Fallback  bool
	Previous  *domain.TrackedMessage
	Timer     *TimerHandle
}

// LifecycleUsecase turns membership events into welcome and goodbye messages
type LifecycleUsecase struct {
	configRepo repo.ConfigRepo
	groupRepo  repo.GroupRepo
	transport  repo.Transport
	tracker    *DeliveryTracker
	scheduler  *DeletionScheduler
	observer   repo.Observer
	locks      *keyLocker
	cfg        EngineConfig
	now        func() time.Time
	log        zerolog.Logger
}

// NewLifecycleUsecase creates the lifecycle engine
func NewLifecycleUsecase(
	configRepo repo.ConfigRepo,
	groupRepo repo.GroupRepo,
	transport repo.Transport,
	tracker *DeliveryTracker,
	scheduler *DeletionScheduler,
	observer repo.Observer,
	cfg EngineConfig,
	logger zerolog.Logger,
) *LifecycleUsecase {
	if observer == nil {
		observer = repo.NopObserver
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultEngineConfig.SendTimeout
	}
	if cfg.DeleteTimeout <= 0 {
		cfg.DeleteTimeout = DefaultEngineConfig.DeleteTimeout
	}
	return &LifecycleUsecase{
		configRepo: configRepo,
		groupRepo:  groupRepo,
		transport:  transport,
		tracker:    tracker,
		scheduler:  scheduler,
		observer:   observer,
		locks:      newKeyLocker(),
		cfg:        cfg,
		now:        time.Now,
		log:        logger.With().Str("component", "engine").Logger(),
	}
}

// HandleEvent processes one membership event. Only a failed send of the new
// message is returned as an error (wrapping domain.ErrDeliveryFailed), or the
// context error when ctx ends while waiting behind another event of the key.
func (uc *LifecycleUsecase) HandleEvent(ctx context.Context, ev domain.MembershipEvent) (*Result, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	key := ev.Key()
	res := &Result{EventID: ev.ID, Key: key, State: StateReceived}

	// Events of one key run one at a time; other keys are not blocked
	unlock := uc.locks.Lock(key)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return res, err
	}

	// 1. Load config snapshot
	cfg, err := uc.loadConfig(ctx, key)
	if err != nil {
		uc.log.Warn().Err(err).Str("key", key.String()).Msg("config store degraded, suppressing message")
		return uc.skip(ctx, res, domain.SkipConfigUnavailable, err), nil
	}
	res.State = StateConfigLoaded
	if cfg == nil {
		return uc.skip(ctx, res, domain.SkipNoConfig, nil), nil
	}
	if !cfg.IsEnabled {
		return uc.skip(ctx, res, domain.SkipDisabled, nil), nil
	}

	// 2. Render
	text := domain.Render(cfg.Content, uc.bindings(ctx, cfg, &ev))
	if strings.TrimSpace(text) == "" {
		text = ""
	}
	decision := domain.Decide(cfg, &ev, text)
	if decision.Skipped() {
		var cause error
		if decision.Skip == domain.SkipEmptyRender {
			cause = domain.ErrRenderNoop
		}
		return uc.skip(ctx, res, decision.Skip, cause), nil
	}
	res.State = StateRendered
	res.Text = text

	// 3. Deliver
	target, msgID, err := uc.deliver(ctx, res, ev.User, decision, text)
	if err != nil {
		res.State = StateSendFailed
		res.Target = target
		uc.observer.Observe(ctx, domain.Outcome{
			Type:    domain.OutcomeSendFailed,
			EventID: ev.ID,
			Key:     key,
			Target:  target,
			Err:     err,
		})
		return res, fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
	}
	res.State = StateSent
	res.Target = target
	res.MessageID = msgID
	uc.observer.Observe(ctx, domain.Outcome{
		Type:      domain.OutcomeSent,
		EventID:   ev.ID,
		Key:       key,
		MessageID: msgID,
		Target:    target,
	})

	// 4. Track, then clean up the previous message
	sentAt := uc.now()
	tracked := domain.TrackedMessage{
		GroupID:   key.GroupID,
		Kind:      key.Kind,
		MessageID: msgID,
		Target:    target,
		SentAt:    sentAt,
	}
	if decision.ArmTimer {
		tracked.DeleteAt = sentAt.Add(decision.Delay)
	}
	prev := uc.tracker.RecordSent(ctx, tracked)
	res.Previous = prev
	res.State = StateTracked

	// A superseded message keeps no timer, whether or not B arms one
	if prev != nil && prev.MessageID != msgID {
		uc.cancelTimer(prev)
	}
	if decision.DeletePrevious && prev != nil && prev.MessageID != msgID {
		uc.deletePrevious(ctx, ev.ID, prev)
	}

	// 5. Auto-delete timer
	if !decision.ArmTimer {
		res.State = StateNoTimer
		return res, nil
	}
	h := uc.scheduler.Arm(key, target, msgID, decision.Delay)
	res.Timer = &h
	res.State = StateTimerArmed
	uc.observer.Observe(ctx, domain.Outcome{
		Type:      domain.OutcomeTimerArmed,
		EventID:   ev.ID,
		Key:       key,
		MessageID: msgID,
		Target:    target,
		Delay:     decision.Delay,
	})
	return res, nil
}

// Recover re-arms auto-delete timers of tracked messages loaded from storage.
// Overdue messages are deleted right away.
func (uc *LifecycleUsecase) Recover(ctx context.Context) int {
	now := uc.now()
	count := 0
	for _, m := range uc.tracker.Snapshot() {
		if !m.HasDeadline() {
			continue
		}
		delay := m.DeleteAt.Sub(now)
		if delay < 0 {
			delay = 0
		}
		uc.scheduler.Arm(m.Key(), m.Target, m.MessageID, delay)
		count++
	}
	if count > 0 {
		uc.log.Info().Int("timers", count).Msg("re-armed auto-delete timers")
	}
	return count
}

func (uc *LifecycleUsecase) loadConfig(ctx context.Context, key domain.Key) (*domain.LifecycleConfig, error) {
	cfg, err := uc.configRepo.GetLifecycleConfig(ctx, key.GroupID, key.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigUnavailable, err)
	}
	if cfg == nil {
		return nil, nil
	}
	snap := cfg.Snapshot()
	return &snap, nil
}

// bindings resolves template variables. Group metadata is only fetched when
// the template uses it, and lookup failures render as empty values.
func (uc *LifecycleUsecase) bindings(ctx context.Context, cfg *domain.LifecycleConfig, ev *domain.MembershipEvent) domain.Bindings {
	uses := func(name string) bool {
		return strings.Contains(cfg.Content, "{"+name+"}")
	}

	var meta domain.GroupMeta
	if uc.groupRepo != nil {
		if uses(domain.VarCount) {
			n, err := uc.groupRepo.MemberCount(ctx, ev.GroupID)
			if err != nil {
				uc.log.Debug().Err(err).Str("group_id", ev.GroupID).Msg("member count unavailable")
			}
			meta.MemberCount = n
		}
		if uses(domain.VarChatName) {
			name, err := uc.groupRepo.GroupName(ctx, ev.GroupID)
			if err != nil {
				uc.log.Debug().Err(err).Str("group_id", ev.GroupID).Msg("group name unavailable")
			}
			meta.Name = name
		}
		if uses(domain.VarRules) {
			link, err := uc.groupRepo.RulesLink(ctx, ev.GroupID)
			if err != nil {
				uc.log.Debug().Err(err).Str("group_id", ev.GroupID).Msg("rules link unavailable")
			}
			meta.RulesLink = link
		}
	}
	return domain.NewBindings(ev.User, meta)
}

// deliver sends to the decided target, falling back from a private chat to
// the group when the user cannot be reached directly
func (uc *LifecycleUsecase) deliver(ctx context.Context, res *Result, user domain.User, d domain.Decision, text string) (domain.Target, string, error) {
	target := d.Target

	if target.IsDirect() {
		if !uc.transport.CanDirectMessage(ctx, user) {
			target = uc.fallback(ctx, res, target, domain.ErrDirectDeliveryUnavailable)
		}
	}

	msgID, err := uc.send(ctx, target, text, d.Attachment)
	if err != nil && target.IsDirect() && d.AllowFallback && errors.Is(err, domain.ErrDirectDeliveryUnavailable) {
		target = uc.fallback(ctx, res, target, err)
		msgID, err = uc.send(ctx, target, text, d.Attachment)
	}
	return target, msgID, err
}

func (uc *LifecycleUsecase) fallback(ctx context.Context, res *Result, from domain.Target, cause error) domain.Target {
	res.Fallback = true
	uc.observer.Observe(ctx, domain.Outcome{
		Type:    domain.OutcomeFallbackToGroup,
		EventID: res.EventID,
		Key:     res.Key,
		Target:  from,
		Err:     cause,
	})
	return domain.GroupTarget(from.GroupID)
}

func (uc *LifecycleUsecase) send(ctx context.Context, target domain.Target, text string, att *domain.Attachment) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.SendTimeout)
	defer cancel()
	return uc.transport.Send(ctx, target, text, att)
}

// cancelTimer cancels the timer armed for prev, leaving newer timers alone
func (uc *LifecycleUsecase) cancelTimer(prev *domain.TrackedMessage) {
	if h, ok := uc.scheduler.Handle(prev.Key()); ok && h.MessageID == prev.MessageID {
		uc.scheduler.Cancel(h)
	}
}

func (uc *LifecycleUsecase) deletePrevious(ctx context.Context, eventID string, prev *domain.TrackedMessage) {
	dctx, cancel := context.WithTimeout(ctx, uc.cfg.DeleteTimeout)
	defer cancel()

	outcome := domain.Outcome{
		Type:      domain.OutcomePreviousDeleted,
		EventID:   eventID,
		Key:       prev.Key(),
		MessageID: prev.MessageID,
		Target:    prev.Target,
	}
	if err := uc.transport.Delete(dctx, prev.Target, prev.MessageID); err != nil {
		outcome.Type = domain.OutcomePreviousDeleteFailed
		outcome.Err = fmt.Errorf("%w: %w", domain.ErrCleanupFailed, err)
	}
	uc.observer.Observe(ctx, outcome)
}

func (uc *LifecycleUsecase) skip(ctx context.Context, res *Result, reason domain.SkipReason, cause error) *Result {
	res.State = StateSkipped
	res.Skip = reason
	uc.observer.Observe(ctx, domain.Outcome{
		Type:    domain.OutcomeSkipped,
		EventID: res.EventID,
		Key:     res.Key,
		Reason:  reason,
		Err:     cause,
	})
	return res
}

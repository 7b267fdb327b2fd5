package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
	"github.com/DevRickLin/feishu-greeter/internal/biz/repo"
	"github.com/DevRickLin/feishu-greeter/internal/infra/feishu"
)

// feishuAPI is the part of the Feishu client used by the data layer
type feishuAPI interface {
	SendText(ctx context.Context, receiveIDType, receiveID, text string) (string, error)
	SendCard(ctx context.Context, receiveIDType, receiveID, text string, buttons json.RawMessage) (string, error)
	DeleteMessage(ctx context.Context, messageID string) error
	GetChatInfo(ctx context.Context, chatID string) (*feishu.ChatInfo, error)
}

// RateConfig is the per-chat send rate
type RateConfig struct {
	PerSecond float64
	Burst     int
}

const (
	limiterIdleTTL      = 10 * time.Minute
	limiterCleanupEvery = 1000
	chatLookupTimeout   = 10 * time.Second
)

// sendBucket is the limiter of one chat and the last time it was used
type sendBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// feishuTransport implements repo.Transport over the Feishu IM API
type feishuTransport struct {
	api      feishuAPI
	contacts repo.ContactRepo
	rate     rate.Limit
	burst    int

	mu      sync.Mutex
	buckets map[string]*sendBucket
	idleTTL time.Duration
	sweepN  int
	sweepAt int
	now     func() time.Time
	log     zerolog.Logger
}

// NewFeishuTransport creates the Feishu message transport
func NewFeishuTransport(api feishuAPI, contacts repo.ContactRepo, rc RateConfig, logger zerolog.Logger) repo.Transport {
	if rc.Burst <= 0 {
		rc.Burst = 1
	}
	limit := rate.Inf
	if rc.PerSecond > 0 {
		limit = rate.Limit(rc.PerSecond)
	}
	return &feishuTransport{
		api:      api,
		contacts: contacts,
		rate:     limit,
		burst:    rc.Burst,
		buckets:  make(map[string]*sendBucket),
		idleTTL:  limiterIdleTTL,
		sweepAt:  limiterCleanupEvery,
		now:      time.Now,
		log:      logger.With().Str("component", "transport").Logger(),
	}
}

// limiter returns the bucket for key. Every sweepAt lookups, buckets idle
// for idleTTL are dropped so private chats do not accumulate forever.
func (t *feishuTransport) limiter(key string) *rate.Limiter {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Sweep before touching key so an idle bucket for key is replaced too
	t.sweepN++
	if t.sweepN >= t.sweepAt {
		for k, b := range t.buckets {
			if now.Sub(b.lastSeen) >= t.idleTTL {
				delete(t.buckets, k)
			}
		}
		t.sweepN = 0
	}

	b, ok := t.buckets[key]
	if !ok {
		b = &sendBucket{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Send delivers a lifecycle message
func (t *feishuTransport) Send(ctx context.Context, target domain.Target, text string, att *domain.Attachment) (string, error) {
	idType, id := larkim.ReceiveIdTypeChatId, target.GroupID
	if target.IsDirect() {
		idType, id = larkim.ReceiveIdTypeOpenId, target.UserID
	}

	if err := t.limiter(idType + ":" + id).Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	var msgID string
	var err error
	if att != nil && len(att.Buttons) > 0 {
		msgID, err = t.api.SendCard(ctx, idType, id, text, att.Buttons)
	} else {
		msgID, err = t.api.SendText(ctx, idType, id, text)
	}
	if err == nil {
		return msgID, nil
	}

	var apiErr *feishu.APIError
	if target.IsDirect() && errors.As(err, &apiErr) && apiErr.Unreachable() {
		// The user blocked the bot or left; stop offering private delivery
		if t.contacts != nil {
			if rmErr := t.contacts.RemoveContact(ctx, target.UserID); rmErr != nil {
				t.log.Warn().Err(rmErr).Str("user_id", target.UserID).Msg("failed to remove contact")
			}
		}
		return "", fmt.Errorf("%w: %w", domain.ErrDirectDeliveryUnavailable, err)
	}
	return "", err
}

// Delete recalls a message
func (t *feishuTransport) Delete(ctx context.Context, target domain.Target, messageID string) error {
	return t.api.DeleteMessage(ctx, messageID)
}

// CanDirectMessage reports whether the user has opened a private chat with the bot
func (t *feishuTransport) CanDirectMessage(ctx context.Context, user domain.User) bool {
	if user.ID == "" || t.contacts == nil {
		return false
	}
	ok, err := t.contacts.HasContact(ctx, user.ID)
	if err != nil {
		t.log.Warn().Err(err).Str("user_id", user.ID).Msg("contact lookup failed")
		return false
	}
	return ok
}

// GroupConfig configures group metadata lookups
type GroupConfig struct {
	CacheTTL        time.Duration
	RulesLinkFormat string // fallback rules link, %s is replaced by the chat ID
}

type cachedChat struct {
	info    *feishu.ChatInfo
	expires time.Time
}

// feishuGroupRepo implements repo.GroupRepo with a short lived chat info cache
type feishuGroupRepo struct {
	api   feishuAPI
	rules repo.RulesRepo
	cfg   GroupConfig
	sf    singleflight.Group
	mu    sync.Mutex
	cache map[string]cachedChat
	now   func() time.Time
}

// NewFeishuGroupRepo creates the group metadata repository
func NewFeishuGroupRepo(api feishuAPI, rules repo.RulesRepo, cfg GroupConfig) repo.GroupRepo {
	return &feishuGroupRepo{
		api:   api,
		rules: rules,
		cfg:   cfg,
		cache: make(map[string]cachedChat),
		now:   time.Now,
	}
}

// MemberCount returns the number of users in the chat
func (r *feishuGroupRepo) MemberCount(ctx context.Context, groupID string) (int, error) {
	info, err := r.chatInfo(ctx, groupID)
	if err != nil {
		return 0, err
	}
	return info.MemberCount, nil
}

// GroupName returns the chat name
func (r *feishuGroupRepo) GroupName(ctx context.Context, groupID string) (string, error) {
	info, err := r.chatInfo(ctx, groupID)
	if err != nil {
		return "", err
	}
	return info.Name, nil
}

// RulesLink returns the stored rules link, or the configured fallback
func (r *feishuGroupRepo) RulesLink(ctx context.Context, groupID string) (string, error) {
	if r.rules != nil {
		link, err := r.rules.GetRulesLink(ctx, groupID)
		if err != nil {
			return "", err
		}
		if link != "" {
			return link, nil
		}
	}
	if strings.Contains(r.cfg.RulesLinkFormat, "%s") {
		return fmt.Sprintf(r.cfg.RulesLinkFormat, groupID), nil
	}
	return r.cfg.RulesLinkFormat, nil
}

func (r *feishuGroupRepo) chatInfo(ctx context.Context, groupID string) (*feishu.ChatInfo, error) {
	r.mu.Lock()
	if c, ok := r.cache[groupID]; ok && r.now().Before(c.expires) {
		r.mu.Unlock()
		return c.info, nil
	}
	r.mu.Unlock()

	// Joins arrive in bursts; one lookup per chat is enough. The lookup is
	// shared, so it must not end with whichever caller started it.
	ch := r.sf.DoChan(groupID, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), chatLookupTimeout)
		defer cancel()
		info, err := r.api.GetChatInfo(lookupCtx, groupID)
		if err != nil {
			return nil, err
		}
		if r.cfg.CacheTTL > 0 {
			r.mu.Lock()
			r.cache[groupID] = cachedChat{info: info, expires: r.now().Add(r.cfg.CacheTTL)}
			r.mu.Unlock()
		}
		return info, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("get chat info: %w", res.Err)
		}
		return res.Val.(*feishu.ChatInfo), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

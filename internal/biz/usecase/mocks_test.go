package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
)

// Mock implementations

var testLogger = zerolog.Nop()

type mockConfigRepo struct {
	mu      sync.Mutex
	configs map[domain.Key]*domain.LifecycleConfig
	err     error
}

func newMockConfigRepo(cfgs ...*domain.LifecycleConfig) *mockConfigRepo {
	m := &mockConfigRepo{configs: make(map[domain.Key]*domain.LifecycleConfig)}
	for _, c := range cfgs {
		m.configs[c.Key()] = c
	}
	return m
}

func (m *mockConfigRepo) GetLifecycleConfig(ctx context.Context, groupID string, kind domain.Kind) (*domain.LifecycleConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.configs[domain.Key{GroupID: groupID, Kind: kind}], nil
}

func (m *mockConfigRepo) SaveLifecycleConfig(ctx context.Context, cfg *domain.LifecycleConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.Key()] = cfg
	return nil
}

func (m *mockConfigRepo) ListLifecycleConfigs(ctx context.Context, groupID string) ([]*domain.LifecycleConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.LifecycleConfig
	for k, c := range m.configs {
		if k.GroupID == groupID {
			out = append(out, c)
		}
	}
	return out, nil
}

type sentMessage struct {
	ID     string
	Target domain.Target
	Text   string
	Att    *domain.Attachment
}

type deletedMessage struct {
	Target    domain.Target
	MessageID string
}

type mockTransport struct {
	mu        sync.Mutex
	seq       int
	sent      []sentMessage
	deleted   []deletedMessage
	canDM     map[string]bool
	sendErr   error
	dmErr     error // returned for direct targets only
	deleteErr error
	delay     time.Duration

	inFlight    map[string]int
	maxInFlight map[string]int
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		canDM:       make(map[string]bool),
		inFlight:    make(map[string]int),
		maxInFlight: make(map[string]int),
	}
}

func (m *mockTransport) Send(ctx context.Context, target domain.Target, text string, att *domain.Attachment) (string, error) {
	m.mu.Lock()
	m.inFlight[target.GroupID]++
	if m.inFlight[target.GroupID] > m.maxInFlight[target.GroupID] {
		m.maxInFlight[target.GroupID] = m.inFlight[target.GroupID]
	}
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight[target.GroupID]--

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if target.IsDirect() && m.dmErr != nil {
		return "", m.dmErr
	}
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.seq++
	id := fmt.Sprintf("msg-%d", m.seq)
	m.sent = append(m.sent, sentMessage{ID: id, Target: target, Text: text, Att: att})
	return id, nil
}

func (m *mockTransport) Delete(ctx context.Context, target domain.Target, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, deletedMessage{Target: target, MessageID: messageID})
	return m.deleteErr
}

func (m *mockTransport) CanDirectMessage(ctx context.Context, user domain.User) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canDM[user.ID]
}

func (m *mockTransport) sentMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

func (m *mockTransport) deletedMessages() []deletedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]deletedMessage(nil), m.deleted...)
}

type mockGroupRepo struct {
	name  string
	count int
	rules string
	err   error
	calls int
	mu    sync.Mutex
}

func (m *mockGroupRepo) MemberCount(ctx context.Context, groupID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.count, m.err
}

func (m *mockGroupRepo) GroupName(ctx context.Context, groupID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.name, m.err
}

func (m *mockGroupRepo) RulesLink(ctx context.Context, groupID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.rules, m.err
}

type mockTrackerRepo struct {
	mu   sync.Mutex
	msgs map[domain.Key]*domain.TrackedMessage
	err  error
}

func newMockTrackerRepo() *mockTrackerRepo {
	return &mockTrackerRepo{msgs: make(map[domain.Key]*domain.TrackedMessage)}
}

func (m *mockTrackerRepo) Save(ctx context.Context, msg *domain.TrackedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *msg
	m.msgs[msg.Key()] = &cp
	return nil
}

func (m *mockTrackerRepo) Delete(ctx context.Context, key domain.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.msgs, key)
	return m.err
}

func (m *mockTrackerRepo) DeleteIf(ctx context.Context, key domain.Key, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.msgs[key]; ok && cur.MessageID == messageID {
		delete(m.msgs, key)
	}
	return m.err
}

func (m *mockTrackerRepo) get(key domain.Key) *domain.TrackedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.msgs[key]
}

func (m *mockTrackerRepo) ListAll(ctx context.Context) ([]*domain.TrackedMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.TrackedMessage
	for _, msg := range m.msgs {
		out = append(out, msg)
	}
	return out, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []domain.Outcome
}

func (r *recordingObserver) Observe(ctx context.Context, o domain.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recordingObserver) ofType(t domain.OutcomeType) []domain.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Outcome
	for _, o := range r.outcomes {
		if o.Type == t {
			out = append(out, o)
		}
	}
	return out
}

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock captures timers so tests decide when they fire
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// fireAll runs every timer that was not stopped
func (c *fakeClock) fireAll() int {
	c.mu.Lock()
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
	return len(due)
}

func (c *fakeClock) all() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer(nil), c.timers...)
}

var errBoom = errors.New("boom")

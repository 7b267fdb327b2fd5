package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
	"github.com/DevRickLin/feishu-greeter/internal/infra/feishu"
)

type fakeSource struct {
	onMember func(feishu.MemberChange)
	onDirect func(feishu.DirectMessage)
	stopped  bool
}

func (f *fakeSource) OnMemberChange(h func(feishu.MemberChange)) { f.onMember = h }
func (f *fakeSource) OnDirectMessage(h func(feishu.DirectMessage)) { f.onDirect = h }
func (f *fakeSource) Start(ctx context.Context) error { return nil }
func (f *fakeSource) Stop() { f.stopped = true }

type recordingDispatcher struct {
	mu       sync.Mutex
	events   []domain.MembershipEvent
	contacts map[string]string
}

func (r *recordingDispatcher) Dispatch(ev domain.MembershipEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingDispatcher) RecordContact(ctx context.Context, userID, chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[userID] = chatID
}

func newTestServer() (*FeishuServer, *fakeSource, *recordingDispatcher) {
	src := &fakeSource{}
	d := &recordingDispatcher{contacts: map[string]string{}}
	s := NewFeishuServer(src, d, zerolog.Nop())
	s.Start(context.Background())
	return s, src, d
}

func TestMembershipEvents(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	events := MembershipEvents(feishu.MemberChange{
		EventID:  "ev_1",
		ChatID:   "oc_1",
		Joined:   true,
		CreateAt: at,
		Users: []feishu.ChatUser{
			{OpenID: "ou_1", Name: "Ann Lee"},
			{OpenID: "ou_2", Name: "Bob"},
		},
	})

	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	first := events[0]
	if first.Kind != domain.EventJoin || first.GroupID != "oc_1" || !first.OccurredAt.Equal(at) {
		t.Errorf("Unexpected event: %+v", first)
	}
	if first.User.ID != "ou_1" || first.User.FirstName != "Ann" || first.User.LastName != "Lee" {
		t.Errorf("Unexpected user: %+v", first.User)
	}
	if events[0].ID == events[1].ID {
		t.Error("Expected distinct event IDs per user")
	}

	leave := MembershipEvents(feishu.MemberChange{EventID: "ev_2", ChatID: "oc_1", Users: []feishu.ChatUser{{OpenID: "ou_1"}}})
	if len(leave) != 1 || leave[0].Kind != domain.EventLeave || leave[0].ID != "ev_2" {
		t.Errorf("Unexpected leave events: %+v", leave)
	}

	noID := MembershipEvents(feishu.MemberChange{ChatID: "oc_1", Users: []feishu.ChatUser{{OpenID: "ou_1"}}})
	if noID[0].ID == "" {
		t.Error("Expected a generated event ID")
	}
}

func TestFeishuServer_DeduplicatesEvents(t *testing.T) {
	s, src, d := newTestServer()
	now := time.Now()
	s.now = func() time.Time { return now }

	change := feishu.MemberChange{EventID: "ev_1", ChatID: "oc_1", Joined: true, Users: []feishu.ChatUser{{OpenID: "ou_1"}}}
	src.onMember(change)
	src.onMember(change)
	if len(d.events) != 1 {
		t.Fatalf("Expected duplicate to be ignored, got %d events", len(d.events))
	}

	// Redelivery after the TTL is processed again
	now = now.Add(seenTTL + time.Second)
	src.onMember(change)
	if len(d.events) != 2 {
		t.Errorf("Expected event after TTL, got %d events", len(d.events))
	}
}

func TestFeishuServer_RecordsDirectContacts(t *testing.T) {
	_, src, d := newTestServer()
	src.onDirect(feishu.DirectMessage{ChatID: "oc_p2p", SenderID: "ou_1"})
	if d.contacts["ou_1"] != "oc_p2p" {
		t.Errorf("Expected contact recorded, got %v", d.contacts)
	}
}

func TestFeishuServer_Stop(t *testing.T) {
	s, src, _ := newTestServer()
	s.Stop()
	if !src.stopped {
		t.Error("Expected source stopped")
	}
}

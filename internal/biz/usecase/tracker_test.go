package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
)

func tracked(group string, kind domain.Kind, id string) domain.TrackedMessage {
	return domain.TrackedMessage{
		GroupID:   group,
		Kind:      kind,
		MessageID: id,
		Target:    domain.GroupTarget(group),
		SentAt:    time.Now(),
	}
}

func TestDeliveryTracker_RecordSentReturnsPrevious(t *testing.T) {
	ctx := context.Background()
	tr := NewDeliveryTracker(nil, testLogger)

	if prev := tr.RecordSent(ctx, tracked("oc_1", domain.KindWelcome, "m1")); prev != nil {
		t.Fatalf("Expected no previous message, got %+v", prev)
	}

	prev := tr.RecordSent(ctx, tracked("oc_1", domain.KindWelcome, "m2"))
	if prev == nil || prev.MessageID != "m1" {
		t.Fatalf("Expected previous m1, got %+v", prev)
	}

	// Other kinds and groups are independent keys
	if prev := tr.RecordSent(ctx, tracked("oc_1", domain.KindGoodbye, "g1")); prev != nil {
		t.Errorf("Expected goodbye key to be empty, got %+v", prev)
	}
	if prev := tr.RecordSent(ctx, tracked("oc_2", domain.KindWelcome, "x1")); prev != nil {
		t.Errorf("Expected second group to be empty, got %+v", prev)
	}

	if got := tr.Peek("oc_1", domain.KindWelcome); got == nil || got.MessageID != "m2" {
		t.Errorf("Expected m2 tracked, got %+v", got)
	}
}

func TestDeliveryTracker_PeekReturnsCopy(t *testing.T) {
	ctx := context.Background()
	tr := NewDeliveryTracker(nil, testLogger)
	tr.RecordSent(ctx, tracked("oc_1", domain.KindWelcome, "m1"))

	got := tr.Peek("oc_1", domain.KindWelcome)
	got.MessageID = "mutated"

	if again := tr.Peek("oc_1", domain.KindWelcome); again.MessageID != "m1" {
		t.Errorf("Peek leaked internal state, got %q", again.MessageID)
	}
	if tr.Peek("oc_404", domain.KindWelcome) != nil {
		t.Error("Expected nil for unknown key")
	}
}

func TestDeliveryTracker_ClearAndClearIf(t *testing.T) {
	ctx := context.Background()
	store := newMockTrackerRepo()
	tr := NewDeliveryTracker(store, testLogger)
	key := domain.Key{GroupID: "oc_1", Kind: domain.KindWelcome}

	tr.RecordSent(ctx, tracked("oc_1", domain.KindWelcome, "m1"))
	tr.RecordSent(ctx, tracked("oc_1", domain.KindWelcome, "m2"))

	if tr.ClearIf(ctx, key, "m1") {
		t.Error("ClearIf must not clear a newer message")
	}
	if tr.Peek("oc_1", domain.KindWelcome) == nil {
		t.Fatal("Expected m2 still tracked")
	}
	if !tr.ClearIf(ctx, key, "m2") {
		t.Error("Expected ClearIf to clear matching message")
	}
	if tr.Peek("oc_1", domain.KindWelcome) != nil {
		t.Error("Expected key to be cleared")
	}
	if got := store.get(key); got != nil {
		t.Errorf("Expected store entry removed, got %+v", got)
	}

	tr.RecordSent(ctx, tracked("oc_1", domain.KindWelcome, "m3"))
	tr.Clear(ctx, "oc_1", domain.KindWelcome)
	if tr.Peek("oc_1", domain.KindWelcome) != nil {
		t.Error("Expected Clear to remove entry")
	}
}

func TestDeliveryTracker_PersistsAndLoads(t *testing.T) {
	ctx := context.Background()
	store := newMockTrackerRepo()

	first := NewDeliveryTracker(store, testLogger)
	first.RecordSent(ctx, tracked("oc_1", domain.KindWelcome, "m1"))
	first.RecordSent(ctx, tracked("oc_1", domain.KindGoodbye, "g1"))

	second := NewDeliveryTracker(store, testLogger)
	n, err := second.Load(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 loaded messages, got %d", n)
	}
	if got := second.Peek("oc_1", domain.KindGoodbye); got == nil || got.MessageID != "g1" {
		t.Errorf("Expected g1 after load, got %+v", got)
	}
}

func TestDeliveryTracker_StoreErrorsDoNotBlock(t *testing.T) {
	ctx := context.Background()
	store := newMockTrackerRepo()
	store.err = errBoom
	tr := NewDeliveryTracker(store, testLogger)

	tr.RecordSent(ctx, tracked("oc_1", domain.KindWelcome, "m1"))
	if got := tr.Peek("oc_1", domain.KindWelcome); got == nil {
		t.Error("Expected in-memory record despite store failure")
	}
}

func TestDeliveryTracker_ConcurrentRecordSentLosesNothing(t *testing.T) {
	ctx := context.Background()
	tr := NewDeliveryTracker(nil, testLogger)

	const n = 100
	prevs := make(chan string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			prev := tr.RecordSent(ctx, tracked("oc_1", domain.KindWelcome, fmt.Sprintf("m%d", i)))
			if prev != nil {
				prevs <- prev.MessageID
			}
		}(i)
	}
	wg.Wait()
	close(prevs)

	seen := make(map[string]bool)
	for id := range prevs {
		if seen[id] {
			t.Fatalf("Message %s returned as previous twice", id)
		}
		seen[id] = true
	}
	final := tr.Peek("oc_1", domain.KindWelcome)
	if seen[final.MessageID] {
		t.Fatalf("Final message %s was also returned as previous", final.MessageID)
	}
	// Every message is either someone's previous or the final one
	if len(seen)+1 != n {
		t.Errorf("Expected %d previous messages, got %d", n-1, len(seen))
	}
}

package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
)

func TestOutcomeObserver_CountsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	o := NewOutcomeObserver(reg, zerolog.New(&buf))
	ctx := context.Background()
	welcome := domain.Key{GroupID: "oc_1", Kind: domain.KindWelcome}

	o.Observe(ctx, domain.Outcome{Type: domain.OutcomeSent, Key: welcome, MessageID: "om_1"})
	o.Observe(ctx, domain.Outcome{Type: domain.OutcomeSent, Key: welcome, MessageID: "om_2"})
	o.Observe(ctx, domain.Outcome{Type: domain.OutcomeTimerArmed, Key: welcome, Delay: 30 * time.Second})
	o.Observe(ctx, domain.Outcome{
		Type: domain.OutcomeSendFailed,
		Key:  domain.Key{GroupID: "oc_1", Kind: domain.KindGoodbye},
		Err:  errors.New("boom"),
	})

	if got := testutil.ToFloat64(o.outcomes.WithLabelValues("welcome", "sent")); got != 2 {
		t.Errorf("Expected 2 sent, got %v", got)
	}
	if got := testutil.ToFloat64(o.outcomes.WithLabelValues("goodbye", "send_failed")); got != 1 {
		t.Errorf("Expected 1 send_failed, got %v", got)
	}
	if n := testutil.CollectAndCount(o.delays); n != 1 {
		t.Errorf("Expected delay histogram to be collected, got %d", n)
	}

	logs := buf.String()
	if !strings.Contains(logs, `"outcome":"send_failed"`) || !strings.Contains(logs, `"level":"error"`) {
		t.Errorf("Expected send failure logged at error level, got %s", logs)
	}
	if !strings.Contains(logs, `"message_id":"om_2"`) {
		t.Errorf("Expected message id in logs, got %s", logs)
	}
}

func TestOutcomeObserver_NilRegisterer(t *testing.T) {
	o := NewOutcomeObserver(nil, zerolog.Nop())
	o.Observe(context.Background(), domain.Outcome{Type: domain.OutcomeSkipped, Reason: domain.SkipDisabled})
	if got := testutil.ToFloat64(o.outcomes.WithLabelValues("", "skipped")); got != 1 {
		t.Errorf("Expected 1 skipped, got %v", got)
	}
}

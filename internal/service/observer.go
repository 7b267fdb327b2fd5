package service

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
)

// OutcomeObserver logs lifecycle outcomes and counts them in Prometheus
type OutcomeObserver struct {
	log      zerolog.Logger
	outcomes *prometheus.CounterVec
	delays   prometheus.Histogram
}

// NewOutcomeObserver creates the observer and registers its metrics with reg
func NewOutcomeObserver(reg prometheus.Registerer, logger zerolog.Logger) *OutcomeObserver {
	o := &OutcomeObserver{
		log: logger.With().Str("component", "lifecycle").Logger(),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifecycle_outcomes_total",
				Help: "Lifecycle message outcomes by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		delays: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lifecycle_auto_delete_delay_seconds",
				Help:    "Auto-delete delays of armed timers.",
				Buckets: []float64{5, 15, 30, 60, 300, 900, 3600, 86400},
			},
		),
	}
	if reg != nil {
		reg.MustRegister(o.outcomes, o.delays)
	}
	return o
}

// Observe records one outcome
func (o *OutcomeObserver) Observe(ctx context.Context, out domain.Outcome) {
	o.outcomes.WithLabelValues(string(out.Key.Kind), string(out.Type)).Inc()
	if out.Type == domain.OutcomeTimerArmed {
		o.delays.Observe(out.Delay.Seconds())
	}

	var ev *zerolog.Event
	switch {
	case out.Type == domain.OutcomeSendFailed:
		ev = o.log.Error()
	case out.Type == domain.OutcomeSkipped && out.Reason == domain.SkipConfigUnavailable:
		ev = o.log.Warn()
	case out.Err != nil:
		ev = o.log.Warn()
	default:
		ev = o.log.Info()
	}

	ev = ev.Str("outcome", string(out.Type)).
		Str("group_id", out.Key.GroupID).
		Str("kind", string(out.Key.Kind))
	if out.EventID != "" {
		ev = ev.Str("event_id", out.EventID)
	}
	if out.MessageID != "" {
		ev = ev.Str("message_id", out.MessageID)
	}
	if out.Target.Type != "" {
		ev = ev.Str("target", string(out.Target.Type))
	}
	if out.Reason != domain.SkipNone {
		ev = ev.Str("reason", string(out.Reason))
	}
	if out.Delay > 0 {
		ev = ev.Dur("delay", out.Delay)
	}
	if out.Err != nil {
		ev = ev.Err(out.Err)
	}
	ev.Msg("lifecycle outcome")
}

package repo

import (
	"context"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
)

// Observer receives lifecycle outcomes for logging and metrics
type Observer interface {
	Observe(ctx context.Context, o domain.Outcome)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, o domain.Outcome)

// Observe calls f
func (f ObserverFunc) Observe(ctx context.Context, o domain.Outcome) {
	f(ctx, o)
}

// NopObserver drops every outcome
var NopObserver Observer = ObserverFunc(func(context.Context, domain.Outcome) {})

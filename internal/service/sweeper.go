package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/DevRickLin/feishu-greeter/internal/biz/domain"
	"github.com/DevRickLin/feishu-greeter/internal/biz/repo"
)

// ArmedTimers is the part of the deletion scheduler the sweeper drives
type ArmedTimers interface {
	Armed() []domain.Key
	CancelAll(groupID string, kind domain.Kind) bool
}

// ConfigSweeper cancels armed auto-delete timers whose config was disabled
// or whose auto-delete was switched off after the message was sent
type ConfigSweeper struct {
	timers  ArmedTimers
	configs repo.ConfigRepo

	pollInterval time.Duration
	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	wg           sync.WaitGroup
	log          zerolog.Logger
}

// NewConfigSweeper creates a new config sweeper
func NewConfigSweeper(timers ArmedTimers, configs repo.ConfigRepo, interval time.Duration, logger zerolog.Logger) *ConfigSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ConfigSweeper{
		timers:       timers,
		configs:      configs,
		pollInterval: interval,
		log:          logger.With().Str("component", "sweeper").Logger(),
	}
}

// Start starts the sweep loop
func (s *ConfigSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.loop(s.stopCh)
	s.log.Info().Dur("interval", s.pollInterval).Msg("started")
}

// Stop stops the sweep loop
func (s *ConfigSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info().Msg("stopped")
}

func (s *ConfigSweeper) loop(stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-stopCh:
			return
		}
	}
}

// Sweep checks every armed timer against its current config and returns
// the number of timers cancelled
func (s *ConfigSweeper) Sweep(ctx context.Context) int {
	cancelled := 0
	for _, key := range s.timers.Armed() {
		cfg, err := s.configs.GetLifecycleConfig(ctx, key.GroupID, key.Kind)
		if err != nil {
			// Leave timers alone while the store is unavailable
			s.log.Warn().Err(err).Str("key", key.String()).Msg("config lookup failed")
			continue
		}
		if cfg != nil && cfg.IsEnabled && cfg.DeleteAfterSeconds > 0 {
			continue
		}
		if s.timers.CancelAll(key.GroupID, key.Kind) {
			cancelled++
			s.log.Info().Str("key", key.String()).Msg("auto-delete cancelled, config changed")
		}
	}
	return cancelled
}

package domain

import "time"

// SkipReason explains why an event produced no message
type SkipReason string

const (
	SkipNone              SkipReason = ""
	SkipNoConfig          SkipReason = "no_config"
	SkipDisabled          SkipReason = "disabled"
	SkipConfigUnavailable SkipReason = "config_unavailable"
	SkipEmptyRender       SkipReason = "empty_render"
)

// Decision is computed once per event from the config snapshot and the
// rendered text. The engine executes it without further branching on flags.
type Decision struct {
	Skip           SkipReason
	Target         Target
	AllowFallback  bool // a direct target may fall back to the group chat
	DeletePrevious bool
	ArmTimer       bool
	Delay          time.Duration
	Attachment     *Attachment
}

// Skipped reports whether nothing should be sent
func (d Decision) Skipped() bool {
	return d.Skip != SkipNone
}

// Decide builds the decision for an event. cfg may be nil when no config
// exists for the group and kind.
func Decide(cfg *LifecycleConfig, ev *MembershipEvent, text string) Decision {
	if cfg == nil {
		return Decision{Skip: SkipNoConfig}
	}
	if !cfg.IsEnabled {
		return Decision{Skip: SkipDisabled}
	}
	if text == "" && !cfg.HasButtons {
		return Decision{Skip: SkipEmptyRender}
	}

	d := Decision{
		Target:         GroupTarget(ev.GroupID),
		DeletePrevious: cfg.DeletePrevious,
	}
	if cfg.Kind == KindWelcome && cfg.SendAsDM && ev.User.ID != "" {
		d.Target = DirectTarget(ev.GroupID, ev.User.ID)
		d.AllowFallback = true
	}
	if cfg.DeleteAfterSeconds > 0 {
		d.ArmTimer = true
		d.Delay = time.Duration(cfg.DeleteAfterSeconds) * time.Second
	}
	if cfg.HasButtons {
		d.Attachment = &Attachment{Buttons: cfg.Buttons}
	}
	return d
}

package domain

import "time"

// OutcomeType names an observable step of lifecycle processing
type OutcomeType string

const (
	OutcomeSkipped              OutcomeType = "skipped"
	OutcomeSent                 OutcomeType = "sent"
	OutcomeSendFailed           OutcomeType = "send_failed"
	OutcomeFallbackToGroup      OutcomeType = "fallback_to_group"
	OutcomePreviousDeleted      OutcomeType = "previous_deleted"
	OutcomePreviousDeleteFailed OutcomeType = "previous_delete_failed"
	OutcomeTimerArmed           OutcomeType = "timer_armed"
	OutcomeTimerFired           OutcomeType = "timer_fired"
)

// Outcome is emitted to the observer; Err is set for failures
type Outcome struct {
	Type      OutcomeType
	EventID   string
	Key       Key
	MessageID string
	Target    Target
	Reason    SkipReason
	Delay     time.Duration
	Err       error
}

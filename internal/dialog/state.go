package dialog

import (
	"context"

	"github.com/medreach/clinic-reminder-bot/internal/store"
)

// Stage is a named point in a per-identity dialog awaiting a specific class of
// reply. The zero value is StageIdle: absent state and idle state are the same
// thing.
type Stage string

const (
	StageIdle                 Stage = ""
	StageAwaitingPhone        Stage = "awaiting_phone"
	StageAwaitingConfirmation Stage = "awaiting_tomorrow_confirmation"
	StageAwaitingReschedule   Stage = "awaiting_reschedule_choice"
	StageAwaitingReviewScore  Stage = "awaiting_review_score"
	StageAwaitingReviewDetail Stage = "awaiting_review_detail"
)

// State is one identity's dialog position plus the payload needed to resume
// after a reply. Row is a copy of the appointment row under discussion; the
// machine never assumes payload presence beyond what the stage-entry
// transition wrote.
type State struct {
	Stage Stage     `json:"stage"`
	Row   store.Row `json:"row,omitempty"`
	// Score holds the review score between awaiting_review_score and
	// awaiting_review_detail.
	Score string `json:"score,omitempty"`
}

// Idle reports whether the state is the initial/terminal idle state.
func (s State) Idle() bool {
	return s.Stage == StageIdle
}

// StateStore holds per-identity dialog state. Each transport owns an
// independent instance. The state machine is the only mutator, except the scan
// coordinator seeding a fresh flow.
type StateStore interface {
	// Get returns the identity's state; absent state is the idle State.
	Get(ctx context.Context, identity string) (State, error)
	Set(ctx context.Context, identity string, state State) error
	Clear(ctx context.Context, identity string) error
}

package models

// Outcome classifies the result of resolving a probe embedding against the
// enrolled population and the invitation ledger.
type Outcome string

const (
	// OutcomeUnknown: no enrolled identity within the match threshold.
	OutcomeUnknown Outcome = "unknown"
	// OutcomeNoActiveInvitation: the identity matched but holds no invitation
	// covering the observation time.
	OutcomeNoActiveInvitation Outcome = "no_active_invitation"
	// OutcomePending / OutcomeAllowed mirror the matched identity's active
	// invitation state after any requested transition was applied.
	OutcomePending Outcome = "pending"
	OutcomeAllowed Outcome = "allowed"
)

// DecisionResult is the externally visible answer to "is this probe currently
// authorized". Name is nil when no identity matched. Distance carries the
// nearest candidate's distance even for unknown probes (diagnostics); it is
// nil only when the roster is empty, so no candidate distance exists.
// History is ordered oldest first.
type DecisionResult struct {
	Name         *string        `json:"name"`
	Outcome      Outcome        `json:"outcome"`
	Distance     *float64       `json:"distance,omitempty"`
	Invitation   *Invitation    `json:"invitation,omitempty"`
	History      []HistoryEntry `json:"history,omitempty"`
	StateChanged bool           `json:"state_changed"`
	StateMessage string         `json:"state_message,omitempty"`
}

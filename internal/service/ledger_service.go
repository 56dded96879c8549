// Package service contains the business logic for the gate engine:
// the invitation ledger, the access decision orchestrator, plate
// recognition, and outbound gate notifications.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gatewise/gatehub/internal/gateerrors"
	"github.com/gatewise/gatehub/internal/models"
)

// InvitationsRepository defines the interface for invitations data access.
type InvitationsRepository interface {
	Create(ctx context.Context, identityID uuid.UUID, start, end time.Time, state models.InvitationState) (*models.Invitation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invitation, error)
	ListActiveAt(ctx context.Context, identityID uuid.UUID, at time.Time) ([]models.Invitation, error)
	ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]models.Invitation, error)
	SetState(ctx context.Context, id uuid.UUID, state models.InvitationState) error
}

// HistoryRepository defines the interface for the append-only audit trail.
type HistoryRepository interface {
	Append(ctx context.Context, identityID, invitationID uuid.UUID, at time.Time) (*models.HistoryEntry, error)
	ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]models.HistoryEntry, error)
}

// InvitationLedger manages invitation windows and their lifecycle. A history
// entry is appended exactly once per pending-to-allowed transition; repeating
// the transition is a no-op.
type InvitationLedger struct {
	invitations InvitationsRepository
	history     HistoryRepository
	defaultTTL  time.Duration
	now         func() time.Time
}

// LedgerParams holds the dependencies for NewInvitationLedger.
type LedgerParams struct {
	Invitations InvitationsRepository
	History     HistoryRepository
	// DefaultTTL is the invitation window length when the caller does not
	// supply an end time.
	DefaultTTL time.Duration
	// Now overrides the clock in tests. Defaults to time.Now.
	Now func() time.Time
}

// NewInvitationLedger creates a new invitation ledger.
func NewInvitationLedger(p LedgerParams) *InvitationLedger {
	if p.Now == nil {
		p.Now = time.Now
	}

	if p.DefaultTTL <= 0 {
		p.DefaultTTL = 24 * time.Hour
	}

	return &InvitationLedger{
		invitations: p.Invitations,
		history:     p.History,
		defaultTTL:  p.DefaultTTL,
		now:         p.Now,
	}
}

// CreateInvitation opens a new pending invitation window for an identity.
// The window starts now and ends at req.EndTime, or now+DefaultTTL when no
// end time is given.
func (l *InvitationLedger) CreateInvitation(
	ctx context.Context, identityID uuid.UUID, req *models.CreateInvitationRequest,
) (*models.Invitation, error) {
	start := l.now()

	end := start.Add(l.defaultTTL)
	if req != nil && req.EndTime != nil {
		end = *req.EndTime
	}

	if end.Before(start) {
		return nil, gateerrors.NewValidationError("end_time", "end_time must not be before start_time")
	}

	return l.invitations.Create(ctx, identityID, start, end, models.InvitationPending)
}

// CurrentInvitation returns the invitation governing the identity at time at,
// or nil when no window contains at. When windows overlap, the one with the
// latest start time wins; among equal starts the most recently created wins.
func (l *InvitationLedger) CurrentInvitation(
	ctx context.Context, identityID uuid.UUID, at time.Time,
) (*models.Invitation, error) {
	active, err := l.invitations.ListActiveAt(ctx, identityID, at)
	if err != nil {
		return nil, err
	}

	if len(active) == 0 {
		return nil, nil
	}

	// ListActiveAt orders by (start_time, created_at) ascending, so the last
	// element is the latest-started window.
	inv := active[len(active)-1]

	return &inv, nil
}

// TransitionResult reports what a state transition did.
type TransitionResult struct {
	Invitation *models.Invitation
	// Changed is false when the invitation was already in the requested state.
	Changed bool
	Message string
}

// Transition moves an invitation into the requested state. Allowing an
// already-allowed invitation is a no-op reported through Changed=false, so
// retried gate openings never duplicate the audit trail.
func (l *InvitationLedger) Transition(
	ctx context.Context, invitationID uuid.UUID, target models.InvitationState,
) (*TransitionResult, error) {
	if !target.IsValid() {
		return nil, gateerrors.NewValidationError("state", "state must be pending or allowed")
	}

	inv, err := l.invitations.GetByID(ctx, invitationID)
	if err != nil {
		return nil, err
	}

	if inv.State == target {
		return &TransitionResult{
			Invitation: inv,
			Changed:    false,
			Message:    "already " + target.String(),
		}, nil
	}

	if err := l.invitations.SetState(ctx, invitationID, target); err != nil {
		return nil, err
	}

	inv.State = target

	if target == models.InvitationAllowed {
		if _, err := l.history.Append(ctx, inv.IdentityID, inv.ID, l.now()); err != nil {
			return nil, err
		}
	}

	return &TransitionResult{Invitation: inv, Changed: true, Message: "updated"}, nil
}

// ListInvitations returns all invitation windows for an identity.
func (l *InvitationLedger) ListInvitations(ctx context.Context, identityID uuid.UUID) ([]models.Invitation, error) {
	return l.invitations.ListByIdentity(ctx, identityID)
}

// GetInvitation returns one invitation by ID.
func (l *InvitationLedger) GetInvitation(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	return l.invitations.GetByID(ctx, id)
}

// History returns the identity's audit trail, oldest first.
func (l *InvitationLedger) History(ctx context.Context, identityID uuid.UUID) ([]models.HistoryEntry, error) {
	return l.history.ListByIdentity(ctx, identityID)
}

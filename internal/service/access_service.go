package service

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/gatewise/gatehub/internal/match"
	"github.com/gatewise/gatehub/internal/models"
	"github.com/gatewise/gatehub/internal/observability"
	"github.com/gatewise/gatehub/internal/vision"
)

// IdentitiesRepository defines the interface for identities data access.
type IdentitiesRepository interface {
	Create(ctx context.Context, name string, embedding []float32) (*models.Identity, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	ListAll(ctx context.Context) ([]models.Identity, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// eventPublisher publishes a gate event to interested consumers. Implemented
// by GateNotifier; nil-safe at call sites so notification stays optional.
type eventPublisher interface {
	PublishEvent(ctx context.Context, event GateEvent)
}

// AccessService is the single externally-callable decision point: it matches
// a probe embedding against the enrolled roster and consults the invitation
// ledger, optionally applying a requested state transition.
type AccessService struct {
	identities IdentitiesRepository
	ledger     *InvitationLedger
	embedder   vision.Embedder
	threshold  float64
	publisher  eventPublisher
	metrics    observability.GateMetrics

	// locks serializes the read-then-transition sequence per identity so two
	// concurrent sightings cannot both observe Pending and both append
	// history. Cross-identity resolutions proceed in parallel.
	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex

	// roster is a cached snapshot of all enrolled identities. The matcher
	// scans it lock-free; enrollment and deletion invalidate it. rosterGen
	// counts invalidations so a load already in flight when one lands cannot
	// store a stale snapshot.
	rosterMu  sync.RWMutex
	roster    []models.Identity
	rosterGen uint64
	loadG     singleflight.Group
}

// AccessParams holds the dependencies for NewAccessService.
type AccessParams struct {
	Identities IdentitiesRepository
	Ledger     *InvitationLedger
	Embedder   vision.Embedder
	// Threshold is the strict upper bound on match distance. Zero means
	// match.DefaultThreshold.
	Threshold float64
	// Publisher may be nil when gate notifications are disabled.
	Publisher eventPublisher
	// Metrics may be nil when metrics are disabled.
	Metrics observability.GateMetrics
}

// NewAccessService creates a new access decision service.
func NewAccessService(p AccessParams) *AccessService {
	if p.Threshold <= 0 {
		p.Threshold = match.DefaultThreshold
	}

	return &AccessService{
		identities: p.Identities,
		ledger:     p.Ledger,
		embedder:   p.Embedder,
		threshold:  p.Threshold,
		publisher:  p.Publisher,
		metrics:    p.Metrics,
		locks:      make(map[uuid.UUID]*sync.Mutex),
	}
}

// Enroll registers a new identity from a face image and opens its first
// pending invitation window (ending at req.EndTime, or after the ledger's
// default TTL). When the face already matches an enrolled identity within
// the threshold, that identity is returned unchanged with a nil invitation
// instead of creating a duplicate record.
func (s *AccessService) Enroll(ctx context.Context, req *models.EnrollRequest, image []byte) (*models.Identity, *models.Invitation, error) {
	embedding, err := s.embedder.EmbedFace(ctx, image)
	if err != nil {
		return nil, nil, err
	}

	roster, err := s.rosterSnapshot(ctx)
	if err != nil {
		return nil, nil, err
	}

	m, err := match.FindBestMatch(embedding, roster, s.threshold)
	if err != nil {
		return nil, nil, err
	}

	if m.Best != nil {
		return m.Best, nil, nil
	}

	identity, err := s.identities.Create(ctx, req.Name, embedding)
	if err != nil {
		return nil, nil, err
	}

	inv, err := s.ledger.CreateInvitation(ctx, identity.ID,
		&models.CreateInvitationRequest{EndTime: req.EndTime})
	if err != nil {
		return nil, nil, err
	}

	s.invalidateRoster()

	if s.publisher != nil {
		s.publisher.PublishEvent(ctx, NewGateEvent(EventIdentityEnrolled, map[string]any{
			"identity_id": identity.ID,
			"name":        identity.Name,
		}))
	}

	return identity, inv, nil
}

// ResolveImage embeds the probe image and resolves access for it.
func (s *AccessService) ResolveImage(
	ctx context.Context, image []byte, requestedState *models.InvitationState,
) (*models.DecisionResult, error) {
	embedding, err := s.embedder.EmbedFace(ctx, image)
	if err != nil {
		return nil, err
	}

	return s.Resolve(ctx, embedding, requestedState, time.Now())
}

// Resolve answers whether the probe is currently authorized and, when
// requestedState is given, applies the transition. No match touches no state.
func (s *AccessService) Resolve(
	ctx context.Context, probe []float32, requestedState *models.InvitationState, now time.Time,
) (*models.DecisionResult, error) {
	roster, err := s.rosterSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	m, err := match.FindBestMatch(probe, roster, s.threshold)
	if err != nil {
		return nil, err
	}

	distance := finiteDistance(m.Distance)

	if s.metrics != nil && distance != nil {
		s.metrics.RecordMatchDistance(ctx, *distance)
	}

	if m.Best == nil {
		result := &models.DecisionResult{Outcome: models.OutcomeUnknown, Distance: distance}
		s.recordDecision(ctx, result.Outcome)

		return result, nil
	}

	identity := m.Best

	unlock := s.lockIdentity(identity.ID)
	defer unlock()

	inv, err := s.ledger.CurrentInvitation(ctx, identity.ID, now)
	if err != nil {
		return nil, err
	}

	if inv == nil {
		result := &models.DecisionResult{
			Name:     &identity.Name,
			Outcome:  models.OutcomeNoActiveInvitation,
			Distance: distance,
		}
		s.recordDecision(ctx, result.Outcome)

		return result, nil
	}

	result := &models.DecisionResult{
		Name:       &identity.Name,
		Distance:   distance,
		Invitation: inv,
	}

	if requestedState != nil && requestedState.IsValid() {
		tr, err := s.ledger.Transition(ctx, inv.ID, *requestedState)
		if err != nil {
			return nil, err
		}

		result.Invitation = tr.Invitation
		result.StateChanged = tr.Changed
		result.StateMessage = tr.Message

		if tr.Changed && tr.Invitation.State == models.InvitationAllowed && s.publisher != nil {
			s.publisher.PublishEvent(ctx, NewGateEvent(EventEntryAllowed, map[string]any{
				"identity_id":   identity.ID,
				"name":          identity.Name,
				"invitation_id": tr.Invitation.ID,
				"distance":      m.Distance,
			}))
		}
	}

	result.Outcome = models.Outcome(result.Invitation.State.String())

	history, err := s.ledger.History(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	result.History = history

	s.recordDecision(ctx, result.Outcome)

	return result, nil
}

// GetIdentity returns one enrolled identity.
func (s *AccessService) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	return s.identities.GetByID(ctx, id)
}

// ListIdentities returns the enrolled roster.
func (s *AccessService) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	return s.identities.ListAll(ctx)
}

// DeleteIdentity removes an identity and invalidates the roster snapshot.
func (s *AccessService) DeleteIdentity(ctx context.Context, id uuid.UUID) error {
	if err := s.identities.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidateRoster()

	return nil
}

func (s *AccessService) recordDecision(ctx context.Context, outcome models.Outcome) {
	if s.metrics != nil {
		s.metrics.RecordDecision(ctx, string(outcome))
	}
}

// lockIdentity acquires the per-identity mutex and returns its unlock func.
func (s *AccessService) lockIdentity(id uuid.UUID) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()

	return mu.Unlock
}

// rosterSnapshot returns the cached roster, loading it once under
// singleflight when empty so a burst of resolutions issues one query. The
// singleflight key carries the generation observed before loading: a load
// overtaken by an invalidation still serves its callers but is not cached,
// so the next lookup reloads.
func (s *AccessService) rosterSnapshot(ctx context.Context) ([]models.Identity, error) {
	s.rosterMu.RLock()
	roster := s.roster
	gen := s.rosterGen
	s.rosterMu.RUnlock()

	if roster != nil {
		return roster, nil
	}

	v, err, _ := s.loadG.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		identities, err := s.identities.ListAll(ctx)
		if err != nil {
			return nil, err
		}

		if identities == nil {
			identities = []models.Identity{}
		}

		s.rosterMu.Lock()
		if s.rosterGen == gen {
			s.roster = identities
		}
		s.rosterMu.Unlock()

		return identities, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]models.Identity), nil
}

func (s *AccessService) invalidateRoster() {
	s.rosterMu.Lock()
	s.roster = nil
	s.rosterGen++
	s.rosterMu.Unlock()
}

// finiteDistance returns the distance for serialization, nil when no
// candidate produced one (empty roster yields +Inf from the scan).
func finiteDistance(d float64) *float64 {
	if math.IsInf(d, 0) || math.IsNaN(d) {
		return nil
	}

	return &d
}

package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewise/gatehub/internal/models"
)

// memoryIdentitiesRepo is an in-memory IdentitiesRepository.
type memoryIdentitiesRepo struct {
	mu         sync.Mutex
	identities []models.Identity
	listCalls  atomic.Int64
}

func (m *memoryIdentitiesRepo) Create(_ context.Context, name string, embedding []float32) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity := models.Identity{
		ID:        uuid.Must(uuid.NewV7()),
		Name:      name,
		Embedding: embedding,
		CreatedAt: time.Now(),
	}
	m.identities = append(m.identities, identity)

	return &identity, nil
}

func (m *memoryIdentitiesRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.identities {
		if m.identities[i].ID == id {
			identity := m.identities[i]

			return &identity, nil
		}
	}

	return nil, nil
}

func (m *memoryIdentitiesRepo) ListAll(_ context.Context) ([]models.Identity, error) {
	m.listCalls.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Identity, len(m.identities))
	copy(out, m.identities)

	return out, nil
}

func (m *memoryIdentitiesRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.identities {
		if m.identities[i].ID == id {
			m.identities = append(m.identities[:i], m.identities[i+1:]...)

			return nil
		}
	}

	return nil
}

// stubEmbedder maps image bytes directly to canned vectors.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) EmbedFace(_ context.Context, image []byte) ([]float32, error) {
	return s.vectors[string(image)], nil
}

// trackingStore wraps memoryLedgerStore and counts active-window lookups.
type trackingStore struct {
	*memoryLedgerStore

	activeCalls atomic.Int64
}

func (t *trackingStore) ListActiveAt(ctx context.Context, identityID uuid.UUID, at time.Time) ([]models.Invitation, error) {
	t.activeCalls.Add(1)

	return t.memoryLedgerStore.ListActiveAt(ctx, identityID, at)
}

func newTestAccessService(t *testing.T) (*AccessService, *memoryIdentitiesRepo, *trackingStore, *stubEmbedder) {
	t.Helper()

	identities := &memoryIdentitiesRepo{}
	store := &trackingStore{memoryLedgerStore: newMemoryLedgerStore()}
	embedder := &stubEmbedder{vectors: map[string][]float32{}}

	ledger := NewInvitationLedger(LedgerParams{
		Invitations: store,
		History:     historyRepo{store.memoryLedgerStore},
	})

	svc := NewAccessService(AccessParams{
		Identities: identities,
		Ledger:     ledger,
		Embedder:   embedder,
		Threshold:  0.8,
	})

	return svc, identities, store, embedder
}

func statePtr(s models.InvitationState) *models.InvitationState { return &s }

func TestAccessService_Resolve(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("unknown probe touches no ledger state", func(t *testing.T) {
		svc, identities, store, _ := newTestAccessService(t)

		_, err := identities.Create(context.Background(), "alice", []float32{1, 0, 0})
		require.NoError(t, err)

		result, err := svc.Resolve(context.Background(), []float32{0, 0, 5}, statePtr(models.InvitationAllowed), now)
		require.NoError(t, err)

		assert.Equal(t, models.OutcomeUnknown, result.Outcome)
		assert.Nil(t, result.Name)
		assert.Zero(t, store.activeCalls.Load())
	})

	t.Run("empty roster yields unknown with a serializable result", func(t *testing.T) {
		svc, _, store, _ := newTestAccessService(t)

		result, err := svc.Resolve(context.Background(), []float32{1, 0, 0}, nil, now)
		require.NoError(t, err)

		assert.Equal(t, models.OutcomeUnknown, result.Outcome)
		assert.Nil(t, result.Distance)
		assert.Zero(t, store.activeCalls.Load())

		// The result must survive the JSON response encoder.
		_, err = json.Marshal(result)
		require.NoError(t, err)
	})

	t.Run("distance at the threshold is not a match", func(t *testing.T) {
		svc, identities, store, _ := newTestAccessService(t)

		_, err := identities.Create(context.Background(), "alice", []float32{0, 0, 0})
		require.NoError(t, err)

		// Probe at exactly 0.8 from the enrolled vector.
		result, err := svc.Resolve(context.Background(), []float32{0.8, 0, 0}, nil, now)
		require.NoError(t, err)

		assert.Equal(t, models.OutcomeUnknown, result.Outcome)
		require.NotNil(t, result.Distance)
		assert.InDelta(t, 0.8, *result.Distance, 1e-6)
		assert.Zero(t, store.activeCalls.Load())
	})

	t.Run("match without an active window", func(t *testing.T) {
		svc, identities, _, _ := newTestAccessService(t)

		_, err := identities.Create(context.Background(), "alice", []float32{1, 0, 0})
		require.NoError(t, err)

		result, err := svc.Resolve(context.Background(), []float32{1, 0, 0}, statePtr(models.InvitationAllowed), now)
		require.NoError(t, err)

		assert.Equal(t, models.OutcomeNoActiveInvitation, result.Outcome)
		require.NotNil(t, result.Name)
		assert.Equal(t, "alice", *result.Name)
		assert.Nil(t, result.Invitation)
	})

	t.Run("match without a requested state reports the window as-is", func(t *testing.T) {
		svc, identities, store, _ := newTestAccessService(t)

		identity, err := identities.Create(context.Background(), "alice", []float32{1, 0, 0})
		require.NoError(t, err)

		_, err = store.Create(context.Background(), identity.ID,
			now.Add(-time.Hour), now.Add(time.Hour), models.InvitationPending)
		require.NoError(t, err)

		result, err := svc.Resolve(context.Background(), []float32{1, 0, 0}, nil, now)
		require.NoError(t, err)

		assert.Equal(t, models.OutcomePending, result.Outcome)
		assert.False(t, result.StateChanged)
		assert.Empty(t, store.ListByIdentityHistory(identity.ID))
	})

	t.Run("allowed transition is applied once and reported idempotently", func(t *testing.T) {
		svc, identities, store, _ := newTestAccessService(t)

		identity, err := identities.Create(context.Background(), "alice", []float32{1, 0, 0})
		require.NoError(t, err)

		_, err = store.Create(context.Background(), identity.ID,
			now.Add(-time.Hour), now.Add(time.Hour), models.InvitationPending)
		require.NoError(t, err)

		first, err := svc.Resolve(context.Background(), []float32{1, 0, 0}, statePtr(models.InvitationAllowed), now)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeAllowed, first.Outcome)
		assert.True(t, first.StateChanged)
		assert.Len(t, first.History, 1)

		second, err := svc.Resolve(context.Background(), []float32{1, 0, 0}, statePtr(models.InvitationAllowed), now)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeAllowed, second.Outcome)
		assert.False(t, second.StateChanged)
		assert.Equal(t, "already allowed", second.StateMessage)
		assert.Len(t, second.History, 1)
	})

	t.Run("concurrent sightings append exactly one history entry", func(t *testing.T) {
		svc, identities, store, _ := newTestAccessService(t)

		identity, err := identities.Create(context.Background(), "alice", []float32{1, 0, 0})
		require.NoError(t, err)

		_, err = store.Create(context.Background(), identity.ID,
			now.Add(-time.Hour), now.Add(time.Hour), models.InvitationPending)
		require.NoError(t, err)

		const sightings = 16

		var (
			wg      sync.WaitGroup
			changed atomic.Int64
		)

		for range sightings {
			wg.Add(1)

			go func() {
				defer wg.Done()

				result, err := svc.Resolve(context.Background(), []float32{1, 0, 0}, statePtr(models.InvitationAllowed), now)
				if err == nil && result.StateChanged {
					changed.Add(1)
				}
			}()
		}

		wg.Wait()

		assert.Equal(t, int64(1), changed.Load())
		assert.Len(t, store.ListByIdentityHistory(identity.ID), 1)
	})
}

func TestAccessService_Enroll(t *testing.T) {
	now := time.Now()

	t.Run("enrollment opens a pending window and refreshes the roster", func(t *testing.T) {
		svc, _, _, embedder := newTestAccessService(t)
		embedder.vectors["alice.jpg"] = []float32{1, 0, 0}

		// Warm the roster snapshot before enrolling.
		result, err := svc.Resolve(context.Background(), []float32{1, 0, 0}, nil, now)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeUnknown, result.Outcome)

		identity, inv, err := svc.Enroll(context.Background(),
			&models.EnrollRequest{Name: "alice"}, []byte("alice.jpg"))
		require.NoError(t, err)
		assert.Equal(t, "alice", identity.Name)
		assert.Equal(t, models.InvitationPending, inv.State)

		result, err = svc.Resolve(context.Background(), []float32{1, 0, 0}, statePtr(models.InvitationAllowed), time.Now())
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeAllowed, result.Outcome)
		assert.True(t, result.StateChanged)
	})

	t.Run("re-enrolling a close match returns the existing identity", func(t *testing.T) {
		svc, identities, store, embedder := newTestAccessService(t)
		embedder.vectors["alice.jpg"] = []float32{1, 0, 0}

		first, inv, err := svc.Enroll(context.Background(),
			&models.EnrollRequest{Name: "alice"}, []byte("alice.jpg"))
		require.NoError(t, err)
		require.NotNil(t, inv)

		second, inv2, err := svc.Enroll(context.Background(),
			&models.EnrollRequest{Name: "alice duplicate"}, []byte("alice.jpg"))
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "alice", second.Name)
		assert.Nil(t, inv2)

		all, err := identities.ListAll(context.Background())
		require.NoError(t, err)
		assert.Len(t, all, 1)

		// The original window is untouched.
		invitations, err := store.ListByIdentity(context.Background(), first.ID)
		require.NoError(t, err)
		assert.Len(t, invitations, 1)
	})

	t.Run("roster loads once across repeated resolutions", func(t *testing.T) {
		svc, identities, _, _ := newTestAccessService(t)

		_, err := identities.Create(context.Background(), "alice", []float32{1, 0, 0})
		require.NoError(t, err)

		for range 5 {
			_, err := svc.Resolve(context.Background(), []float32{0, 1, 0}, nil, now)
			require.NoError(t, err)
		}

		assert.Equal(t, int64(1), identities.listCalls.Load())
	})
}

// gatedIdentitiesRepo blocks the first ListAll until released, so a test can
// land an enrollment in the middle of a roster load.
type gatedIdentitiesRepo struct {
	*memoryIdentitiesRepo

	firstList sync.Once
	started   chan struct{}
	release   chan struct{}
}

func (g *gatedIdentitiesRepo) ListAll(ctx context.Context) ([]models.Identity, error) {
	// Snapshot first, then stall: the caller receives data read before
	// whatever the test does while the call is parked.
	out, err := g.memoryIdentitiesRepo.ListAll(ctx)

	g.firstList.Do(func() {
		close(g.started)
		<-g.release
	})

	return out, err
}

func TestAccessService_RosterCache(t *testing.T) {
	t.Run("invalidation during a load in flight is not lost", func(t *testing.T) {
		now := time.Now()

		identities := &memoryIdentitiesRepo{}
		gated := &gatedIdentitiesRepo{
			memoryIdentitiesRepo: identities,
			started:              make(chan struct{}),
			release:              make(chan struct{}),
		}
		store := &trackingStore{memoryLedgerStore: newMemoryLedgerStore()}

		svc := NewAccessService(AccessParams{
			Identities: gated,
			Ledger: NewInvitationLedger(LedgerParams{
				Invitations: store,
				History:     historyRepo{store.memoryLedgerStore},
			}),
			Embedder:  &stubEmbedder{vectors: map[string][]float32{}},
			Threshold: 0.8,
		})

		// A cold-cache resolve stalls inside ListAll.
		done := make(chan struct{})

		go func() {
			defer close(done)

			_, _ = svc.Resolve(context.Background(), []float32{1, 0, 0}, nil, now)
		}()

		<-gated.started

		// An enrollment lands while that load is still in flight.
		_, err := identities.Create(context.Background(), "alice", []float32{1, 0, 0})
		require.NoError(t, err)
		svc.invalidateRoster()

		close(gated.release)
		<-done

		// The stale snapshot must not have been cached: the next resolve
		// reloads and sees alice.
		result, err := svc.Resolve(context.Background(), []float32{1, 0, 0}, nil, now)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeNoActiveInvitation, result.Outcome)
		require.NotNil(t, result.Name)
		assert.Equal(t, "alice", *result.Name)
	})
}

package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatewise/gatehub/internal/gateerrors"
	"github.com/gatewise/gatehub/internal/models"
	"github.com/gatewise/gatehub/pkg/database"
)

// startPostgres brings up a disposable pgvector-enabled Postgres and returns
// a pool with the schema applied. Skips when Docker is unavailable.
func startPostgres(t *testing.T) *testDB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "pgvector/pgvector:pg16",
		postgres.WithDatabase("gatehub_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("skipping: could not start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	schema, err := os.ReadFile(filepath.Join("..", "..", "scripts", "schema.sql"))
	require.NoError(t, err)

	pool, err := database.NewPostgresPool(ctx, connStr, database.WithVectorTypes())
	require.NoError(t, err)

	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)

	return &testDB{
		identities:  NewIdentitiesRepository(pool),
		invitations: NewInvitationsRepository(pool),
		history:     NewHistoryRepository(pool),
		vehicles:    NewVehiclesRepository(pool),
		webhooks:    NewWebhooksRepository(pool),
	}
}

type testDB struct {
	identities  *IdentitiesRepository
	invitations *InvitationsRepository
	history     *HistoryRepository
	vehicles    *VehiclesRepository
	webhooks    *WebhooksRepository
}

func testEmbedding(seed float32) []float32 {
	vec := make([]float32, 512)
	vec[0] = seed

	return vec
}

func TestRepositories_Integration(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	identity, err := db.identities.Create(ctx, "alice", testEmbedding(1))
	require.NoError(t, err)

	t.Run("identity round-trips its embedding", func(t *testing.T) {
		got, err := db.identities.GetByID(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Name)
		assert.Len(t, got.Embedding, 512)
		assert.InDelta(t, 1.0, got.Embedding[0], 1e-6)
	})

	t.Run("listing preserves enrollment order", func(t *testing.T) {
		bob, err := db.identities.Create(ctx, "bob", testEmbedding(2))
		require.NoError(t, err)

		all, err := db.identities.ListAll(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(all), 2)
		assert.Equal(t, "alice", all[0].Name)

		require.NoError(t, db.identities.Delete(ctx, bob.ID))
	})

	t.Run("active window query brackets the instant", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)

		inv, err := db.invitations.Create(ctx, identity.ID,
			now.Add(-time.Hour), now.Add(time.Hour), models.InvitationPending)
		require.NoError(t, err)

		active, err := db.invitations.ListActiveAt(ctx, identity.ID, now)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, inv.ID, active[0].ID)

		active, err = db.invitations.ListActiveAt(ctx, identity.ID, now.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, active)

		require.NoError(t, db.invitations.SetState(ctx, inv.ID, models.InvitationAllowed))

		got, err := db.invitations.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvitationAllowed, got.State)

		entry, err := db.history.Append(ctx, identity.ID, inv.ID, now)
		require.NoError(t, err)
		assert.Equal(t, inv.ID, entry.InvitationID)

		trail, err := db.history.ListByIdentity(ctx, identity.ID)
		require.NoError(t, err)
		assert.Len(t, trail, 1)
	})

	t.Run("duplicate plates are rejected", func(t *testing.T) {
		_, err := db.vehicles.Create(ctx, identity.ID, "321CBA")
		require.NoError(t, err)

		_, err = db.vehicles.Create(ctx, identity.ID, "321CBA")
		require.Error(t, err)
		assert.ErrorIs(t, err, gateerrors.ErrValidation)

		vehicle, err := db.vehicles.GetByPlate(ctx, "321CBA")
		require.NoError(t, err)
		assert.Equal(t, identity.ID, vehicle.IdentityID)
	})

	t.Run("webhook partial update flips enabled only", func(t *testing.T) {
		wh, err := db.webhooks.Create(ctx, "https://example.com/hook", "whsec_key")
		require.NoError(t, err)
		assert.True(t, wh.Enabled)

		enabled := false
		reason := "manual"
		updated, err := db.webhooks.Update(ctx, wh.ID, &models.UpdateGateWebhookRequest{
			Enabled:        &enabled,
			DisabledReason: &reason,
		})
		require.NoError(t, err)
		assert.False(t, updated.Enabled)
		require.NotNil(t, updated.DisabledReason)
		assert.Equal(t, "manual", *updated.DisabledReason)

		none, err := db.webhooks.ListEnabled(ctx)
		require.NoError(t, err)

		for _, got := range none {
			assert.NotEqual(t, wh.ID, got.ID)
		}

		require.NoError(t, db.webhooks.Delete(ctx, wh.ID))
		_, err = db.webhooks.GetByID(ctx, wh.ID)
		assert.ErrorIs(t, err, gateerrors.ErrNotFound)
	})

	t.Run("deleting an identity cascades", func(t *testing.T) {
		victim, err := db.identities.Create(ctx, "carol", testEmbedding(3))
		require.NoError(t, err)

		now := time.Now()
		inv, err := db.invitations.Create(ctx, victim.ID, now, now.Add(time.Hour), models.InvitationPending)
		require.NoError(t, err)

		require.NoError(t, db.identities.Delete(ctx, victim.ID))

		_, err = db.invitations.GetByID(ctx, inv.ID)
		assert.ErrorIs(t, err, gateerrors.ErrNotFound)
	})
}

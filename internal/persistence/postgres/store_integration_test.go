//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/domain"
	"github.com/ScimanSky/swimforge-oppidum-sub001/internal/migrate"
)

func TestProgressionRoundTrip(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("progression"),
		postgrescontainer.WithUsername("swimforge"),
		postgrescontainer.WithPassword("swimforge"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))
	require.NoError(t, migrate.Up(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewStore(&DB{Pool: pool})
	levels, err := domain.NewLevelCatalog(domain.DefaultLevels())
	require.NoError(t, err)
	badges, err := domain.NewBadgeCatalog(domain.DefaultBadges())
	require.NoError(t, err)
	service := domain.NewService(store, levels, badges, domain.NewScorerV1())

	userID := uuid.New()
	externalID := "garmin-9001"
	input := domain.IngestInput{
		Source:          domain.SourceGarmin,
		ExternalID:      &externalID,
		ActivityDate:    time.Now().UTC().Add(-2 * time.Hour),
		DistanceMeters:  2000,
		DurationSeconds: 3600,
		Stroke:          domain.StrokeFreestyle,
	}

	activity, replay, result, err := service.Ingest(ctx, userID, input)
	require.NoError(t, err)
	require.False(t, replay)
	require.Equal(t, int64(36), activity.XPEarned)
	require.NotNil(t, result)
	require.NotEmpty(t, result.NewBadges, "first swim should unlock starter badges")

	// The same provider payload delivered again is replayed, not reprocessed.
	again, replay, result2, err := service.Ingest(ctx, userID, input)
	require.NoError(t, err)
	require.True(t, replay)
	require.Nil(t, result2)
	require.Equal(t, activity.ID, again.ID)

	profile, err := service.GetProfile(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(2000), profile.TotalDistanceMeters)
	require.Equal(t, 1, profile.TotalSessions)
	require.Equal(t, result.TotalXP, profile.TotalXP)

	earned, err := store.ListUserBadges(ctx, userID)
	require.NoError(t, err)
	require.Len(t, earned, len(result.NewBadges))

	// One progression event plus one per badge awarded, all unpublished.
	var pending int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending))
	require.Equal(t, 1+len(result.NewBadges), pending)
}

func TestConcurrentIngestSerializesPerUser(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("progression"),
		postgrescontainer.WithUsername("swimforge"),
		postgrescontainer.WithPassword("swimforge"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))
	require.NoError(t, migrate.Up(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewStore(&DB{Pool: pool})
	levels, err := domain.NewLevelCatalog(domain.DefaultLevels())
	require.NoError(t, err)
	badges, err := domain.NewBadgeCatalog(domain.DefaultBadges())
	require.NoError(t, err)
	service := domain.NewService(store, levels, badges, domain.NewScorerV1())

	userID := uuid.New()
	first := "garmin-7001"
	second := "garmin-7002"
	inputs := []domain.IngestInput{
		{
			Source:          domain.SourceGarmin,
			ExternalID:      &first,
			ActivityDate:    time.Now().UTC().Add(-3 * time.Hour),
			DistanceMeters:  1000,
			DurationSeconds: 1500,
			Stroke:          domain.StrokeFreestyle,
		},
		{
			Source:          domain.SourceGarmin,
			ExternalID:      &second,
			ActivityDate:    time.Now().UTC().Add(-2 * time.Hour),
			DistanceMeters:  2000,
			DurationSeconds: 3000,
			Stroke:          domain.StrokeFreestyle,
		},
	}

	// Two distinct activities for the same user racing through the profile
	// row lock; both must land, in either order.
	errs := make([]error, len(inputs))
	replays := make([]bool, len(inputs))
	var wg sync.WaitGroup
	for i, in := range inputs {
		wg.Add(1)
		go func(i int, in domain.IngestInput) {
			defer wg.Done()
			_, replay, _, err := service.Ingest(ctx, userID, in)
			errs[i] = err
			replays[i] = replay
		}(i, in)
	}
	wg.Wait()
	for i := range inputs {
		require.NoError(t, errs[i])
		require.False(t, replays[i], "distinct activities must never replay")
	}

	var activityCount int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM activities WHERE user_id = $1`, userID).Scan(&activityCount))
	require.Equal(t, 2, activityCount)

	var ledgerSum int64
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM xp_transactions WHERE user_id = $1`, userID).Scan(&ledgerSum))

	profile, err := service.GetProfile(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, ledgerSum, profile.TotalXP)
	require.Equal(t, 2, profile.TotalSessions)
	require.Equal(t, int64(3000), profile.TotalDistanceMeters)

	// Same totals sequential application would produce: 22 + 35 base XP plus
	// the first-splash and first-kilometre rewards.
	require.Equal(t, int64(22+35+10+25), profile.TotalXP)
}

func TestChallengeLifecycle(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("progression"),
		postgrescontainer.WithUsername("swimforge"),
		postgrescontainer.WithPassword("swimforge"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))
	require.NoError(t, migrate.Up(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewStore(&DB{Pool: pool})
	levels, err := domain.NewLevelCatalog(domain.DefaultLevels())
	require.NoError(t, err)
	badges, err := domain.NewBadgeCatalog(domain.DefaultBadges())
	require.NoError(t, err)
	service := domain.NewService(store, levels, badges, domain.NewScorerV1())

	creator := uuid.New()
	challenge, err := service.CreateChallenge(ctx, creator, domain.NewChallengeInput{
		Name:      "Weekly Distance Derby",
		Type:      domain.ChallengeBoth,
		Objective: domain.ObjectiveTotalDistance,
		StartDate: time.Now().UTC().Add(-24 * time.Hour),
		Duration:  domain.Duration1Week,
	})
	require.NoError(t, err)

	swimmer := uuid.New()
	require.NoError(t, service.JoinChallenge(ctx, challenge.ID, swimmer))
	// Joining twice is a no-op.
	require.NoError(t, service.JoinChallenge(ctx, challenge.ID, swimmer))

	_, _, _, err = service.Ingest(ctx, swimmer, domain.IngestInput{
		Source:          domain.SourceManual,
		ActivityDate:    time.Now().UTC().Add(-time.Hour),
		DistanceMeters:  1500,
		DurationSeconds: 2400,
		Stroke:          domain.StrokeFreestyle,
	})
	require.NoError(t, err)

	got, ranked, err := service.Leaderboard(ctx, challenge.ID)
	require.NoError(t, err)
	require.Equal(t, challenge.ID, got.ID)
	require.Len(t, ranked, 1)
	require.Equal(t, swimmer, ranked[0].UserID)
	require.Equal(t, 1500.0, ranked[0].Progress)
	require.Equal(t, 1, ranked[0].Position)

	require.NoError(t, service.LeaveChallenge(ctx, challenge.ID, swimmer))
	_, ranked, err = service.Leaderboard(ctx, challenge.ID)
	require.NoError(t, err)
	require.Empty(t, ranked)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}

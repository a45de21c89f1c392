package store

import (
	"context"
	"os"
	"testing"
	"time"

	"pulsepoint/internal/db"
	"pulsepoint/pkg/types"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("PULSEPOINT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PULSEPOINT_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	return pool
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()

	url := os.Getenv("PULSEPOINT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PULSEPOINT_TEST_REDIS_URL not set")
	}

	client, err := ConnectRedis(context.Background(), url)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testSession(id string) *types.PersistedSession {
	return &types.PersistedSession{
		SessionID:    id,
		SessionToken: "token-" + id,
		Profile: &types.UserProfile{
			Email: "rahim@example.com",
			Name:  "Rahim",
			Role:  types.RoleVolunteer,
		},
	}
}

func TestBrowserSessionRepository(t *testing.T) {
	pool := testPool(t)
	repo := NewBrowserSessionRepository(pool)
	ctx := context.Background()

	id := "test-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = repo.Clear(ctx, id) })

	missing, err := repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.Save(ctx, testSession(id)))

	loaded, err := repo.Load(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "token-"+id, loaded.SessionToken)
	require.NotNil(t, loaded.Profile)
	assert.Equal(t, types.RoleVolunteer, loaded.Profile.Role)

	updated := testSession(id)
	updated.SessionToken = "rotated"
	require.NoError(t, repo.Save(ctx, updated))

	loaded, err = repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "rotated", loaded.SessionToken)

	require.NoError(t, repo.Clear(ctx, id))
	loaded, err = repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSessionEventRepository(t *testing.T) {
	pool := testPool(t)
	repo := NewSessionEventRepository(pool)
	ctx := context.Background()

	id := "test-" + time.Now().Format("150405.000000")

	require.NoError(t, repo.RecordSessionEvent(ctx, id, "rahim@example.com", types.SessionEventExchangeStarted, ""))
	require.NoError(t, repo.RecordSessionEvent(ctx, id, "rahim@example.com", types.SessionEventAuthenticated, "donor"))

	events, err := repo.EventsBySession(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	withDetail := 0
	for _, e := range events {
		if e.Detail != nil {
			withDetail++
		}
	}
	assert.Equal(t, 1, withDetail)
}

func TestRedisPersister(t *testing.T) {
	client := testRedis(t)
	persister := NewRedisPersister(client, "pulsepoint:test:", time.Minute)
	ctx := context.Background()

	id := "sid-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = persister.Clear(ctx, id) })

	require.NoError(t, persister.Save(ctx, testSession(id)))

	n, err := client.Exists(ctx, "pulsepoint:test:"+id+":token", "pulsepoint:test:"+id+":profile").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	ttl, err := client.TTL(ctx, "pulsepoint:test:"+id+":profile").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	loaded, err := persister.Load(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "token-"+id, loaded.SessionToken)
	assert.Equal(t, "rahim@example.com", loaded.Profile.Email)

	require.NoError(t, persister.Clear(ctx, id))

	n, err = client.Exists(ctx, "pulsepoint:test:"+id+":token", "pulsepoint:test:"+id+":profile").Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	loaded, err = persister.Load(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

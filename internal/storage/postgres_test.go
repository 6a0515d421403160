package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/counsel/internal/memory"
	"github.com/jordanhubbard/counsel/internal/models"
)

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT 1", rebind("SELECT 1"))
	assert.Equal(t,
		"INSERT INTO t (a, b, c) VALUES ($1, $2, $3)",
		rebind("INSERT INTO t (a, b, c) VALUES (?, ?, ?)"))
	assert.Equal(t, "UPDATE t SET a = $1 WHERE id = $2", rebind("UPDATE t SET a = ? WHERE id = ?"))
}

// newTestStore returns a store backed by a real PostgreSQL instance, or
// skips the test when one is not reachable.
var (
	testStore     *Store
	testStoreOnce sync.Once
	testStoreErr  error
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	testStoreOnce.Do(func() {
		dsn := os.Getenv("COUNSEL_TEST_POSTGRES_DSN")
		if dsn == "" {
			host := os.Getenv("POSTGRES_HOST")
			if host == "" {
				host = "localhost"
			}
			dsn = fmt.Sprintf("host=%s port=5432 user=counsel password=counsel dbname=counsel_test sslmode=disable connect_timeout=5", host)
		}
		testStore, testStoreErr = NewPostgres(dsn)
	})

	if testStoreErr != nil {
		t.Skipf("Skipping: postgres not available: %v", testStoreErr)
		return nil
	}

	_, _ = testStore.db.Exec(`TRUNCATE context_snapshots, patterns, analytics_events, specialist_metrics`)
	return testStore
}

func TestContextSnapshotVersioning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v1, err := store.Append(ctx, &memory.ContextSnapshot{Decisions: []string{"use postgres"}})
	require.NoError(t, err)
	v2, err := store.Append(ctx, &memory.ContextSnapshot{Decisions: []string{"use postgres", "add nats"}})
	require.NoError(t, err)
	assert.Greater(t, v2, v1)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, v2, latest.Version)
	assert.Len(t, latest.Decisions, 2)

	history, err := store.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, v2, history[0].Version)
}

func TestPatternRoundTripAndUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &models.Pattern{
		ID:           "pat-1",
		Domain:       "backend",
		Technologies: []string{"postgresql", "redis"},
		Complexity:   5.5,
		SpecialistID: "t1-backend",
		Approach:     "backend: cache-aside with write-through",
		SuccessRate:  1.0,
		UsageCount:   1,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, store.Save(ctx, p))

	got, err := store.Get(ctx, "pat-1")
	require.NoError(t, err)
	assert.Equal(t, p.Domain, got.Domain)
	assert.Equal(t, p.Technologies, got.Technologies)

	err = store.Update(ctx, "pat-1", func(p *models.Pattern) error {
		p.UsageCount++
		p.SuccessRate = 0.5
		return nil
	})
	require.NoError(t, err)

	got, err = store.Get(ctx, "pat-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.UsageCount)
	assert.InDelta(t, 0.5, got.SuccessRate, 1e-9)

	err = store.Update(ctx, "missing", func(*models.Pattern) error { return nil })
	assert.Error(t, err)
}

func TestPatternTrimKeepsNewest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		p := &models.Pattern{
			ID:        fmt.Sprintf("pat-%d", i),
			Domain:    "backend",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.Save(ctx, p))
	}

	require.NoError(t, store.Trim(ctx, 2))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "pat-3", list[0].ID)
	assert.Equal(t, "pat-4", list[1].ID)
}

func TestAnalyticsEventsAndSpecialists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordEvent(ctx, memory.Event{Type: memory.EventCacheMiss, TaskID: "task-1"}))
	require.NoError(t, store.RecordEvent(ctx, memory.Event{Type: memory.EventConsultation, TaskID: "task-1", Detail: "t1-backend"}))

	events, err := store.Events(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, memory.EventConsultation, events[0].Type)

	for i := 0; i < 4; i++ {
		success := i < 3
		err := store.UpdateSpecialist(ctx, "t1-backend", func(m *memory.SpecialistMetrics) {
			m.Consultations++
			if success {
				m.Successes++
			}
		})
		require.NoError(t, err)
	}

	all, err := store.SpecialistMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	rate, ok := all[0].SuccessRate()
	require.True(t, ok)
	assert.InDelta(t, 0.75, rate, 1e-9)
}

package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rosa/ecogoals-sync/internal/database"
	"github.com/rosa/ecogoals-sync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Per-test in-memory database to avoid cross-test interference.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := database.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, database.MigrateStore(db))
	return db
}

func testStore(t *testing.T, opts Options) *Store {
	t.Helper()
	return New(testDB(t), nil, opts)
}

func sampleGoals(n int) []models.Goal {
	goals := make([]models.Goal, n)
	for i := range goals {
		goals[i] = models.Goal{
			ID:       uuid.New(),
			Title:    fmt.Sprintf("goal %d", i),
			GoalType: models.GoalTypeGrade,
			GoalConfig: models.GoalConfig{
				TargetGrades: []string{models.GradeA},
				Percentage:   50,
			},
			IsActive: true,
		}
	}
	return goals
}

func TestGetGoalsMissingKeyReturnsEmpty(t *testing.T) {
	s := testStore(t, Options{})
	cached := s.GetGoals(true)
	assert.False(t, cached.Cached)
	assert.Empty(t, cached.Data)
}

func TestStoreAndGetGoals(t *testing.T) {
	s := testStore(t, Options{})
	goals := sampleGoals(3)

	require.NoError(t, s.StoreGoals(goals, true))

	cached := s.GetGoals(true)
	require.True(t, cached.Cached)
	assert.False(t, cached.Expired)
	assert.True(t, cached.FromServer)
	require.Len(t, cached.Data, 3)
	assert.Equal(t, goals[0].ID, cached.Data[0].ID)
}

func TestExpiredEntryStillReturned(t *testing.T) {
	s := testStore(t, Options{TTL: time.Nanosecond})
	require.NoError(t, s.StoreGoals(sampleGoals(1), false))

	time.Sleep(time.Millisecond)
	cached := s.GetGoals(true)
	assert.True(t, cached.Cached)
	assert.True(t, cached.Expired)
	assert.Len(t, cached.Data, 1)

	// Expiry validation can be skipped.
	cached = s.GetGoals(false)
	assert.False(t, cached.Expired)
}

func TestCacheVersionBumpsPerWrite(t *testing.T) {
	s := testStore(t, Options{})
	require.NoError(t, s.StoreGoals(sampleGoals(1), false))
	require.NoError(t, s.StoreGoals(sampleGoals(2), true))

	entry, ok := s.getEntry(keyGoals)
	require.True(t, ok)
	assert.Equal(t, 2, entry.Version)
}

func TestNamespaceIsolation(t *testing.T) {
	db := testDB(t)
	alice := New(db, nil, Options{Namespace: NamespaceForUser(uuid.New())})
	bob := New(db, nil, Options{Namespace: NamespaceForUser(uuid.New())})

	require.NoError(t, alice.StoreGoals(sampleGoals(2), true))
	assert.Len(t, alice.GetGoals(true).Data, 2)
	assert.Empty(t, bob.GetGoals(true).Data)
}

func TestOfflineQueueFIFOAndCap(t *testing.T) {
	s := testStore(t, Options{QueueMax: 3})

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		goalID := uuid.New()
		id, err := s.RecordOfflineChange(models.ChangeTypeUpdate, models.UpdateGoalRequest{}, &goalID)
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond) // distinct timestamps for FIFO order
	}

	changes := s.OfflineChanges()
	require.Len(t, changes, 3, "queue never exceeds its cap")
	// Oldest evicted first: survivors are the last three, in FIFO order.
	assert.Equal(t, ids[2], changes[0].ID)
	assert.Equal(t, ids[3], changes[1].ID)
	assert.Equal(t, ids[4], changes[2].ID)
}

func TestMarkAndClearSyncedChanges(t *testing.T) {
	s := testStore(t, Options{})

	goalID := uuid.New()
	first, err := s.RecordOfflineChange(models.ChangeTypeCreate, models.CreateGoalRequest{Title: "x"}, &goalID)
	require.NoError(t, err)
	second, err := s.RecordOfflineChange(models.ChangeTypeUpdate, models.UpdateGoalRequest{}, &goalID)
	require.NoError(t, err)

	require.NoError(t, s.MarkChangesSynced([]uuid.UUID{first}))
	remaining := s.OfflineChanges()
	require.Len(t, remaining, 1)
	assert.Equal(t, second, remaining[0].ID)

	assert.Equal(t, 1, s.ClearSyncedChanges())
	assert.Equal(t, 0, s.ClearSyncedChanges())
}

func TestDeleteChangeLeavesTombstone(t *testing.T) {
	s := testStore(t, Options{})
	goalID := uuid.New()

	_, err := s.RecordOfflineChange(models.ChangeTypeDelete, nil, &goalID)
	require.NoError(t, err)
	assert.True(t, s.Tombstones()[goalID])

	s.RemoveTombstone(goalID)
	assert.False(t, s.Tombstones()[goalID])
}

func TestNeedsSync(t *testing.T) {
	s := testStore(t, Options{})

	// Never synced.
	check := s.NeedsSync(time.Hour)
	assert.True(t, check.NeedsSync)
	assert.Zero(t, check.UnsyncedChanges)

	require.NoError(t, s.UpdateLastSync())
	check = s.NeedsSync(time.Hour)
	assert.False(t, check.NeedsSync)

	// Stale.
	check = s.NeedsSync(time.Nanosecond)
	assert.True(t, check.NeedsSync)

	// Pending change forces a sync even when fresh.
	goalID := uuid.New()
	_, err := s.RecordOfflineChange(models.ChangeTypeUpdate, models.UpdateGoalRequest{}, &goalID)
	require.NoError(t, err)
	check = s.NeedsSync(time.Hour)
	assert.True(t, check.NeedsSync)
	assert.Equal(t, 1, check.UnsyncedChanges)
}

func TestStatsRoundTrip(t *testing.T) {
	s := testStore(t, Options{})

	assert.Nil(t, s.GetStats(true).Data)

	stats := models.GoalStats{TotalGoals: 4, ActiveGoals: 2, AchievedGoals: 1, OverallAlignment: 62.5}
	require.NoError(t, s.StoreStats(&stats, true))

	cached := s.GetStats(true)
	require.NotNil(t, cached.Data)
	assert.Equal(t, 62.5, cached.Data.OverallAlignment)
	assert.True(t, cached.FromServer)
}

func TestPreferencesRoundTrip(t *testing.T) {
	s := testStore(t, Options{})

	assert.Empty(t, s.GetPreferences())

	prefs := map[string]interface{}{"milestoneAlerts": true, "preferredGrade": "A"}
	require.NoError(t, s.StorePreferences(prefs))

	got := s.GetPreferences()
	assert.Equal(t, true, got["milestoneAlerts"])
	assert.Equal(t, "A", got["preferredGrade"])
}

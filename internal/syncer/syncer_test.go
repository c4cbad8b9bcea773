package syncer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rosa/ecogoals-sync/internal/database"
	"github.com/rosa/ecogoals-sync/internal/events"
	"github.com/rosa/ecogoals-sync/internal/models"
	"github.com/rosa/ecogoals-sync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory goal authority.
type fakeClient struct {
	mu         sync.Mutex
	goals      map[uuid.UUID]models.Goal
	failTitles map[string]bool
	listErr    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		goals:      make(map[uuid.UUID]models.Goal),
		failTitles: make(map[string]bool),
	}
}

func (f *fakeClient) ListGoals(ctx context.Context, token string) ([]models.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.Goal, 0, len(f.goals))
	for _, g := range f.goals {
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeClient) CreateGoal(ctx context.Context, token string, req models.CreateGoalRequest) (*models.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTitles[req.Title] {
		return nil, fmt.Errorf("%w: simulated outage", models.ErrTransient)
	}
	goal := models.Goal{
		ID:         uuid.New(),
		Title:      req.Title,
		GoalType:   req.GoalType,
		GoalConfig: req.GoalConfig,
		IsActive:   true,
		Version:    1,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	f.goals[goal.ID] = goal
	return &goal, nil
}

func (f *fakeClient) UpdateGoal(ctx context.Context, token string, id uuid.UUID, req models.UpdateGoalRequest) (*models.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	goal, ok := f.goals[id]
	if !ok {
		return nil, fmt.Errorf("remote: goal not found")
	}
	if req.Title != nil {
		goal.Title = *req.Title
	}
	if req.IsActive != nil {
		goal.IsActive = *req.IsActive
	}
	goal.Version++
	goal.UpdatedAt = time.Now().UTC()
	f.goals[id] = goal
	return &goal, nil
}

func (f *fakeClient) DeleteGoal(ctx context.Context, token string, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.goals, id)
	return nil
}

func (f *fakeClient) GetGoalStats(ctx context.Context, token string) (*models.GoalStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.GoalStats{TotalGoals: len(f.goals)}, nil
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := database.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, database.MigrateStore(db))
	return store.New(db, nil, store.Options{})
}

func testOrchestrator(t *testing.T, st *store.Store, client *fakeClient) (*Orchestrator, *events.Hub) {
	t.Helper()
	hub := events.NewHub()
	t.Cleanup(hub.Close)
	o := New(st, client, hub, nil, func() string { return "test-token" }, Options{})
	return o, hub
}

func createReq(title string) models.CreateGoalRequest {
	return models.CreateGoalRequest{
		Title:    title,
		GoalType: models.GoalTypeGrade,
		GoalConfig: models.GoalConfig{
			TargetGrades: []string{models.GradeA},
			Percentage:   60,
		},
	}
}

func TestOfflineCreateDrainsOnSync(t *testing.T) {
	st := testStore(t)
	client := newFakeClient()
	o, _ := testOrchestrator(t, st, client)

	// Simulate an offline creation: local goal with a client-assigned id
	// plus a queued create change.
	clientID := uuid.New()
	localGoal := models.Goal{
		ID:         clientID,
		Title:      "offline goal",
		GoalType:   models.GoalTypeGrade,
		GoalConfig: models.GoalConfig{TargetGrades: []string{models.GradeA}, Percentage: 60},
		IsActive:   true,
	}
	require.NoError(t, st.StoreGoals([]models.Goal{localGoal}, false))
	_, err := st.RecordOfflineChange(models.ChangeTypeCreate, createReq("offline goal"), &clientID)
	require.NoError(t, err)

	require.NoError(t, o.Sync(context.Background()))

	// The drained change is gone and the goal now carries the server id.
	assert.Empty(t, st.OfflineChanges())
	cached := st.GetGoals(false)
	require.Len(t, cached.Data, 1)
	assert.NotEqual(t, clientID, cached.Data[0].ID)
	assert.Equal(t, 1, cached.Data[0].Version)
	assert.True(t, cached.FromServer)
}

func TestDrainToleratesSingleFailure(t *testing.T) {
	st := testStore(t)
	client := newFakeClient()
	client.failTitles["bad goal"] = true
	o, _ := testOrchestrator(t, st, client)

	badID, goodID := uuid.New(), uuid.New()
	_, err := st.RecordOfflineChange(models.ChangeTypeCreate, createReq("bad goal"), &badID)
	require.NoError(t, err)
	_, err = st.RecordOfflineChange(models.ChangeTypeCreate, createReq("good goal"), &goodID)
	require.NoError(t, err)

	require.NoError(t, o.Sync(context.Background()))

	// One bad mutation must not block the queue: the good one drained,
	// the bad one is still pending for the next cycle.
	remaining := st.OfflineChanges()
	require.Len(t, remaining, 1)
	assert.Equal(t, models.ChangeTypeCreate, remaining[0].Type)
	assert.Equal(t, badID, *remaining[0].GoalID)

	cached := st.GetGoals(false)
	titles := make([]string, 0, len(cached.Data))
	for _, g := range cached.Data {
		titles = append(titles, g.Title)
	}
	assert.Contains(t, titles, "good goal")
}

func TestPullFailureSetsErrorAndKeepsSnapshot(t *testing.T) {
	st := testStore(t)
	client := newFakeClient()
	o, _ := testOrchestrator(t, st, client)

	// Seed a good snapshot via one successful sync.
	_, err := client.CreateGoal(context.Background(), "t", createReq("existing"))
	require.NoError(t, err)
	require.NoError(t, o.Sync(context.Background()))
	require.Len(t, st.GetGoals(false).Data, 1)

	client.mu.Lock()
	client.listErr = fmt.Errorf("%w: connection refused", models.ErrTransient)
	client.mu.Unlock()

	err = o.Sync(context.Background())
	require.Error(t, err)

	status := o.Status()
	assert.Equal(t, StateError, status.State)
	assert.NotEmpty(t, status.LastError)

	// Last good snapshot still served.
	assert.Len(t, st.GetGoals(false).Data, 1)

	// Recovers on the next cycle without a restart.
	client.mu.Lock()
	client.listErr = nil
	client.mu.Unlock()
	require.NoError(t, o.ForceSync(context.Background()))
	assert.Equal(t, StateIdle, o.Status().State)
}

func TestDeleteDrainClearsTombstone(t *testing.T) {
	st := testStore(t)
	client := newFakeClient()
	o, _ := testOrchestrator(t, st, client)

	created, err := client.CreateGoal(context.Background(), "t", createReq("doomed"))
	require.NoError(t, err)

	_, err = st.RecordOfflineChange(models.ChangeTypeDelete, nil, &created.ID)
	require.NoError(t, err)
	require.True(t, st.Tombstones()[created.ID])

	require.NoError(t, o.Sync(context.Background()))

	assert.False(t, st.Tombstones()[created.ID])
	assert.Empty(t, st.GetGoals(false).Data)
}

func TestSyncIsNoOpWhileOffline(t *testing.T) {
	st := testStore(t)
	client := newFakeClient()
	o, _ := testOrchestrator(t, st, client)
	o.SetOnline(false)

	goalID := uuid.New()
	_, err := st.RecordOfflineChange(models.ChangeTypeCreate, createReq("queued"), &goalID)
	require.NoError(t, err)

	require.NoError(t, o.Sync(context.Background()))

	// Nothing drained, nothing pulled.
	assert.Len(t, st.OfflineChanges(), 1)
	assert.True(t, o.Status().Offline)
	_, synced := st.LastSync()
	assert.False(t, synced)
}

func TestSyncEmitsLifecycleEvents(t *testing.T) {
	st := testStore(t)
	client := newFakeClient()
	o, hub := testOrchestrator(t, st, client)

	ch, unsub := hub.Subscribe()
	defer unsub()

	require.NoError(t, o.Sync(context.Background()))

	first := <-ch
	assert.Equal(t, events.EventSyncStart, first.Type)
	second := <-ch
	assert.Equal(t, events.EventSyncComplete, second.Type)
}

// blockingClient parks ListGoals until released, so a sync pass can be
// held in flight while further triggers arrive.
type blockingClient struct {
	*fakeClient
	enter   chan struct{}
	release chan struct{}
}

func (b *blockingClient) ListGoals(ctx context.Context, token string) ([]models.Goal, error) {
	b.enter <- struct{}{}
	<-b.release
	return b.fakeClient.ListGoals(ctx, token)
}

func TestConcurrentTriggersCollapseIntoOnePass(t *testing.T) {
	st := testStore(t)
	client := &blockingClient{
		fakeClient: newFakeClient(),
		enter:      make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
	hub := events.NewHub()
	t.Cleanup(hub.Close)
	o := New(st, client, hub, nil, func() string { return "test-token" }, Options{})

	ch, unsub := hub.Subscribe()
	defer unsub()

	done := make(chan error, 1)
	go func() { done <- o.Sync(context.Background()) }()
	<-client.enter // first pass now parked inside the pull

	// Triggers while a pass is in flight collapse to no-ops, not a queue.
	require.NoError(t, o.Sync(context.Background()))
	require.NoError(t, o.ForceSync(context.Background()))
	o.SyncIfNeeded(context.Background())
	assert.Equal(t, StateSyncing, o.Status().State)

	close(client.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, o.Status().State)

	// Exactly one pass ran: one start, one complete, nothing after.
	assert.Equal(t, events.EventSyncStart, (<-ch).Type)
	assert.Equal(t, events.EventSyncComplete, (<-ch).Type)
	select {
	case ev := <-ch:
		t.Fatalf("expected a single pass, got extra %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNeedsSyncGateSkipsFreshState(t *testing.T) {
	st := testStore(t)
	client := newFakeClient()
	o, hub := testOrchestrator(t, st, client)

	require.NoError(t, o.Sync(context.Background()))

	ch, unsub := hub.Subscribe()
	defer unsub()

	// Fresh sync, empty queue: the gate collapses the pass.
	o.SyncIfNeeded(context.Background())
	select {
	case ev := <-ch:
		t.Fatalf("expected no sync activity, got %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

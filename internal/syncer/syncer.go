package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rosa/ecogoals-sync/internal/api"
	"github.com/rosa/ecogoals-sync/internal/events"
	"github.com/rosa/ecogoals-sync/internal/logger"
	"github.com/rosa/ecogoals-sync/internal/models"
	"github.com/rosa/ecogoals-sync/internal/resolver"
	"github.com/rosa/ecogoals-sync/internal/store"
)

// Sync states. Offline is an overlay, not a state: reachability can flip
// at any time regardless of what the machine is doing.
const (
	StateIdle    = "idle"
	StateSyncing = "syncing"
	StateError   = "error"
)

// Status is a snapshot of the orchestrator for the UI.
type Status struct {
	State     string    `json:"state"`
	Offline   bool      `json:"offline"`
	LastError string    `json:"lastError,omitempty"`
	LastSync  time.Time `json:"lastSync,omitempty"`
}

type Options struct {
	Interval time.Duration
	MaxAge   time.Duration
}

// Orchestrator owns online/offline detection, drains the offline change
// queue against the server, and re-pulls authoritative state.
type Orchestrator struct {
	store  *store.Store
	client api.Client
	hub    *events.Hub
	log    *logger.Logger
	token  func() string

	interval time.Duration
	maxAge   time.Duration

	mu        sync.Mutex
	online    bool
	state     string
	lastError string
	syncing   bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func New(st *store.Store, client api.Client, hub *events.Hub, log *logger.Logger, token func() string, opts Options) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &Orchestrator{
		store:    st,
		client:   client,
		hub:      hub,
		log:      log.With("component", "syncer"),
		token:    token,
		interval: interval,
		maxAge:   maxAge,
		online:   true,
		state:    StateIdle,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the periodic sync loop until Stop is called.
func (o *Orchestrator) Start() {
	go func() {
		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()
		for {
			select {
			case <-o.stopCh:
				return
			case <-ticker.C:
				o.SyncIfNeeded(context.Background())
			}
		}
	}()
}

func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

// SetOnline flips the reachability overlay. Coming back online kicks off a
// sync pass in the background.
func (o *Orchestrator) SetOnline(online bool) {
	o.mu.Lock()
	wasOnline := o.online
	o.online = online
	o.mu.Unlock()

	if online && !wasOnline {
		go o.SyncIfNeeded(context.Background())
	}
}

func (o *Orchestrator) Online() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{
		State:     o.state,
		Offline:   !o.online,
		LastError: o.lastError,
	}
	if last, ok := o.store.LastSync(); ok {
		st.LastSync = last
	}
	return st
}

// SyncIfNeeded runs a sync pass when one is due.
func (o *Orchestrator) SyncIfNeeded(ctx context.Context) {
	if check := o.store.NeedsSync(o.maxAge); !check.NeedsSync {
		return
	}
	_ = o.Sync(ctx)
}

// ForceSync bypasses the needs-sync gate, for user-triggered refresh.
func (o *Orchestrator) ForceSync(ctx context.Context) error {
	return o.Sync(ctx)
}

// Sync drains the offline queue then pulls authoritative state. Only one
// pass may be in flight; a second trigger while syncing is a no-op, not
// queued. While offline the whole pass is a no-op.
func (o *Orchestrator) Sync(ctx context.Context) error {
	o.mu.Lock()
	if o.syncing || !o.online {
		o.mu.Unlock()
		return nil
	}
	o.syncing = true
	o.state = StateSyncing
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.syncing = false
		o.mu.Unlock()
	}()

	o.hub.Emit(events.EventSyncStart, nil)

	drained, failed := o.drainChanges(ctx)
	if removed := o.store.ClearSyncedChanges(); removed > 0 {
		o.log.Debug("garbage-collected synced changes", "removed", removed)
	}

	result, err := o.pull(ctx)
	if err != nil {
		o.mu.Lock()
		o.state = StateError
		o.lastError = err.Error()
		o.mu.Unlock()
		o.log.Warn("sync failed, serving last good snapshot", "error", err)
		o.hub.Emit(events.EventSyncError, map[string]interface{}{"error": err.Error()})
		return err
	}

	o.mu.Lock()
	o.state = StateIdle
	o.lastError = ""
	o.mu.Unlock()

	o.hub.Emit(events.EventSyncComplete, map[string]interface{}{
		"goals":     len(result.Resolved),
		"conflicts": len(result.Conflicts),
		"drained":   drained,
		"failed":    failed,
	})
	return nil
}

// drainChanges applies queued offline changes in FIFO order. One bad
// change must not block the queue: a failed change stays unsynced and the
// drain moves on.
func (o *Orchestrator) drainChanges(ctx context.Context) (drained, failed int) {
	changes := o.store.OfflineChanges()
	if len(changes) == 0 {
		return 0, 0
	}

	token := o.token()
	// Creates assign server ids; later changes in the same drain may still
	// reference the client id.
	idMap := make(map[uuid.UUID]uuid.UUID)

	var synced []uuid.UUID
	for _, change := range changes {
		if err := o.applyChange(ctx, token, change, idMap); err != nil {
			o.log.Warn("offline change failed, will retry next cycle",
				"changeId", change.ID, "type", change.Type, "error", err)
			failed++
			continue
		}
		synced = append(synced, change.ID)
		drained++
	}

	if err := o.store.MarkChangesSynced(synced); err != nil {
		o.log.Error("mark drained changes synced", "error", err)
	}
	return drained, failed
}

func (o *Orchestrator) applyChange(ctx context.Context, token string, change models.OfflineChange, idMap map[uuid.UUID]uuid.UUID) error {
	goalID := uuid.Nil
	if change.GoalID != nil {
		goalID = *change.GoalID
		if mapped, ok := idMap[goalID]; ok {
			goalID = mapped
		}
	}

	switch change.Type {
	case models.ChangeTypeCreate:
		var req models.CreateGoalRequest
		if err := json.Unmarshal(change.Payload, &req); err != nil {
			return err
		}
		created, err := o.client.CreateGoal(ctx, token, req)
		if err != nil {
			return err
		}
		if change.GoalID != nil {
			idMap[*change.GoalID] = created.ID
			o.adoptServerID(*change.GoalID, *created)
		}
		return nil

	case models.ChangeTypeUpdate:
		var req models.UpdateGoalRequest
		if err := json.Unmarshal(change.Payload, &req); err != nil {
			return err
		}
		_, err := o.client.UpdateGoal(ctx, token, goalID, req)
		return err

	case models.ChangeTypeDelete:
		if err := o.client.DeleteGoal(ctx, token, goalID); err != nil {
			return err
		}
		o.store.RemoveTombstone(goalID)
		return nil

	default:
		o.log.Warn("dropping offline change of unknown type", "type", change.Type)
		return nil
	}
}

// adoptServerID swaps a client-assigned goal id in the local cache for the
// id the server assigned on create.
func (o *Orchestrator) adoptServerID(clientID uuid.UUID, serverGoal models.Goal) {
	cached := o.store.GetGoals(false)
	if !cached.Cached {
		return
	}
	goals := cached.Data
	for i := range goals {
		if goals[i].ID == clientID {
			goals[i] = serverGoal
			break
		}
	}
	if err := o.store.StoreGoals(goals, cached.FromServer); err != nil {
		o.log.Error("adopt server id", "clientId", clientID, "error", err)
	}
}

// pull fetches the authoritative goal list and stats, reconciles with the
// local cache, and persists the resolved set.
func (o *Orchestrator) pull(ctx context.Context) (*resolver.Result, error) {
	token := o.token()

	serverGoals, err := o.client.ListGoals(ctx, token)
	if err != nil {
		return nil, err
	}

	local := o.store.GetGoals(false)
	result := resolver.Resolve(local.Data, serverGoals, o.store.Tombstones())
	if len(result.Conflicts) > 0 {
		o.log.Info("resolved conflicts during sync", "count", len(result.Conflicts))
	}

	if err := o.store.StoreGoals(result.Resolved, true); err != nil {
		return nil, err
	}

	if stats, err := o.client.GetGoalStats(ctx, token); err != nil {
		// Stats are a convenience snapshot; a failed fetch does not fail
		// the sync.
		o.log.Warn("stats pull failed", "error", err)
	} else if err := o.store.StoreStats(stats, true); err != nil {
		o.log.Error("store stats", "error", err)
	}

	if err := o.store.UpdateLastSync(); err != nil {
		o.log.Error("update last sync", "error", err)
	}
	return &result, nil
}

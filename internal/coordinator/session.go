package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rosa/ecogoals-sync/internal/api"
	"github.com/rosa/ecogoals-sync/internal/events"
	"github.com/rosa/ecogoals-sync/internal/logger"
	"github.com/rosa/ecogoals-sync/internal/models"
	"github.com/rosa/ecogoals-sync/internal/progress"
	"github.com/rosa/ecogoals-sync/internal/store"
	"github.com/rosa/ecogoals-sync/internal/syncer"
	"gorm.io/gorm"
)

// ErrClosed is returned when an operation is attempted on a torn-down
// session. Calling a live session never returns it.
var ErrClosed = errors.New("session closed")

type Options struct {
	UserID uuid.UUID // uuid.Nil means the guest namespace
	Token  string

	CacheTTL     time.Duration
	QueueMax     int
	SyncInterval time.Duration
	SyncMaxAge   time.Duration
	RefreshDelay time.Duration
}

// Session is the engine façade consumed by the UI. One session exists per
// signed-in user (or guest): created on login, torn down on logout. It
// owns the store, the orchestrator, and the event hub; its in-memory goal
// list is a cache of the store and is always reconcilable from it.
type Session struct {
	store *store.Store
	orch  *syncer.Orchestrator
	hub   *events.Hub
	log   *logger.Logger

	refreshDelay time.Duration

	mu       sync.Mutex
	token    string
	goals    []models.Goal
	achieved map[uuid.UUID]bool
	alive    bool
}

func NewSession(db *gorm.DB, client api.Client, log *logger.Logger, opts Options) *Session {
	if log == nil {
		log = logger.Nop()
	}

	ns := store.GuestNamespace
	if opts.UserID != uuid.Nil {
		ns = store.NamespaceForUser(opts.UserID)
	}

	s := &Session{
		hub:          events.NewHub(),
		log:          log.With("component", "coordinator", "namespace", ns),
		refreshDelay: opts.RefreshDelay,
		token:        opts.Token,
		achieved:     make(map[uuid.UUID]bool),
		alive:        true,
	}
	if s.refreshDelay <= 0 {
		s.refreshDelay = 2 * time.Second
	}

	s.store = store.New(db, log, store.Options{
		Namespace: ns,
		TTL:       opts.CacheTTL,
		QueueMax:  opts.QueueMax,
	})
	s.orch = syncer.New(s.store, client, s.hub, log, s.currentToken, syncer.Options{
		Interval: opts.SyncInterval,
		MaxAge:   opts.SyncMaxAge,
	})

	// Seed from the last good snapshot so achievement state doesn't
	// re-fire for goals that were already achieved before this session.
	cached := s.store.GetGoals(false)
	s.goals = cached.Data
	for _, g := range cached.Data {
		s.achieved[g.ID] = g.IsAchieved
	}

	s.orch.Start()
	return s
}

// Events exposes the subscription hub for the presentation layer.
func (s *Session) Events() *events.Hub {
	return s.hub
}

// Close tears the session down. Background refreshes that complete after
// this become no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	s.alive = false
	s.mu.Unlock()
	s.orch.Stop()
	s.hub.Close()
}

// SetOnline feeds the network reachability signal through to the
// orchestrator.
func (s *Session) SetOnline(online bool) {
	s.orch.SetOnline(online)
}

func (s *Session) SyncStatus() syncer.Status {
	return s.orch.Status()
}

func (s *Session) currentToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken swaps the session's auth token after a refresh.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// FetchGoals returns the goal list. With useCache the cached snapshot is
// served immediately and a background refresh reconciles later (unless
// offline, in which case the snapshot is final for this cycle). Without
// useCache the call syncs first when online.
func (s *Session) FetchGoals(ctx context.Context, useCache bool) []models.Goal {
	if useCache {
		cached := s.store.GetGoals(true)
		s.adopt(cached.Data)
		// Serve the snapshot immediately, revalidate behind it. The sync
		// single-flight guard collapses redundant passes.
		if s.orch.Online() {
			go s.backgroundRefresh()
		}
		return s.snapshot()
	}

	if s.orch.Online() {
		if err := s.orch.ForceSync(ctx); err != nil {
			s.log.Warn("fetch sync failed, serving cache", "error", err)
		}
	}
	s.adopt(s.store.GetGoals(false).Data)
	return s.snapshot()
}

// ForceRefresh is the explicit user-triggered refresh.
func (s *Session) ForceRefresh(ctx context.Context) []models.Goal {
	return s.FetchGoals(ctx, false)
}

func (s *Session) backgroundRefresh() {
	if err := s.orch.ForceSync(context.Background()); err != nil {
		return
	}
	s.mu.Lock()
	alive := s.alive
	s.mu.Unlock()
	if !alive {
		return
	}
	s.adopt(s.store.GetGoals(false).Data)
}

// adopt replaces the in-memory goal list with a reconciled one and fires
// achievement/milestone transitions against the previous list.
func (s *Session) adopt(goals []models.Goal) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	prev := indexGoals(s.goals)
	s.goals = goals
	transitions := s.detectTransitionsLocked(prev, goals)
	s.mu.Unlock()

	for _, t := range transitions {
		s.hub.Emit(t.event, t.data)
	}
}

func (s *Session) snapshot() []models.Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Goal, len(s.goals))
	copy(out, s.goals)
	return out
}

// CreateGoal validates and creates a goal optimistically. The change is
// queued and the scheduled refresh drains it to the server when online.
func (s *Session) CreateGoal(ctx context.Context, req models.CreateGoalRequest) (*models.Goal, error) {
	if err := models.ValidateGoalConfig(req.GoalType, req.GoalConfig); err != nil {
		return nil, err
	}
	if !s.isAlive() {
		return nil, ErrClosed
	}

	goal := models.Goal{
		ID:         uuid.New(),
		Title:      req.Title,
		GoalType:   req.GoalType,
		GoalConfig: req.GoalConfig,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if req.IsActive != nil {
		goal.IsActive = *req.IsActive
	}

	s.queueChange(models.ChangeTypeCreate, req, goal.ID)
	s.applyLocal(func(goals []models.Goal) []models.Goal {
		return append(goals, goal)
	})

	s.scheduleRefresh()
	return &goal, nil
}

// UpdateGoal applies a partial update optimistically and queues it for the
// server.
func (s *Session) UpdateGoal(ctx context.Context, id uuid.UUID, req models.UpdateGoalRequest) (*models.Goal, error) {
	if !s.isAlive() {
		return nil, ErrClosed
	}

	// Reject before any mutation: the config must be valid for the goal's
	// existing type.
	if req.GoalConfig != nil {
		s.mu.Lock()
		goalType := ""
		for _, g := range s.goals {
			if g.ID == id {
				goalType = g.GoalType
				break
			}
		}
		s.mu.Unlock()
		if goalType == "" {
			return nil, errors.New("goal not found")
		}
		if err := models.ValidateGoalConfig(goalType, *req.GoalConfig); err != nil {
			return nil, err
		}
	}

	var updated *models.Goal
	s.applyLocal(func(goals []models.Goal) []models.Goal {
		for i := range goals {
			if goals[i].ID != id {
				continue
			}
			if req.Title != nil {
				goals[i].Title = *req.Title
			}
			if req.GoalConfig != nil {
				goals[i].GoalConfig = *req.GoalConfig
			}
			if req.IsActive != nil {
				goals[i].IsActive = *req.IsActive
			}
			goals[i].UpdatedAt = time.Now().UTC()
			g := goals[i]
			updated = &g
			break
		}
		return goals
	})
	if updated == nil {
		return nil, errors.New("goal not found")
	}

	s.queueChange(models.ChangeTypeUpdate, req, id)
	s.scheduleRefresh()
	return updated, nil
}

// DeleteGoal removes a goal locally, leaves a tombstone, and queues the
// delete for the server.
func (s *Session) DeleteGoal(ctx context.Context, id uuid.UUID) error {
	if !s.isAlive() {
		return ErrClosed
	}

	s.applyLocal(func(goals []models.Goal) []models.Goal {
		out := goals[:0]
		for _, g := range goals {
			if g.ID != id {
				out = append(out, g)
			}
		}
		return out
	})

	s.queueChange(models.ChangeTypeDelete, nil, id)
	s.scheduleRefresh()
	return nil
}

// Stats returns the cached aggregate snapshot, computing one locally when
// nothing is cached.
func (s *Session) Stats() models.GoalStats {
	cached := s.store.GetStats(true)
	if cached.Cached && !cached.Expired {
		return *cached.Data
	}
	stats := progress.ComputeStats(s.snapshot())
	if err := s.store.StoreStats(&stats, false); err != nil {
		s.log.Warn("cache computed stats", "error", err)
	}
	return stats
}

func (s *Session) queueChange(changeType string, payload interface{}, goalID uuid.UUID) {
	id := goalID
	changeID, err := s.store.RecordOfflineChange(changeType, payload, &id)
	if err != nil {
		// Storage failure degrades to in-memory only; the next successful
		// sync pull will reconcile whatever survives.
		s.log.Error("record offline change", "type", changeType, "error", err)
		return
	}
	s.hub.Emit(events.EventOfflineChange, map[string]interface{}{
		"changeId": changeID.String(),
		"type":     changeType,
		"goalId":   goalID.String(),
	})
}

// applyLocal mutates the in-memory goal list and persists it as a local
// (not-from-server) snapshot in one critical section.
func (s *Session) applyLocal(mutate func([]models.Goal) []models.Goal) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.goals = mutate(s.goals)
	goals := make([]models.Goal, len(s.goals))
	copy(goals, s.goals)
	s.mu.Unlock()

	if err := s.store.StoreGoals(goals, false); err != nil {
		s.log.Error("persist local goals", "error", err)
	}
}

// scheduleRefresh arranges a deferred authoritative sync. The delay is a
// scheduling hint only: correctness comes from the refresh merging through
// the conflict resolver, not from the timing.
func (s *Session) scheduleRefresh() {
	if !s.orch.Online() {
		return
	}
	time.AfterFunc(s.refreshDelay, func() {
		if !s.isAlive() {
			return
		}
		s.backgroundRefresh()
	})
}

func (s *Session) isAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func indexGoals(goals []models.Goal) map[uuid.UUID]models.Goal {
	m := make(map[uuid.UUID]models.Goal, len(goals))
	for _, g := range goals {
		m[g.ID] = g
	}
	return m
}

package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rosa/ecogoals-sync/internal/logger"
	"github.com/rosa/ecogoals-sync/internal/models"
	"gorm.io/gorm"
)

// Cache keys. One row per key per namespace.
const (
	keyGoals = "goals"
	keyStats = "goal_stats"
	keyPrefs = "preferences"
)

// GuestNamespace scopes cached state when nobody is signed in.
const GuestNamespace = "guest"

// NamespaceForUser returns the cache namespace for a signed-in user.
func NamespaceForUser(userID uuid.UUID) string {
	return "user:" + userID.String()
}

type Options struct {
	Namespace string
	TTL       time.Duration
	QueueMax  int
}

// Store is the durable per-user cache: goals, stats, the offline mutation
// log, deletion tombstones, and sync metadata. Storage failures are logged
// and converted to safe defaults; the engine degrades to "no cache" rather
// than crashing.
type Store struct {
	db       *gorm.DB
	log      *logger.Logger
	ns       string
	ttl      time.Duration
	queueMax int
}

func New(db *gorm.DB, log *logger.Logger, opts Options) *Store {
	if log == nil {
		log = logger.Nop()
	}
	ns := opts.Namespace
	if ns == "" {
		ns = GuestNamespace
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	queueMax := opts.QueueMax
	if queueMax <= 0 {
		queueMax = 100
	}
	return &Store{
		db:       db,
		log:      log.With("component", "store", "namespace", ns),
		ns:       ns,
		ttl:      ttl,
		queueMax: queueMax,
	}
}

// Namespace returns the namespace this store is scoped to.
func (s *Store) Namespace() string {
	return s.ns
}

// StoreGoals persists the goal list. Each write bumps the entry's version.
func (s *Store) StoreGoals(goals []models.Goal, fromServer bool) error {
	return s.putEntry(keyGoals, goals, fromServer)
}

// GetGoals returns the cached goal list. A missing or unreadable entry
// yields an empty, not-cached result, never an error.
func (s *Store) GetGoals(validateExpiry bool) models.CachedGoals {
	entry, ok := s.getEntry(keyGoals)
	if !ok {
		return models.CachedGoals{Data: []models.Goal{}}
	}

	var goals []models.Goal
	if err := json.Unmarshal(entry.Data, &goals); err != nil {
		s.log.Warn("cached goals unreadable", "error", err)
		return models.CachedGoals{Data: []models.Goal{}}
	}

	return models.CachedGoals{
		Data:       goals,
		Cached:     true,
		Expired:    validateExpiry && time.Since(entry.Timestamp) > s.ttl,
		FromServer: entry.FromServer,
		Timestamp:  entry.Timestamp,
	}
}

// StoreStats persists the aggregate stats snapshot.
func (s *Store) StoreStats(stats *models.GoalStats, fromServer bool) error {
	return s.putEntry(keyStats, stats, fromServer)
}

// GetStats returns the cached stats snapshot, nil Data when absent.
func (s *Store) GetStats(validateExpiry bool) models.CachedStats {
	entry, ok := s.getEntry(keyStats)
	if !ok {
		return models.CachedStats{}
	}

	var stats models.GoalStats
	if err := json.Unmarshal(entry.Data, &stats); err != nil {
		s.log.Warn("cached stats unreadable", "error", err)
		return models.CachedStats{}
	}

	return models.CachedStats{
		Data:       &stats,
		Cached:     true,
		Expired:    validateExpiry && time.Since(entry.Timestamp) > s.ttl,
		FromServer: entry.FromServer,
		Timestamp:  entry.Timestamp,
	}
}

// StorePreferences persists the user's engine preferences. Preferences
// never come from the server; they are device-local state.
func (s *Store) StorePreferences(prefs map[string]interface{}) error {
	return s.putEntry(keyPrefs, prefs, false)
}

// GetPreferences returns the stored preferences, empty when absent.
// Preferences do not expire.
func (s *Store) GetPreferences() map[string]interface{} {
	entry, ok := s.getEntry(keyPrefs)
	if !ok {
		return map[string]interface{}{}
	}

	var prefs map[string]interface{}
	if err := json.Unmarshal(entry.Data, &prefs); err != nil {
		s.log.Warn("cached preferences unreadable", "error", err)
		return map[string]interface{}{}
	}
	return prefs
}

func (s *Store) putEntry(key string, payload interface{}, fromServer bool) error {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("marshal cache entry", "key", key, "error", err)
		return err
	}

	var existing models.CacheEntry
	version := 1
	if err := s.db.Where("namespace = ? AND key = ?", s.ns, key).First(&existing).Error; err == nil {
		version = existing.Version + 1
	}

	entry := models.CacheEntry{
		Namespace:  s.ns,
		Key:        key,
		Data:       data,
		Timestamp:  time.Now().UTC(),
		FromServer: fromServer,
		Version:    version,
	}
	if err := s.db.Save(&entry).Error; err != nil {
		s.log.Error("write cache entry", "key", key, "error", err)
		return err
	}
	return nil
}

func (s *Store) getEntry(key string) (*models.CacheEntry, bool) {
	var entry models.CacheEntry
	err := s.db.Where("namespace = ? AND key = ?", s.ns, key).First(&entry).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			s.log.Error("read cache entry", "key", key, "error", err)
		}
		return nil, false
	}
	return &entry, true
}

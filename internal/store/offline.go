package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rosa/ecogoals-sync/internal/models"
)

// RecordOfflineChange appends a mutation to the offline log. The log is a
// bounded queue: when it is full the oldest entries are evicted, overflow
// is not an error. Delete changes also leave a tombstone so a later server
// pull cannot resurrect the goal.
func (s *Store) RecordOfflineChange(changeType string, payload interface{}, goalID *uuid.UUID) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("marshal offline change", "type", changeType, "error", err)
		return uuid.Nil, err
	}

	change := models.OfflineChange{
		Namespace: s.ns,
		Type:      changeType,
		GoalID:    goalID,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}
	if err := s.db.Create(&change).Error; err != nil {
		s.log.Error("record offline change", "type", changeType, "error", err)
		return uuid.Nil, err
	}

	if changeType == models.ChangeTypeDelete && goalID != nil {
		s.AddTombstone(*goalID)
	}

	s.evictOverflow()
	return change.ID, nil
}

func (s *Store) evictOverflow() {
	var count int64
	if err := s.db.Model(&models.OfflineChange{}).Where("namespace = ?", s.ns).Count(&count).Error; err != nil {
		s.log.Error("count offline changes", "error", err)
		return
	}
	excess := int(count) - s.queueMax
	if excess <= 0 {
		return
	}

	var oldest []models.OfflineChange
	if err := s.db.Where("namespace = ?", s.ns).Order("timestamp asc, id asc").Limit(excess).Find(&oldest).Error; err != nil {
		s.log.Error("load oldest offline changes", "error", err)
		return
	}
	ids := make([]uuid.UUID, len(oldest))
	for i, c := range oldest {
		ids[i] = c.ID
	}
	if err := s.db.Where("id IN ?", ids).Delete(&models.OfflineChange{}).Error; err != nil {
		s.log.Error("evict offline changes", "error", err)
		return
	}
	s.log.Warn("offline queue overflow, evicted oldest", "evicted", excess)
}

// OfflineChanges returns the unsynced changes in FIFO order. Failures yield
// an empty list.
func (s *Store) OfflineChanges() []models.OfflineChange {
	var changes []models.OfflineChange
	err := s.db.Where("namespace = ? AND synced = ?", s.ns, false).
		Order("timestamp asc, id asc").
		Find(&changes).Error
	if err != nil {
		s.log.Error("load offline changes", "error", err)
		return nil
	}
	return changes
}

// MarkChangesSynced flags the given changes as applied on the server.
func (s *Store) MarkChangesSynced(ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.Model(&models.OfflineChange{}).
		Where("namespace = ? AND id IN ?", s.ns, ids).
		Update("synced", true).Error
	if err != nil {
		s.log.Error("mark changes synced", "error", err)
	}
	return err
}

// ClearSyncedChanges garbage-collects applied changes, returning how many
// were removed.
func (s *Store) ClearSyncedChanges() int {
	res := s.db.Where("namespace = ? AND synced = ?", s.ns, true).Delete(&models.OfflineChange{})
	if res.Error != nil {
		s.log.Error("clear synced changes", "error", res.Error)
		return 0
	}
	return int(res.RowsAffected)
}

// AddTombstone marks a goal as locally deleted but not yet confirmed.
func (s *Store) AddTombstone(goalID uuid.UUID) {
	ts := models.Tombstone{GoalID: goalID, Namespace: s.ns, DeletedAt: time.Now().UTC()}
	if err := s.db.Save(&ts).Error; err != nil {
		s.log.Error("write tombstone", "goalId", goalID, "error", err)
	}
}

// RemoveTombstone clears a tombstone once the server confirmed the delete.
func (s *Store) RemoveTombstone(goalID uuid.UUID) {
	err := s.db.Where("namespace = ? AND goal_id = ?", s.ns, goalID).Delete(&models.Tombstone{}).Error
	if err != nil {
		s.log.Error("remove tombstone", "goalId", goalID, "error", err)
	}
}

// Tombstones returns the set of locally deleted goal ids awaiting server
// confirmation.
func (s *Store) Tombstones() map[uuid.UUID]bool {
	var rows []models.Tombstone
	if err := s.db.Where("namespace = ?", s.ns).Find(&rows).Error; err != nil {
		s.log.Error("load tombstones", "error", err)
		return nil
	}
	set := make(map[uuid.UUID]bool, len(rows))
	for _, t := range rows {
		set[t.GoalID] = true
	}
	return set
}

// LastSync returns when this namespace last completed a full sync.
func (s *Store) LastSync() (time.Time, bool) {
	var meta models.SyncMeta
	if err := s.db.Where("namespace = ?", s.ns).First(&meta).Error; err != nil {
		return time.Time{}, false
	}
	return meta.LastSyncAt, true
}

// UpdateLastSync stamps a completed sync.
func (s *Store) UpdateLastSync() error {
	meta := models.SyncMeta{Namespace: s.ns, LastSyncAt: time.Now().UTC()}
	if err := s.db.Save(&meta).Error; err != nil {
		s.log.Error("update last sync", "error", err)
		return err
	}
	return nil
}

// NeedsSync reports whether a sync pass is due: never synced, last sync
// older than maxAge, or any unsynced offline change.
func (s *Store) NeedsSync(maxAge time.Duration) models.SyncCheck {
	var unsynced int64
	if err := s.db.Model(&models.OfflineChange{}).
		Where("namespace = ? AND synced = ?", s.ns, false).
		Count(&unsynced).Error; err != nil {
		s.log.Error("count unsynced changes", "error", err)
	}

	check := models.SyncCheck{UnsyncedChanges: int(unsynced)}
	last, ok := s.LastSync()
	if !ok || time.Since(last) > maxAge || unsynced > 0 {
		check.NeedsSync = true
	}
	return check
}

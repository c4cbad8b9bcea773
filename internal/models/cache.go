package models

import "time"

// CacheEntry is a persisted cache row. Data is the JSON encoding of the
// cached payload; the key identifies what kind of payload it is.
type CacheEntry struct {
	Namespace  string    `gorm:"primaryKey"`
	Key        string    `gorm:"primaryKey"`
	Data       []byte    `gorm:"not null"`
	Timestamp  time.Time `gorm:"not null"`
	FromServer bool
	Version    int
}

// CachedGoals is what LocalStore returns for a goals read. Expired entries
// are still returned; Expired tells the caller the TTL has lapsed so it can
// decide whether a refresh is warranted.
type CachedGoals struct {
	Data       []Goal
	Cached     bool
	Expired    bool
	FromServer bool
	Timestamp  time.Time
}

// CachedStats is the equivalent for the stats snapshot.
type CachedStats struct {
	Data       *GoalStats
	Cached     bool
	Expired    bool
	FromServer bool
	Timestamp  time.Time
}

// SyncMeta tracks when a namespace last completed a full sync, independent
// of per-entry TTLs.
type SyncMeta struct {
	Namespace  string    `gorm:"primaryKey"`
	LastSyncAt time.Time `gorm:"not null"`
}

// SyncCheck is the result of LocalStore.NeedsSync.
type SyncCheck struct {
	NeedsSync       bool
	UnsyncedChanges int
}

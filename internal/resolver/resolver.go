package resolver

import (
	"sort"

	"github.com/google/uuid"
	"github.com/rosa/ecogoals-sync/internal/models"
)

// Result is the outcome of reconciling a local goal set with the server's.
// Conflicts records every divergence, including the losing version; only
// the resolved list drops it.
type Result struct {
	Resolved  []models.Goal
	Conflicts []models.ConflictRecord
}

// Resolve merges the two goal sets into one consistent set.
//   - Id only local: kept (a not-yet-synced creation).
//   - Id only on server: adopted, unless a local tombstone marks it as a
//     pending delete.
//   - Id on both sides: server wins when the user-authored fields agree
//     (server progress is authoritative); otherwise the higher server
//     version wins, falling back to the later timestamp when versions tie.
//
// Output order is sorted by id, so identical inputs always produce
// identical output.
func Resolve(local, server []models.Goal, tombstones map[uuid.UUID]bool) Result {
	localByID := indexByID(local)
	serverByID := indexByID(server)

	ids := make([]uuid.UUID, 0, len(localByID)+len(serverByID))
	seen := make(map[uuid.UUID]bool)
	for _, g := range local {
		if !seen[g.ID] {
			seen[g.ID] = true
			ids = append(ids, g.ID)
		}
	}
	for _, g := range server {
		if !seen[g.ID] {
			seen[g.ID] = true
			ids = append(ids, g.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var result Result
	for _, id := range ids {
		lg, inLocal := localByID[id]
		sg, inServer := serverByID[id]

		switch {
		case inLocal && !inServer:
			result.Resolved = append(result.Resolved, lg)
		case !inLocal && inServer:
			if tombstones[id] {
				continue
			}
			result.Resolved = append(result.Resolved, sg)
		default:
			if lg.Equivalent(sg) {
				result.Resolved = append(result.Resolved, sg)
				continue
			}

			winner, resolution := pickWinner(lg, sg)
			result.Resolved = append(result.Resolved, winner)
			result.Conflicts = append(result.Conflicts, models.ConflictRecord{
				GoalID:     id.String(),
				Fields:     diffFields(lg, sg),
				Local:      lg,
				Server:     sg,
				Resolution: resolution,
			})
		}
	}
	return result
}

func pickWinner(local, server models.Goal) (models.Goal, string) {
	if server.Version != local.Version {
		if server.Version > local.Version {
			return server, "server"
		}
		return local, "local"
	}

	// Versions tie only when one side never synced; fall back to wall
	// clocks, then creation time.
	lt, st := local.UpdatedAt, server.UpdatedAt
	if lt.IsZero() {
		lt = local.CreatedAt
	}
	if st.IsZero() {
		st = server.CreatedAt
	}
	if lt.After(st) {
		return local, "local"
	}
	return server, "server"
}

func diffFields(local, server models.Goal) []string {
	var fields []string
	if local.Title != server.Title {
		fields = append(fields, "title")
	}
	if local.GoalType != server.GoalType {
		fields = append(fields, "goalType")
	}
	if !local.GoalConfig.ConfigEquals(server.GoalConfig) {
		fields = append(fields, "goalConfig")
	}
	if local.IsActive != server.IsActive {
		fields = append(fields, "isActive")
	}
	return fields
}

func indexByID(goals []models.Goal) map[uuid.UUID]models.Goal {
	m := make(map[uuid.UUID]models.Goal, len(goals))
	for _, g := range goals {
		m[g.ID] = g
	}
	return m
}

package coordinator

import (
	"math"

	"github.com/google/uuid"
	"github.com/rosa/ecogoals-sync/internal/events"
	"github.com/rosa/ecogoals-sync/internal/models"
	"github.com/rosa/ecogoals-sync/internal/progress"
)

// Milestone thresholds, as a percentage of the goal's own target.
var milestoneThresholds = []float64{25, 50, 75, 90}

type transition struct {
	event string
	data  interface{}
}

// MilestoneEvent is the payload of a milestone event.
type MilestoneEvent struct {
	GoalID    uuid.UUID `json:"goalId"`
	Title     string    `json:"title"`
	Threshold float64   `json:"threshold"`
	Percent   float64   `json:"percent"`
}

// AchievementEvent is the payload of an achievement event.
type AchievementEvent struct {
	Goal models.Goal `json:"goal"`
}

// TrackPurchaseProgress folds a completed order's line items into every
// active goal optimistically, then schedules a deferred authoritative
// refresh to correct any drift from server-side computation.
func (s *Session) TrackPurchaseProgress(items []models.PurchaseRecord) {
	if len(items) == 0 || !s.isAlive() {
		return
	}

	s.mu.Lock()
	prev := indexGoals(s.goals)
	for i := range s.goals {
		g := &s.goals[i]
		if !g.IsActive {
			continue
		}
		g.Progress = progress.Apply(g.Progress, *g, items)
		g.IsAchieved = progress.Achieved(*g, g.Progress)
	}
	goals := make([]models.Goal, len(s.goals))
	copy(goals, s.goals)
	transitions := s.detectTransitionsLocked(prev, s.goals)
	s.mu.Unlock()

	if err := s.store.StoreGoals(goals, false); err != nil {
		s.log.Error("persist tracked progress", "error", err)
	}
	for _, t := range transitions {
		s.hub.Emit(t.event, t.data)
	}

	s.scheduleRefresh()
}

// detectTransitionsLocked compares previous and new goal state, producing
// achievement and milestone events. Caller holds s.mu.
//
// Achievements fire exactly once per false→true transition: the achieved
// map remembers what has already fired, so repeated refreshes while a goal
// stays achieved are quiet, and a goal only re-fires after dropping back
// below its target.
//
// Milestones fire for the highest newly crossed threshold only: a jump
// from 10% to 80% of target is one event (75), not three.
func (s *Session) detectTransitionsLocked(prev map[uuid.UUID]models.Goal, goals []models.Goal) []transition {
	var out []transition

	live := make(map[uuid.UUID]bool, len(goals))
	for _, g := range goals {
		live[g.ID] = true

		if g.IsAchieved && !s.achieved[g.ID] {
			s.achieved[g.ID] = true
			out = append(out, transition{events.EventAchievement, AchievementEvent{Goal: g}})
		} else if !g.IsAchieved && s.achieved[g.ID] {
			s.achieved[g.ID] = false
		}

		prevFrac := 0.0
		if pg, ok := prev[g.ID]; ok {
			prevFrac = targetFraction(pg)
		}
		newFrac := targetFraction(g)
		if newFrac <= prevFrac {
			continue
		}
		if t, crossed := highestCrossed(prevFrac, newFrac); crossed {
			out = append(out, transition{events.EventMilestone, MilestoneEvent{
				GoalID:    g.ID,
				Title:     g.Title,
				Threshold: t,
				Percent:   newFrac,
			}})
		}
	}

	for id := range s.achieved {
		if !live[id] {
			delete(s.achieved, id)
		}
	}
	return out
}

// targetFraction is the goal's progress relative to its own target, as a
// percentage (100 means the target is met).
func targetFraction(g models.Goal) float64 {
	target := float64(g.GoalConfig.Percentage)
	if target <= 0 {
		return 0
	}
	return g.Progress.CurrentPercentage / target * 100
}

func highestCrossed(prevFrac, newFrac float64) (float64, bool) {
	for i := len(milestoneThresholds) - 1; i >= 0; i-- {
		t := milestoneThresholds[i]
		if newFrac >= t && prevFrac < t {
			return t, true
		}
	}
	return 0, false
}

// ActiveGoals is the subset of goals included in progress tracking and
// cart validation.
func (s *Session) ActiveGoals() []models.Goal {
	return s.filterGoals(func(g models.Goal) bool { return g.IsActive })
}

func (s *Session) AchievedGoals() []models.Goal {
	return s.filterGoals(func(g models.Goal) bool { return g.IsAchieved })
}

// NearCompletionGoals are unachieved goals at 80% or more of their target.
func (s *Session) NearCompletionGoals() []models.Goal {
	return s.filterGoals(func(g models.Goal) bool {
		return !g.IsAchieved && targetFraction(g) >= 80
	})
}

func (s *Session) filterGoals(keep func(models.Goal) bool) []models.Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Goal
	for _, g := range s.goals {
		if keep(g) {
			out = append(out, g)
		}
	}
	return out
}

// AlignmentReport describes how a candidate product relates to the active
// goal set, without mutating any goal.
type AlignmentReport struct {
	MeetsAny            bool        `json:"meetsAny"`
	AlignmentPercentage float64     `json:"alignmentPercentage"`
	MatchingGoalIDs     []uuid.UUID `json:"matchingGoalIds"`
}

// CheckProductAlignment reports which active goals the product would
// satisfy and the share of active goals it aligns with.
func (s *Session) CheckProductAlignment(product models.ProductSnapshot) AlignmentReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report AlignmentReport
	active := 0
	for _, g := range s.goals {
		if !g.IsActive {
			continue
		}
		active++
		if progress.Meets(g, product) {
			report.MatchingGoalIDs = append(report.MatchingGoalIDs, g.ID)
		}
	}
	if active > 0 {
		report.AlignmentPercentage = math.Round(float64(len(report.MatchingGoalIDs))/float64(active)*1000) / 10
	}
	report.MeetsAny = len(report.MatchingGoalIDs) > 0
	return report
}

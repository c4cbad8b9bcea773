package progress

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rosa/ecogoals-sync/internal/models"
)

// Meets reports whether a purchased product satisfies the goal's criteria.
// Unknown goal types never match.
func Meets(goal models.Goal, product models.ProductSnapshot) bool {
	cfg := goal.GoalConfig
	switch goal.GoalType {
	case models.GoalTypeGrade:
		return containsString(cfg.TargetGrades, product.Grade)
	case models.GoalTypeScore:
		return product.Score >= float64(cfg.MinimumScore)
	case models.GoalTypeCategory:
		// Both conditions required: category match alone is insufficient.
		return containsString(cfg.Categories, product.Category) &&
			containsString(cfg.TargetGrades, product.Grade)
	default:
		return false
	}
}

// Compute derives progress for one goal from a full purchase history.
// Records are processed in slice order; callers pass history oldest first.
// Negative quantities are treated as zero.
func Compute(goal models.Goal, history []models.PurchaseRecord) models.Progress {
	return Apply(models.Progress{}, goal, history)
}

// Apply folds new purchase items into existing progress. Applying items one
// at a time yields the same result as a full recompute over the combined
// history, which is what makes optimistic updates safe.
func Apply(existing models.Progress, goal models.Goal, items []models.PurchaseRecord) models.Progress {
	p := existing

	for _, item := range items {
		qty := item.Quantity
		if qty < 0 {
			qty = 0
		}
		p.TotalPurchases += qty

		if Meets(goal, item.Product) {
			p.GoalMetPurchases += qty
			p.Streaks.Current++
			if p.Streaks.Current > p.Streaks.Best {
				p.Streaks.Best = p.Streaks.Current
			}
		} else {
			p.Streaks.Current = 0
		}
	}

	p.CurrentPercentage = percentage(p.GoalMetPurchases, p.TotalPurchases)
	return p
}

// ComputeAll derives progress for every goal independently. Safe to call
// concurrently per goal since nothing is shared.
func ComputeAll(goals []models.Goal, history []models.PurchaseRecord) map[uuid.UUID]models.Progress {
	result := make(map[uuid.UUID]models.Progress, len(goals))
	for _, g := range goals {
		result[g.ID] = Compute(g, history)
	}
	return result
}

// Achieved reports whether progress meets the goal's target percentage.
func Achieved(goal models.Goal, p models.Progress) bool {
	return p.CurrentPercentage >= float64(goal.GoalConfig.Percentage)
}

// ComputeStats aggregates a stats snapshot across a goal set. Overall
// alignment is the mean current percentage over active goals.
func ComputeStats(goals []models.Goal) models.GoalStats {
	stats := models.GoalStats{
		TotalGoals: len(goals),
		ComputedAt: time.Now().UTC(),
	}

	var sum float64
	for _, g := range goals {
		if g.Progress.Streaks.Best > stats.BestStreak {
			stats.BestStreak = g.Progress.Streaks.Best
		}
		if g.IsAchieved {
			stats.AchievedGoals++
		}
		if !g.IsActive {
			continue
		}
		stats.ActiveGoals++
		sum += g.Progress.CurrentPercentage
	}

	if stats.ActiveGoals > 0 {
		stats.OverallAlignment = round1(sum / float64(stats.ActiveGoals))
	}
	return stats
}

func percentage(met, total int) float64 {
	if total <= 0 {
		return 0
	}
	return round1(float64(met) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

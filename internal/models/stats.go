package models

import "time"

// GoalStats is an aggregate snapshot across a user's goals.
type GoalStats struct {
	TotalGoals       int       `json:"totalGoals"`
	ActiveGoals      int       `json:"activeGoals"`
	AchievedGoals    int       `json:"achievedGoals"`
	OverallAlignment float64   `json:"overallAlignment"`
	BestStreak       int       `json:"bestStreak"`
	ComputedAt       time.Time `json:"computedAt"`
}

// ConflictRecord documents one divergence between the local and server
// versions of a goal. The losing version is dropped from the resolved list
// but preserved here.
type ConflictRecord struct {
	GoalID     string   `json:"goalId"`
	Fields     []string `json:"fields"`
	Local      Goal     `json:"local"`
	Server     Goal     `json:"server"`
	Resolution string   `json:"resolution"` // "local" or "server"
}

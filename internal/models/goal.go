package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Goal types. Each carries a different GoalConfig shape.
const (
	GoalTypeGrade    = "grade-based"
	GoalTypeScore    = "score-based"
	GoalTypeCategory = "category-based"
)

// Sustainability grades, best to worst.
const (
	GradeA = "A"
	GradeB = "B"
	GradeC = "C"
	GradeD = "D"
	GradeF = "F"
)

// GoalConfig is the type-specific target configuration. Only the fields
// relevant to the goal's type are populated:
//   - grade-based:    TargetGrades + Percentage
//   - score-based:    MinimumScore + Percentage
//   - category-based: Categories + TargetGrades + Percentage
type GoalConfig struct {
	TargetGrades []string `json:"targetGrades,omitempty"`
	MinimumScore int      `json:"minimumScore,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	Percentage   int      `json:"percentage"`
}

// Streaks tracks consecutive goal-meeting purchase events. Best never
// decreases.
type Streaks struct {
	Current int `json:"current"`
	Best    int `json:"best"`
}

// Progress is derived from purchase history, never authored directly.
type Progress struct {
	TotalPurchases    int     `json:"totalPurchases"`
	GoalMetPurchases  int     `json:"goalMetPurchases"`
	CurrentPercentage float64 `json:"currentPercentage"`
	Streaks           Streaks `json:"streaks"`
}

type Goal struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID  `json:"userId" gorm:"type:uuid;index;not null"`
	Title      string     `json:"title" gorm:"not null"`
	GoalType   string     `json:"goalType" gorm:"not null"`
	GoalConfig GoalConfig `json:"goalConfig" gorm:"serializer:json"`
	IsActive   bool       `json:"isActive" gorm:"default:true"`
	Progress   Progress   `json:"progress" gorm:"serializer:json"`
	IsAchieved bool       `json:"isAchieved" gorm:"default:false"`
	// Version is assigned by the server and bumped on every server-side
	// write. Zero means the goal has never been synced.
	Version   int       `json:"version" gorm:"default:0"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (g *Goal) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// ConfigEquals reports whether two configs describe the same target.
// Slice fields compare as sets.
func (c GoalConfig) ConfigEquals(other GoalConfig) bool {
	if c.Percentage != other.Percentage || c.MinimumScore != other.MinimumScore {
		return false
	}
	return sameStringSet(c.TargetGrades, other.TargetGrades) &&
		sameStringSet(c.Categories, other.Categories)
}

// Equivalent reports whether two goals agree on every user-authored field.
// Derived fields (progress, achievement) are excluded: the server is
// authoritative for those and a difference there is not a conflict.
func (g Goal) Equivalent(other Goal) bool {
	return g.Title == other.Title &&
		g.GoalType == other.GoalType &&
		g.IsActive == other.IsActive &&
		g.GoalConfig.ConfigEquals(other.GoalConfig)
}

// sameStringSet compares as deduplicated sets, so repeated entries on
// either side do not mask a real difference.
func sameStringSet(a, b []string) bool {
	setA := make(map[string]bool, len(a))
	for _, v := range a {
		setA[v] = true
	}
	setB := make(map[string]bool, len(b))
	for _, v := range b {
		setB[v] = true
	}
	if len(setA) != len(setB) {
		return false
	}
	for v := range setA {
		if !setB[v] {
			return false
		}
	}
	return true
}

type CreateGoalRequest struct {
	Title      string     `json:"title"`
	GoalType   string     `json:"goalType"`
	GoalConfig GoalConfig `json:"goalConfig"`
	IsActive   *bool      `json:"isActive"`
}

type UpdateGoalRequest struct {
	Title      *string     `json:"title"`
	GoalConfig *GoalConfig `json:"goalConfig"`
	IsActive   *bool       `json:"isActive"`
}

package models

import (
	"errors"
	"fmt"
)

// Error taxonomy. Transient errors retry on the next sync cycle; auth
// errors surface to the caller; storage errors degrade to in-memory state.
var (
	ErrTransient  = errors.New("transient network error")
	ErrAuth       = errors.New("authentication error")
	ErrStorage    = errors.New("storage error")
	ErrValidation = errors.New("validation error")
)

// ValidateGoalConfig checks a goal's type and config before any persistence
// attempt. Returns an error wrapping ErrValidation on failure.
func ValidateGoalConfig(goalType string, cfg GoalConfig) error {
	if cfg.Percentage < 1 || cfg.Percentage > 100 {
		return fmt.Errorf("%w: percentage must be 1-100, got %d", ErrValidation, cfg.Percentage)
	}

	switch goalType {
	case GoalTypeGrade:
		if len(cfg.TargetGrades) == 0 {
			return fmt.Errorf("%w: grade-based goal needs at least one target grade", ErrValidation)
		}
	case GoalTypeScore:
		if cfg.MinimumScore < 0 || cfg.MinimumScore > 100 {
			return fmt.Errorf("%w: minimum score must be 0-100, got %d", ErrValidation, cfg.MinimumScore)
		}
	case GoalTypeCategory:
		if len(cfg.Categories) == 0 {
			return fmt.Errorf("%w: category-based goal needs at least one category", ErrValidation)
		}
		if len(cfg.TargetGrades) == 0 {
			return fmt.Errorf("%w: category-based goal needs at least one target grade", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown goal type %q", ErrValidation, goalType)
	}

	for _, g := range cfg.TargetGrades {
		switch g {
		case GradeA, GradeB, GradeC, GradeD, GradeF:
		default:
			return fmt.Errorf("%w: unknown grade %q", ErrValidation, g)
		}
	}

	return nil
}

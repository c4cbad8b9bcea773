package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rosa/ecogoals-sync/internal/middleware"
	"github.com/rosa/ecogoals-sync/internal/models"
	"github.com/rosa/ecogoals-sync/internal/progress"
)

func (h *Handler) ListGoals(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var goals []models.Goal
	if err := h.db.Where("user_id = ?", userID).Order("created_at asc").Find(&goals).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load goals")
	}
	return ok(c, goals)
}

func (h *Handler) CreateGoal(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var req models.CreateGoalRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := models.ValidateGoalConfig(req.GoalType, req.GoalConfig); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	goal := models.Goal{
		UserID:     userID,
		Title:      req.Title,
		GoalType:   req.GoalType,
		GoalConfig: req.GoalConfig,
		IsActive:   true,
		Version:    1,
	}
	if req.IsActive != nil {
		goal.IsActive = *req.IsActive
	}

	if err := h.db.Create(&goal).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to create goal")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": goal})
}

func (h *Handler) UpdateGoal(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	goalID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid goal ID")
	}

	var goal models.Goal
	if err := h.db.Where("id = ? AND user_id = ?", goalID, userID).First(&goal).Error; err != nil {
		return fail(c, fiber.StatusNotFound, "Goal not found")
	}

	var req models.UpdateGoalRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if req.Title != nil {
		goal.Title = *req.Title
	}
	if req.GoalConfig != nil {
		if err := models.ValidateGoalConfig(goal.GoalType, *req.GoalConfig); err != nil {
			return fail(c, fiber.StatusBadRequest, err.Error())
		}
		goal.GoalConfig = *req.GoalConfig
	}
	if req.IsActive != nil {
		goal.IsActive = *req.IsActive
	}

	// Every server-side write bumps the version; clients use it to break
	// conflict ties without trusting device clocks.
	goal.Version++
	goal.UpdatedAt = time.Now().UTC()
	goal.IsAchieved = progress.Achieved(goal, goal.Progress)

	if err := h.db.Save(&goal).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to update goal")
	}
	return ok(c, goal)
}

func (h *Handler) DeleteGoal(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	goalID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid goal ID")
	}

	res := h.db.Where("id = ? AND user_id = ?", goalID, userID).Delete(&models.Goal{})
	if res.Error != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to delete goal")
	}
	if res.RowsAffected == 0 {
		return fail(c, fiber.StatusNotFound, "Goal not found")
	}
	return ok(c, fiber.Map{"deleted": goalID.String()})
}

func (h *Handler) GetGoalStats(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var goals []models.Goal
	if err := h.db.Where("user_id = ?", userID).Find(&goals).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load goals")
	}
	return ok(c, progress.ComputeStats(goals))
}

// RecordPurchase folds an order's line items into every active goal the
// user has, making the dev authority progress-aware so deferred refreshes
// have real drift to correct.
func (h *Handler) RecordPurchase(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	var items []models.PurchaseRecord
	if err := c.BodyParser(&items); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if len(items) == 0 {
		return fail(c, fiber.StatusBadRequest, "No purchase items")
	}

	var goals []models.Goal
	if err := h.db.Where("user_id = ? AND is_active = ?", userID, true).Find(&goals).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load goals")
	}

	for i := range goals {
		goals[i].Progress = progress.Apply(goals[i].Progress, goals[i], items)
		goals[i].IsAchieved = progress.Achieved(goals[i], goals[i].Progress)
		goals[i].Version++
		if err := h.db.Save(&goals[i]).Error; err != nil {
			return fail(c, fiber.StatusInternalServerError, "Failed to update goal progress")
		}
	}
	return ok(c, goals)
}

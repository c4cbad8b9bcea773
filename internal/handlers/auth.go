package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rosa/ecogoals-sync/internal/logger"
	"github.com/rosa/ecogoals-sync/internal/middleware"
	"github.com/rosa/ecogoals-sync/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Handler serves the development goal authority. Responses use the
// {success, data | error} envelope the sync client expects.
type Handler struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(db *gorm.DB, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{db: db, log: log.With("component", "devserver")}
}

func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "error": msg})
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if req.Email == "" || req.Password == "" {
		return fail(c, fiber.StatusBadRequest, "Email and password are required")
	}

	// Check if user exists
	var existingUser models.User
	if err := h.db.Where("email = ?", req.Email).First(&existingUser).Error; err == nil {
		return fail(c, fiber.StatusConflict, "Email already registered")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to hash password")
	}

	user := models.User{
		Email:    req.Email,
		Password: string(hashedPassword),
		Name:     req.Name,
	}
	if err := h.db.Create(&user).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to create user")
	}

	token, err := middleware.GenerateToken(user.ID, user.Email)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to generate token")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    models.AuthResponse{Token: token, User: user},
	})
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	var user models.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		return fail(c, fiber.StatusUnauthorized, "Invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return fail(c, fiber.StatusUnauthorized, "Invalid credentials")
	}

	token, err := middleware.GenerateToken(user.ID, user.Email)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to generate token")
	}

	return ok(c, models.AuthResponse{Token: token, User: user})
}

package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/totemic/totemic-go/internal/middleware"
	"github.com/totemic/totemic-go/internal/service"
)

type ProfileHandler struct {
	svc *service.ProfileService
}

func NewProfileHandler(svc *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{svc: svc}
}

// GetQuota handles GET /api/users/:userId/quota
func (h *ProfileHandler) GetQuota(c fiber.Ctx) error {
	userID, errMsg := middleware.ValidateUserID(c.Params("userId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	resp, err := h.svc.Quota(c.Context(), userID)
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch quota")
	}

	return c.JSON(resp)
}

// GetStats handles GET /api/stats
func (h *ProfileHandler) GetStats(c fiber.Ctx) error {
	resp, err := h.svc.Stats(c.Context())
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch statistics")
	}

	return c.JSON(resp)
}

package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/totemic/totemic-go/internal/middleware"
	"github.com/totemic/totemic-go/internal/service"
)

type PostHandler struct {
	svc *service.EngagementService
}

func NewPostHandler(svc *service.EngagementService) *PostHandler {
	return &PostHandler{svc: svc}
}

// GetPost handles GET /api/posts/:postId
func (h *PostHandler) GetPost(c fiber.Ctx) error {
	postID, errMsg := middleware.ValidatePostID(c.Params("postId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	resp, cached, err := h.svc.GetPost(c.Context(), postID)
	if err != nil {
		return EngageError(c, err)
	}
	countCache(cached)

	return c.JSON(resp)
}

// GetCrispness handles GET /api/posts/:postId/answers/:answerId/labels/:label/crispness
func (h *PostHandler) GetCrispness(c fiber.Ctx) error {
	postID, answerID, labelName, errMsg := labelParams(c)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	resp, cached, err := h.svc.GetCrispness(c.Context(), postID, answerID, labelName)
	if err != nil {
		return EngageError(c, err)
	}
	countCache(cached)

	return c.JSON(resp)
}

// GetHistory handles GET /api/posts/:postId/answers/:answerId/labels/:label/history
func (h *PostHandler) GetHistory(c fiber.Ctx) error {
	postID, answerID, labelName, errMsg := labelParams(c)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	resp, cached, err := h.svc.LabelHistory(c.Context(), postID, answerID, labelName)
	if err != nil {
		return EngageError(c, err)
	}
	countCache(cached)

	return c.JSON(resp)
}

func countCache(hit bool) {
	if hit {
		Metrics.CacheHits.Inc()
	} else {
		Metrics.CacheMisses.Inc()
	}
}

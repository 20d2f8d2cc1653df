package handler

import (
	"context"
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v3"

	"github.com/totemic/totemic-go/internal/middleware"
	"github.com/totemic/totemic-go/internal/model"
	"github.com/totemic/totemic-go/internal/repository"
	"github.com/totemic/totemic-go/internal/service"
)

// engageRequest is the body of every mutating engagement call. The userId is
// an already-authenticated hash from the identity provider.
type engageRequest struct {
	UserID string `json:"userId"`
}

type engageOp func(ctx context.Context, postID, answerID, labelName, userID string) (*model.EngageResponse, error)

type EngageHandler struct {
	svc *service.EngagementService
}

func NewEngageHandler(svc *service.EngagementService) *EngageHandler {
	return &EngageHandler{svc: svc}
}

// Toggle handles POST /api/posts/:postId/answers/:answerId/labels/:label/toggle
func (h *EngageHandler) Toggle(c fiber.Ctx) error {
	return h.engage(c, "toggle", h.svc.ToggleLike)
}

// Restore handles POST /api/posts/:postId/answers/:answerId/labels/:label/restore
func (h *EngageHandler) Restore(c fiber.Ctx) error {
	return h.engage(c, "restore", h.svc.RestoreLike)
}

// Refresh handles POST /api/posts/:postId/answers/:answerId/labels/:label/refresh
func (h *EngageHandler) Refresh(c fiber.Ctx) error {
	return h.engage(c, "refresh", h.svc.RefreshLike)
}

func (h *EngageHandler) engage(c fiber.Ctx, action string, op engageOp) error {
	postID, answerID, labelName, errMsg := labelParams(c)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	var req engageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}
	userID, errMsg := middleware.ValidateUserID(req.UserID)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	resp, err := op(c.Context(), postID, answerID, labelName, userID)
	if err != nil {
		return EngageError(c, err)
	}

	Metrics.LikesTotal.WithLabelValues(action).Inc()
	if resp.Attempts > 1 {
		Metrics.EngageRetries.Add(float64(resp.Attempts - 1))
	}

	return c.JSON(resp)
}

// EngageError maps engine errors to the API error envelope. User-facing
// kinds carry their message verbatim so clients can present it as-is.
func EngageError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return middleware.ErrorResponse(c, fiber.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, service.ErrValidation):
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, service.ErrChoiceRequired):
		return middleware.ErrorResponse(c, fiber.StatusConflict, "REACTIVATION_CHOICE", err.Error())
	case errors.Is(err, service.ErrQuotaExhausted):
		Metrics.QuotaExhausted.Inc()
		return middleware.ErrorResponse(c, fiber.StatusTooManyRequests, "QUOTA_EXHAUSTED", err.Error())
	case errors.Is(err, service.ErrContention):
		return middleware.ErrorResponse(c, fiber.StatusConflict, "CONTENTION", err.Error())
	default:
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process engagement")
	}
}

// labelParams validates the postId/answerId/label path triple shared by the
// engagement and label routes.
func labelParams(c fiber.Ctx) (postID, answerID, labelName, errMsg string) {
	postID, errMsg = middleware.ValidatePostID(c.Params("postId"))
	if errMsg != "" {
		return "", "", "", errMsg
	}
	answerID, errMsg = middleware.ValidateAnswerID(c.Params("answerId"))
	if errMsg != "" {
		return "", "", "", errMsg
	}
	raw := c.Params("label")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	labelName, errMsg = middleware.ValidateLabelName(raw)
	if errMsg != "" {
		return "", "", "", errMsg
	}
	return postID, answerID, labelName, ""
}

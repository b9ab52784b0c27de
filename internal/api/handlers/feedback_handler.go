package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/internal/metrics"
	"github.com/ksu-assistant/backend/internal/storage/models"
	"github.com/ksu-assistant/backend/pkg/logger"
)

const maxCommentLength = 2000

type FeedbackStore interface {
	StoreFeedback(ctx context.Context, feedback *models.Feedback) error
}

type FeedbackHandler struct {
	store FeedbackStore
}

func NewFeedbackHandler(store FeedbackStore) *FeedbackHandler {
	return &FeedbackHandler{store: store}
}

func (h *FeedbackHandler) SubmitFeedback(c *fiber.Ctx) error {
	var req struct {
		QueryID       string `json:"query_id"`
		UserID        string `json:"user_id"`
		Helpful       *bool  `json:"helpful"`
		IssueCategory string `json:"issue_category"`
		Comment       string `json:"comment"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.QueryID == "" || req.Helpful == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query_id and helpful are required",
		})
	}
	if len([]rune(req.Comment)) > maxCommentLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Comment is too long",
		})
	}

	feedback := &models.Feedback{
		QueryID:       req.QueryID,
		UserID:        req.UserID,
		Helpful:       *req.Helpful,
		IssueCategory: req.IssueCategory,
		Comment:       req.Comment,
	}
	if err := h.store.StoreFeedback(c.UserContext(), feedback); err != nil {
		logger.Error("Failed to store feedback", zap.String("query_id", req.QueryID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store feedback",
		})
	}

	metrics.UserSatisfaction.WithLabelValues(strconv.FormatBool(*req.Helpful)).Inc()

	return c.JSON(fiber.Map{
		"message": "Feedback stored",
	})
}

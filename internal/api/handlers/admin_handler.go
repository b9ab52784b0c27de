package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/internal/cache"
	"github.com/ksu-assistant/backend/internal/metrics"
	"github.com/ksu-assistant/backend/internal/storage/models"
	"github.com/ksu-assistant/backend/pkg/logger"
)

type StatsSource interface {
	Statistics() metrics.Statistics
	CacheStats() map[string]cache.Stats
	ClearCaches(ctx context.Context) (int, error)
}

type FeedbackSummarizer interface {
	GetFeedbackSummary(ctx context.Context) (models.FeedbackSummary, error)
}

// AdminHandler exposes runtime statistics and cache maintenance.
type AdminHandler struct {
	engine   StatsSource
	feedback FeedbackSummarizer
}

func NewAdminHandler(engine StatsSource, feedback FeedbackSummarizer) *AdminHandler {
	return &AdminHandler{
		engine:   engine,
		feedback: feedback,
	}
}

func (h *AdminHandler) GetStats(c *fiber.Ctx) error {
	stats := h.engine.Statistics()

	resp := fiber.Map{
		"total_requests":              stats.TotalRequests,
		"cache_hit_rate":              stats.CacheHitRate,
		"validation_failure_rate":     stats.ValidationFailureRate,
		"avg_response_time":           stats.AvgResponseTime,
		"avg_response_length":         stats.AvgResponseLength,
		"question_types_distribution": stats.QuestionTypesDistribution,
		"regenerations":               stats.Regenerations,
		"dropped_records":             stats.Dropped,
		"caches":                      h.engine.CacheStats(),
	}

	if h.feedback != nil {
		summary, err := h.feedback.GetFeedbackSummary(c.UserContext())
		if err != nil {
			logger.Warn("Failed to summarize feedback", zap.Error(err))
		} else {
			resp["feedback"] = summary
		}
	}

	return c.JSON(resp)
}

func (h *AdminHandler) ClearCache(c *fiber.Ctx) error {
	deleted, err := h.engine.ClearCaches(c.UserContext())
	if err != nil {
		logger.Error("Failed to clear caches", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clear shared cache",
		})
	}

	return c.JSON(fiber.Map{
		"message":        "Caches cleared",
		"shared_deleted": deleted,
	})
}

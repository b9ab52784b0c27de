package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/internal/prompt"
	"github.com/ksu-assistant/backend/internal/query"
	"github.com/ksu-assistant/backend/internal/storage/models"
	"github.com/ksu-assistant/backend/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type Answerer interface {
	Answer(ctx context.Context, req query.QueryRequest) (*query.QueryResponse, error)
}

type HistoryReader interface {
	GetRecentMessages(ctx context.Context, userID string, limit int) ([]models.Message, error)
}

type QueryHandler struct {
	queryEngine Answerer
	history     HistoryReader
}

func NewQueryHandler(queryEngine Answerer, history HistoryReader) *QueryHandler {
	return &QueryHandler{
		queryEngine: queryEngine,
		history:     history,
	}
}

type turnPayload struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type queryPayload struct {
	Query   string        `json:"query"`
	UserID  string        `json:"user_id"`
	History []turnPayload `json:"history"`
}

func (p queryPayload) request() query.QueryRequest {
	req := query.QueryRequest{Query: p.Query, UserID: p.UserID}
	for _, t := range p.History {
		req.History = append(req.History, prompt.Turn{Question: t.Question, Answer: t.Answer})
	}
	return req
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req queryPayload
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	response, err := h.queryEngine.Answer(c.UserContext(), req.request())
	if err != nil {
		logger.Error("Failed to process query", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process query",
		})
	}

	return c.JSON(response)
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer",
			})
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	if h.history == nil {
		return c.JSON(fiber.Map{"history": []models.Message{}})
	}

	messages, err := h.history.GetRecentMessages(c.UserContext(), userID, limit)
	if err != nil {
		logger.Error("Failed to load query history", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}
	if messages == nil {
		messages = []models.Message{}
	}

	return c.JSON(fiber.Map{
		"history": messages,
	})
}

package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/internal/query"
	"github.com/ksu-assistant/backend/pkg/logger"
)

type StreamAnswerer interface {
	AnswerStream(ctx context.Context, req query.QueryRequest, onChunk func(string) bool) (*query.QueryResponse, error)
}

type WebSocketHandler struct {
	queryEngine StreamAnswerer
}

func NewWebSocketHandler(queryEngine StreamAnswerer) *WebSocketHandler {
	return &WebSocketHandler{
		queryEngine: queryEngine,
	}
}

// HandleConnection serves queries over one connection until the client goes
// away. Each answer is sent as a status frame, its chunks and a complete frame.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type    string        `json:"type"`
			Content string        `json:"content"`
			UserID  string        `json:"user_id"`
			History []turnPayload `json:"history"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Debug("WebSocket read finished", zap.Error(err))
			break
		}

		if msg.Type != "query" {
			continue
		}
		if msg.Content == "" {
			h.sendError(c, "Query is required")
			continue
		}

		logger.Info("Processing WebSocket query", zap.String("query", msg.Content))

		req := queryPayload{Query: msg.Content, UserID: msg.UserID, History: msg.History}.request()
		err = h.streamResponse(ctx, c, req)
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to process query")
		}
	}
}

func (h *WebSocketHandler) streamResponse(ctx context.Context, c *websocket.Conn, req query.QueryRequest) error {
	if err := h.sendChunk(c, "status", "Processing query..."); err != nil {
		return err
	}

	var writeErr error
	response, err := h.queryEngine.AnswerStream(ctx, req, func(chunk string) bool {
		if writeErr = h.sendChunk(c, "chunk", chunk); writeErr != nil {
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if writeErr != nil {
		return writeErr
	}

	return h.sendComplete(c, response)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, response *query.QueryResponse) error {
	msg := map[string]interface{}{
		"type":              "complete",
		"message_id":        response.ID,
		"intent":            response.Intent,
		"from_cache":        response.FromCache,
		"valid":             response.Valid,
		"validation_errors": response.ValidationErrors,
		"fallback":          response.Fallback,
		"latency_ms":        response.LatencyMS,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	if err := c.WriteJSON(msg); err != nil {
		logger.Debug("Failed to send WebSocket error", zap.Error(err))
	}
}

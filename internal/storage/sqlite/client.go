package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/internal/storage/models"
	"github.com/ksu-assistant/backend/pkg/logger"
	"github.com/ksu-assistant/backend/pkg/utils"
)

const (
	maxStoredQuery    = 500
	maxStoredResponse = 1000
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps in-memory databases shared and writes serialized
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ai_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT,
		query TEXT,
		response TEXT,
		response_time REAL,
		from_cache INTEGER DEFAULT 0,
		question_type TEXT,
		valid INTEGER DEFAULT 1,
		regenerations INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ai_metrics_created ON ai_metrics(created_at);
	CREATE INDEX IF NOT EXISTS idx_ai_metrics_type ON ai_metrics(question_type);

	CREATE TABLE IF NOT EXISTS message_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		user_message TEXT NOT NULL,
		bot_response TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_message_history_user_created ON message_history(user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS response_feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		helpful INTEGER NOT NULL,
		issue_category TEXT,
		comment TEXT,
		created_at INTEGER NOT NULL,
		UNIQUE(query_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_response_feedback_query ON response_feedback(query_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// SaveRequestMetric stores one request record. Long texts are cut to keep rows small.
func (c *Client) SaveRequestMetric(ctx context.Context, m *models.RequestMetric) error {
	query := `
		INSERT INTO ai_metrics (query_id, query, response, response_time, from_cache, question_type, valid, regenerations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := c.db.ExecContext(
		ctx,
		query,
		m.QueryID,
		utils.Truncate(m.Query, maxStoredQuery),
		utils.Truncate(m.Response, maxStoredResponse),
		m.ResponseTime.Seconds(),
		boolToInt(m.FromCache),
		m.Intent,
		boolToInt(m.Valid),
		m.Regenerated,
		createdAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to save request metric: %w", err)
	}

	return nil
}

func (c *Client) GetRequestMetrics(ctx context.Context, limit int) ([]models.RequestMetric, error) {
	query := `
		SELECT id, query_id, query, response, response_time, from_cache, question_type, valid, regenerations, created_at
		FROM ai_metrics
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get request metrics: %w", err)
	}
	defer rows.Close()

	var metrics []models.RequestMetric
	for rows.Next() {
		var m models.RequestMetric
		var seconds float64
		var fromCache, valid int
		var createdAt int64

		err := rows.Scan(&m.ID, &m.QueryID, &m.Query, &m.Response, &seconds, &fromCache, &m.Intent, &valid, &m.Regenerated, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		m.ResponseTime = time.Duration(seconds * float64(time.Second))
		m.FromCache = fromCache == 1
		m.Valid = valid == 1
		m.CreatedAt = time.Unix(createdAt, 0)
		metrics = append(metrics, m)
	}

	return metrics, rows.Err()
}

// CleanupOldMetrics deletes metric rows created before now minus retention.
func (c *Client) CleanupOldMetrics(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()

	result, err := c.db.ExecContext(ctx, `DELETE FROM ai_metrics WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up metrics: %w", err)
	}

	deleted, _ := result.RowsAffected()
	logger.Info("Old metrics cleaned up",
		zap.Int64("deleted", deleted),
		zap.Duration("retention", retention),
	)

	return deleted, nil
}

func (c *Client) SaveMessage(ctx context.Context, userID, userMessage, botResponse string) (int64, error) {
	query := `INSERT INTO message_history (user_id, user_message, bot_response, created_at) VALUES (?, ?, ?, ?)`

	result, err := c.db.ExecContext(ctx, query, userID, userMessage, botResponse, time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to save message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read message id: %w", err)
	}

	logger.Debug("Message saved", zap.String("user_id", userID), zap.Int64("message_id", id))
	return id, nil
}

// GetRecentMessages returns the user's last limit exchanges, oldest first.
func (c *Client) GetRecentMessages(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	query := `
		SELECT id, user_id, user_message, bot_response, created_at
		FROM message_history
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get message history: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var createdAt int64

		err := rows.Scan(&m.ID, &m.UserID, &m.UserMessage, &m.BotResponse, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		m.CreatedAt = time.Unix(0, createdAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read message history: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// StoreFeedback records a verdict on an answer. A repeated verdict from the
// same user on the same answer replaces the earlier one.
func (c *Client) StoreFeedback(ctx context.Context, feedback *models.Feedback) error {
	query := `
		INSERT INTO response_feedback (query_id, user_id, helpful, issue_category, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(query_id, user_id) DO UPDATE SET
			helpful = excluded.helpful,
			issue_category = excluded.issue_category,
			comment = excluded.comment,
			created_at = excluded.created_at
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		feedback.QueryID,
		feedback.UserID,
		boolToInt(feedback.Helpful),
		feedback.IssueCategory,
		feedback.Comment,
		time.Now().Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("query_id", feedback.QueryID),
		zap.Bool("helpful", feedback.Helpful),
	)

	return nil
}

func (c *Client) GetFeedbackSummary(ctx context.Context) (models.FeedbackSummary, error) {
	var summary models.FeedbackSummary
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN helpful = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN helpful = 0 THEN 1 ELSE 0 END), 0)
		FROM response_feedback
	`

	err := c.db.QueryRowContext(ctx, query).Scan(&summary.Helpful, &summary.NotHelpful)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize feedback: %w", err)
	}
	return summary, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package models

import "time"

// RequestMetric is one answered question as recorded for later analysis.
type RequestMetric struct {
	ID           int64
	QueryID      string
	Query        string
	Response     string
	ResponseTime time.Duration
	FromCache    bool
	Intent       string
	Valid        bool
	Regenerated  int
	CreatedAt    time.Time
}

// Message is one question and answer exchanged with a user.
type Message struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	CreatedAt   time.Time `json:"created_at"`
}

type Feedback struct {
	ID            int64
	QueryID       string
	UserID        string
	Helpful       bool
	IssueCategory string
	Comment       string
	CreatedAt     time.Time
}

// FeedbackSummary counts feedback by verdict.
type FeedbackSummary struct {
	Helpful    int `json:"helpful"`
	NotHelpful int `json:"not_helpful"`
}

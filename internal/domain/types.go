package domain

import "time"

// Task is a named recurring question owned by a chat.
type Task struct {
	ChatID   int64     `json:"chat_id"`
	Name     string    `json:"name"`
	Question string    `json:"question"`
	Interval int64     `json:"interval_minutes"`
	LastRun  time.Time `json:"last_run"`
	// LastRunText is last_run exactly as stored; watermark updates are
	// conditional on it.
	LastRunText string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Interaction is one handled command, recorded for usage statistics.
type Interaction struct {
	ID        string
	Timestamp time.Time
	ChatID    int64
	UserID    *int64
	Username  string
	Command   string
	Args      string
	Error     string
	Duration  time.Duration
}

type UserStats struct {
	TotalCommands  int64
	ActiveDays     int64
	AvgExecutionMS float64
	ErrorRate      float64 // percent
}

type CommandStats struct {
	Command        string
	UsageCount     int64
	AvgExecutionMS float64
	ErrorRate      float64 // percent
}

package domain

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// QuestionStatus tracks where a question is in its lifecycle.
type QuestionStatus string

const (
	StatusActive       QuestionStatus = "active"
	StatusIntermission QuestionStatus = "intermission"
)

// Winner identifies the resolved winner of a question.
type Winner struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// Question is the single round snapshot shared between processes. Timestamps
// are Unix milliseconds to stay wire-compatible with existing store contents.
type Question struct {
	ID        string         `json:"id"`
	Prompt    string         `json:"prompt"`
	Answer    int64          `json:"answer"`
	CreatedAt int64          `json:"createdAt"`
	TTLMs     int64          `json:"ttlMs"`
	Status    QuestionStatus `json:"status"`
	ExpiresAt int64          `json:"expiresAt"`
	Winner    *Winner        `json:"winner,omitempty"`
}

// TTL returns the question's time-to-live as a duration.
func (q Question) TTL() time.Duration {
	return time.Duration(q.TTLMs) * time.Millisecond
}

// SanitizedQuestion is the client-visible view of a question. It never
// carries the answer.
type SanitizedQuestion struct {
	ID        string         `json:"id"`
	Prompt    string         `json:"prompt"`
	CreatedAt int64          `json:"createdAt"`
	ExpiresAt int64          `json:"expiresAt"`
	Status    QuestionStatus `json:"status"`
	ServerNow int64          `json:"serverNow"`
	Winner    *Winner        `json:"winner,omitempty"`
}

// Sanitize strips the answer and stamps the server clock.
func Sanitize(q Question, now time.Time) SanitizedQuestion {
	expiresAt := q.ExpiresAt
	if expiresAt == 0 {
		expiresAt = q.CreatedAt + q.TTLMs
	}
	status := q.Status
	if status == "" {
		status = StatusActive
	}
	return SanitizedQuestion{
		ID:        q.ID,
		Prompt:    q.Prompt,
		CreatedAt: q.CreatedAt,
		ExpiresAt: expiresAt,
		Status:    status,
		ServerNow: UnixMs(now),
		Winner:    q.Winner,
	}
}

type operation struct {
	symbol string
	apply  func(a, b int64) int64
}

var operations = []operation{
	{"+", func(a, b int64) int64 { return a + b }},
	{"-", func(a, b int64) int64 { return a - b }},
	{"*", func(a, b int64) int64 { return a * b }},
}

// DefaultQuestionTTL is how long a fresh question accepts submissions.
const DefaultQuestionTTL = 20 * time.Second

// NewQuestion produces a fresh arithmetic question in the active state.
func NewQuestion(now time.Time, ttl time.Duration) Question {
	if ttl <= 0 {
		ttl = DefaultQuestionTTL
	}
	a := randInt(2, 50)
	b := randInt(2, 50)
	op := operations[rand.Intn(len(operations))]

	createdAt := UnixMs(now)
	ttlMs := ttl.Milliseconds()
	return Question{
		ID:        uuid.NewString(),
		Prompt:    strconv.FormatInt(a, 10) + " " + op.symbol + " " + strconv.FormatInt(b, 10),
		Answer:    op.apply(a, b),
		CreatedAt: createdAt,
		TTLMs:     ttlMs,
		Status:    StatusActive,
		ExpiresAt: createdAt + ttlMs,
	}
}

func randInt(min, max int64) int64 {
	return min + rand.Int63n(max-min+1)
}

// UnixMs converts a time to Unix milliseconds.
func UnixMs(t time.Time) int64 {
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds back to a time.
func FromUnixMs(ms int64) time.Time {
	return time.UnixMilli(ms)
}

package domain

// SubmitStatus is the normal-path outcome of an answer submission.
// Incorrect and duplicate submissions are results, not errors.
type SubmitStatus string

const (
	StatusCorrectPending SubmitStatus = "correct_pending"
	StatusIncorrect      SubmitStatus = "incorrect"
	StatusDuplicate      SubmitStatus = "duplicate"
)

// SubmitResult is the synchronous reply to a submission.
type SubmitResult struct {
	Status SubmitStatus `json:"status"`
}

// Candidate is a user's first correct submission for a question, ordered by
// arrival time. ReceivedAt is Unix milliseconds.
type Candidate struct {
	UserID     string `json:"userId"`
	ReceivedAt int64  `json:"receivedAt"`
}

// LeaderboardEntry is one ranked row of the win aggregate.
type LeaderboardEntry struct {
	UserID   string `json:"userId"`
	Wins     int64  `json:"wins"`
	UserName string `json:"userName,omitempty"`
}

// Leaderboard is the top-N view published to clients.
type Leaderboard struct {
	Items []LeaderboardEntry `json:"items"`
}

// Broadcast event names shared by every publisher and subscriber.
const (
	EventQuestion    = "question"
	EventWinner      = "winner"
	EventLeaderboard = "leaderboard"
	EventPresence    = "presence"
)

// Analytics fact names forwarded to the external event bus.
const (
	FactQuestionCreated = "question.created"
	FactWinnerDeclared  = "winner.declared"
)

// WinnerEvent is the payload of the winner broadcast and the winner.declared fact.
type WinnerEvent struct {
	QuestionID string `json:"questionId"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName,omitempty"`
}

// DisplayName falls back to a userID prefix when no name is registered.
func DisplayName(userID, name string) string {
	if name != "" {
		return name
	}
	if len(userID) > 6 {
		return userID[:6]
	}
	return userID
}

package domain

import "errors"

var (
	// ErrNoActiveQuestion is returned when no round is currently running.
	ErrNoActiveQuestion = errors.New("no active question")
	// ErrStaleQuestion is returned when a submission targets a superseded question.
	ErrStaleQuestion = errors.New("stale question")
	// ErrQuestionClosed is returned when the round is in intermission.
	ErrQuestionClosed = errors.New("question closed")
	// ErrQuestionExpired is returned when a submission arrives past the TTL plus slack.
	ErrQuestionExpired = errors.New("question expired")
	// ErrInvalidAnswer is returned when the submitted answer is not numeric.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrMissingFields is returned when a request omits required fields.
	ErrMissingFields = errors.New("missing fields")
)

// Package push delivers notifications to recipient tokens or topics through a
// pluggable transport.
package push

import (
	"context"
	"errors"
)

var ErrNoTokens = errors.New("push: no tokens")

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Message is a push notification. Data values are strings so every transport
// can carry them verbatim.
type Message struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	ImageURL string            `json:"image_url,omitempty"`
	Priority Priority          `json:"priority,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

type TokenFailure struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

// Report summarizes a multi-token send.
type Report struct {
	SuccessCount int            `json:"success_count"`
	FailureCount int            `json:"failure_count"`
	Failures     []TokenFailure `json:"failures,omitempty"`
}

// OK reports whether at least one token was reached and none failed.
func (r Report) OK() bool { return r.SuccessCount > 0 && r.FailureCount == 0 }

// Transport is implemented by every push backend. SendToTokens returns an error
// only when the whole call failed; per-token failures are in the report.
type Transport interface {
	Name() string
	SendToTokens(ctx context.Context, msg Message, tokens []string) (Report, error)
	SendToTopic(ctx context.Context, msg Message, topic string) error
}

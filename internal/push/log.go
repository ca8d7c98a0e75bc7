package push

import (
	"context"
	"strings"

	logx "soulverse/pkg/logx"
)

// LogTransport writes notifications to the log instead of sending them.
type LogTransport struct {
	log logx.Logger
}

func NewLogTransport(log logx.Logger) *LogTransport {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogTransport{log: log}
}

func (t *LogTransport) Name() string { return "log" }

func (t *LogTransport) SendToTokens(_ context.Context, msg Message, tokens []string) (Report, error) {
	if len(tokens) == 0 {
		return Report{}, ErrNoTokens
	}
	t.log.Info("push",
		logx.String("title", msg.Title),
		logx.String("body", msg.Body),
		logx.String("tokens", strings.Join(tokens, ",")),
		logx.String("type", msg.Data["type"]),
	)
	return Report{SuccessCount: len(tokens)}, nil
}

func (t *LogTransport) SendToTopic(_ context.Context, msg Message, topic string) error {
	t.log.Info("push",
		logx.String("title", msg.Title),
		logx.String("body", msg.Body),
		logx.String("topic", topic),
		logx.String("type", msg.Data["type"]),
	)
	return nil
}

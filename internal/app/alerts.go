package app

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"soulverse/internal/notifier"
	"soulverse/internal/push"
)

// topicAlerter publishes log alerts on a push topic through the notifier,
// so they share its rate limit, retries and dedup.
type topicAlerter struct {
	notif *notifier.Service
	topic atomic.Pointer[string]
}

func newTopicAlerter(n *notifier.Service, topic string) *topicAlerter {
	t := &topicAlerter{notif: n}
	t.setTopic(topic)
	return t
}

func (t *topicAlerter) setTopic(topic string) { t.topic.Store(&topic) }

func (t *topicAlerter) Alert(ctx context.Context, text string) error {
	title, body, _ := strings.Cut(text, "\n")
	msg := push.Message{
		Title:    notifier.Truncate(title, 120),
		Body:     body,
		Priority: push.PriorityHigh,
		Data:     map[string]string{"kind": "alert"},
	}
	err := t.notif.SendToTopic(ctx, msg, *t.topic.Load())
	if errors.Is(err, notifier.ErrDuplicate) || errors.Is(err, notifier.ErrDisabled) {
		return nil
	}
	return err
}

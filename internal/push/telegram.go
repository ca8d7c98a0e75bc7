package push

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// sender is the part of *tele.Bot used for delivery.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type TelegramConfig struct {
	Token string
	// Topics maps a topic name to a chat token ("chatID" or "chatID:threadID").
	Topics map[string]string
}

// TelegramTransport sends to Telegram chats. A token is a chat ID, optionally
// followed by ":threadID" for forum topics.
type TelegramTransport struct {
	bot    sender
	topics map[string]string
}

func NewTelegramTransport(cfg TelegramConfig) (*TelegramTransport, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: true})
	if err != nil {
		return nil, err
	}
	return newTelegramTransport(b, cfg.Topics), nil
}

func newTelegramTransport(b sender, topics map[string]string) *TelegramTransport {
	cp := make(map[string]string, len(topics))
	for k, v := range topics {
		cp[k] = v
	}
	return &TelegramTransport{bot: b, topics: cp}
}

func (t *TelegramTransport) Name() string { return "telegram" }

type chatTarget struct {
	chatID   int64
	threadID int
}

func parseChatToken(tok string) (chatTarget, error) {
	tok = strings.TrimSpace(tok)
	idPart, threadPart, hasThread := strings.Cut(tok, ":")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id == 0 {
		return chatTarget{}, fmt.Errorf("invalid chat id %q", tok)
	}
	ct := chatTarget{chatID: id}
	if hasThread {
		th, err := strconv.Atoi(threadPart)
		if err != nil || th < 0 {
			return chatTarget{}, fmt.Errorf("invalid thread id %q", tok)
		}
		ct.threadID = th
	}
	return ct, nil
}

func renderHTML(msg Message) string {
	var b strings.Builder
	if msg.Title != "" {
		b.WriteString("<b>")
		b.WriteString(html.EscapeString(msg.Title))
		b.WriteString("</b>\n")
	}
	b.WriteString(html.EscapeString(msg.Body))
	if u := msg.ImageURL; strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		fmt.Fprintf(&b, "\n<a href=\"%s\">&#8203;</a>", html.EscapeString(u))
	}
	return b.String()
}

func (t *TelegramTransport) send(ctx context.Context, ct chatTarget, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(&tele.Chat{ID: ct.chatID}, text, &tele.SendOptions{
		ParseMode: tele.ModeHTML,
		ThreadID:  ct.threadID,
	})
	return err
}

func (t *TelegramTransport) SendToTokens(ctx context.Context, msg Message, tokens []string) (Report, error) {
	if len(tokens) == 0 {
		return Report{}, ErrNoTokens
	}
	text := renderHTML(msg)
	var rep Report
	for _, tok := range tokens {
		ct, err := parseChatToken(tok)
		if err == nil {
			err = t.send(ctx, ct, text)
		}
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			rep.FailureCount++
			rep.Failures = append(rep.Failures, TokenFailure{Token: tok, Error: err.Error()})
			continue
		}
		rep.SuccessCount++
	}
	return rep, nil
}

func (t *TelegramTransport) SendToTopic(ctx context.Context, msg Message, topic string) error {
	tok, ok := t.topics[topic]
	if !ok {
		return fmt.Errorf("telegram: no chat configured for topic %q", topic)
	}
	ct, err := parseChatToken(tok)
	if err != nil {
		return err
	}
	return t.send(ctx, ct, renderHTML(msg))
}

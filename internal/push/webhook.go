package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

// WebhookTransport posts notifications as JSON to a relay (for example an FCM
// bridge). The relay may answer with a report; a bare 2xx counts every token as
// delivered.
type WebhookTransport struct {
	url        string
	secret     string
	httpClient *http.Client
}

func NewWebhookTransport(cfg WebhookConfig, client *http.Client) (*WebhookTransport, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("webhook url is empty")
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &WebhookTransport{url: strings.TrimRight(cfg.URL, "/"), secret: cfg.Secret, httpClient: client}, nil
}

func (w *WebhookTransport) Name() string { return "webhook" }

type webhookPayload struct {
	Tokens       []string `json:"tokens,omitempty"`
	Topic        string   `json:"topic,omitempty"`
	Notification Message  `json:"notification"`
}

func (w *WebhookTransport) post(ctx context.Context, path string, p webhookPayload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if w.secret != "" {
		req.Header.Set("X-Soulverse-Secret", w.secret)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (w *WebhookTransport) SendToTokens(ctx context.Context, msg Message, tokens []string) (Report, error) {
	if len(tokens) == 0 {
		return Report{}, ErrNoTokens
	}
	out, err := w.post(ctx, "/tokens", webhookPayload{Tokens: tokens, Notification: msg})
	if err != nil {
		return Report{}, err
	}
	if !gjson.ValidBytes(out) || !gjson.GetBytes(out, "success_count").Exists() {
		return Report{SuccessCount: len(tokens)}, nil
	}
	res := gjson.ParseBytes(out)
	rep := Report{
		SuccessCount: int(res.Get("success_count").Int()),
		FailureCount: int(res.Get("failure_count").Int()),
	}
	res.Get("failures").ForEach(func(_, f gjson.Result) bool {
		rep.Failures = append(rep.Failures, TokenFailure{Token: f.Get("token").String(), Error: f.Get("error").String()})
		return true
	})
	return rep, nil
}

func (w *WebhookTransport) SendToTopic(ctx context.Context, msg Message, topic string) error {
	if strings.TrimSpace(topic) == "" {
		return fmt.Errorf("webhook: empty topic")
	}
	_, err := w.post(ctx, "/topics", webhookPayload{Topic: topic, Notification: msg})
	return err
}

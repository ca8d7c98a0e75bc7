package notifier

import "time"

// Config controls sending behaviour.
type Config struct {
	Enabled         bool
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
}

type HistoryItem struct {
	At     time.Time `json:"at"`
	Target string    `json:"target"`
	Title  string    `json:"title"`
	OK     int       `json:"ok"`
	Fail   int       `json:"fail"`
}

// NotificationEvent is emitted on the event bus for notifier lifecycle events.
type NotificationEvent struct {
	Transport string    `json:"transport"`
	Target    string    `json:"target"`
	Key       string    `json:"key"`
	At        time.Time `json:"at"`
	Success   int       `json:"success,omitempty"`
	Failure   int       `json:"failure,omitempty"`
	Error     string    `json:"error,omitempty"`
}

const (
	EventSent    = "notifier.sent"
	EventFailed  = "notifier.failed"
	EventDeduped = "notifier.deduped"
)

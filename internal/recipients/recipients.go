// Package recipients stores the subscribers that receive the daily push.
package recipients

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"soulverse/internal/content"
)

var ErrNotFound = errors.New("recipients: not found")

// Recipient is a subscriber. PushToken is the transport address: a device
// token for the webhook gateway or a chat id for telegram.
type Recipient struct {
	ID                   string    `json:"id"`
	PushToken            string    `json:"push_token"`
	Active               bool      `json:"active"`
	PreferredTranslation string    `json:"preferred_translation"`
	LastKnownMood        string    `json:"last_known_mood"`
	Timezone             string    `json:"timezone,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Mood returns the normalized mood, defaulting to peace.
func (r Recipient) Mood() content.Mood { return content.ParseMood(r.LastKnownMood) }

// Store lists the recipients eligible for delivery.
type Store interface {
	ListActiveWithToken(ctx context.Context) ([]Recipient, error)
}

// Defaults fill empty fields on read.
type Defaults struct {
	Translation string
}

// SQLite is a Store over the recipients table. The schema is created by
// storage.OpenDB.
type SQLite struct {
	db  *sql.DB
	def Defaults
	now func() time.Time
}

// NewSQLite wraps db. The caller keeps ownership of db.
func NewSQLite(db *sql.DB, def Defaults) *SQLite {
	return &SQLite{db: db, def: def, now: time.Now}
}

const selectCols = `id, push_token, is_active, preferred_translation, last_known_mood, timezone, created_at, updated_at`

func (s *SQLite) scan(row interface{ Scan(...any) error }) (Recipient, error) {
	var (
		r                Recipient
		active           int
		created, updated string
	)
	if err := row.Scan(&r.ID, &r.PushToken, &active, &r.PreferredTranslation, &r.LastKnownMood, &r.Timezone, &created, &updated); err != nil {
		return Recipient{}, err
	}
	r.Active = active != 0
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	if r.PreferredTranslation == "" {
		r.PreferredTranslation = s.def.Translation
	}
	if r.LastKnownMood == "" {
		r.LastKnownMood = string(content.DefaultMood)
	}
	return r, nil
}

// ListActiveWithToken returns active recipients that have a push token,
// ordered by creation time.
func (s *SQLite) ListActiveWithToken(ctx context.Context) ([]Recipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectCols+` FROM recipients WHERE is_active = 1 AND push_token <> '' ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		r, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Get(ctx context.Context, id string) (Recipient, error) {
	r, err := s.scan(s.db.QueryRowContext(ctx, `SELECT `+selectCols+` FROM recipients WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Recipient{}, ErrNotFound
	}
	return r, err
}

// Upsert inserts or updates r. CreatedAt is kept on update.
func (s *SQLite) Upsert(ctx context.Context, r Recipient) error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("recipients: id is required")
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	active := 0
	if r.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipients(`+selectCols+`) VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			push_token = excluded.push_token,
			is_active = excluded.is_active,
			preferred_translation = excluded.preferred_translation,
			last_known_mood = excluded.last_known_mood,
			timezone = excluded.timezone,
			updated_at = excluded.updated_at`,
		r.ID, r.PushToken, active, r.PreferredTranslation, r.LastKnownMood, r.Timezone, now, now)
	if err != nil {
		return fmt.Errorf("upsert recipient %s: %w", r.ID, err)
	}
	return nil
}

// SetMood records the recipient's last reported mood.
func (s *SQLite) SetMood(ctx context.Context, id string, mood content.Mood) error {
	res, err := s.db.ExecContext(ctx, `UPDATE recipients SET last_known_mood = ?, updated_at = ? WHERE id = ?`,
		string(mood), s.now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActive counts active recipients with a token.
func (s *SQLite) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipients WHERE is_active = 1 AND push_token <> ''`).Scan(&n)
	return n, err
}

// Static is a fixed in-memory recipient list.
type Static []Recipient

func (s Static) ListActiveWithToken(context.Context) ([]Recipient, error) {
	out := make([]Recipient, 0, len(s))
	for _, r := range s {
		if r.Active && r.PushToken != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

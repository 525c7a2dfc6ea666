package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// KeyEvent is one timeline line of a daily summary.
type KeyEvent struct {
	Time        string `json:"time"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// DailySummary is the generated digest of one user's day.
type DailySummary struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	Date            string         `json:"date"` // YYYY-MM-DD
	Language        string         `json:"language"`
	Summary         string         `json:"summary"`
	Highlights      []string       `json:"highlights"`
	KeyEvents       []KeyEvent     `json:"key_events"`
	Statistics      map[string]int `json:"statistics"`
	Recommendations []string       `json:"recommendations"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

const summaryColumns = `id, user_id, date, language, summary, highlights, key_events,
	statistics, recommendations, generated_at`

// SaveDailySummary stores s, replacing any earlier summary for the same
// user and date. The row keeps its original id; the stored summary is
// returned.
func (db *DB) SaveDailySummary(ctx context.Context, s DailySummary) (DailySummary, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.GeneratedAt.IsZero() {
		s.GeneratedAt = time.Now().UTC()
	}
	if s.Statistics == nil {
		s.Statistics = map[string]int{}
	}
	var enc [4]string
	for i, v := range []any{nonNil(s.Highlights), nonNil(s.KeyEvents), s.Statistics, nonNil(s.Recommendations)} {
		b, err := json.Marshal(v)
		if err != nil {
			return DailySummary{}, fmt.Errorf("encode summary: %w", err)
		}
		enc[i] = string(b)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO daily_summaries (`+summaryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, date) DO UPDATE SET
			language = excluded.language,
			summary = excluded.summary,
			highlights = excluded.highlights,
			key_events = excluded.key_events,
			statistics = excluded.statistics,
			recommendations = excluded.recommendations,
			generated_at = excluded.generated_at
	`, s.ID, s.UserID, s.Date, s.Language, s.Summary, enc[0], enc[1], enc[2], enc[3], s.GeneratedAt.UnixMilli())
	if err != nil {
		return DailySummary{}, fmt.Errorf("save daily summary: %w", err)
	}

	saved, err := db.GetDailySummary(ctx, s.UserID, s.Date)
	if err != nil {
		return DailySummary{}, err
	}
	if saved == nil {
		return DailySummary{}, fmt.Errorf("daily summary %s/%s: %w", s.UserID, s.Date, ErrNotFound)
	}
	return *saved, nil
}

// GetDailySummary returns userID's summary for date, or nil, nil.
func (db *DB) GetDailySummary(ctx context.Context, userID, date string) (*DailySummary, error) {
	row := db.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM daily_summaries
		WHERE user_id = ? AND date = ?`, userID, date)
	s, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get daily summary %s: %w", date, err)
	}
	return &s, nil
}

// ListDailySummaries returns userID's most recent summaries, newest date
// first. limit <= 0 means 30.
func (db *DB) ListDailySummaries(ctx context.Context, userID string, limit int) ([]DailySummary, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := db.QueryContext(ctx, `SELECT `+summaryColumns+` FROM daily_summaries
		WHERE user_id = ? ORDER BY date DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list daily summaries: %w", err)
	}
	defer rows.Close()

	var out []DailySummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("list daily summaries: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ActiveUsersBetween returns the users who logged an entry or received a
// reminder notification in [start, end), sorted.
func (db *DB) ActiveUsersBetween(ctx context.Context, start, end time.Time) ([]string, error) {
	from, to := start.UnixMilli(), end.UnixMilli()
	rows, err := db.QueryContext(ctx, `
		SELECT user_id FROM entries WHERE timestamp >= ? AND timestamp < ?
		UNION
		SELECT user_id FROM notifications WHERE type = 'reminder' AND created_at >= ? AND created_at < ?
		ORDER BY user_id
	`, from, to, from, to)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanSummary(row rowScanner) (DailySummary, error) {
	var (
		s                                     DailySummary
		highlights, events, stats, recommends string
		generated                             int64
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.Date, &s.Language, &s.Summary,
		&highlights, &events, &stats, &recommends, &generated); err != nil {
		return DailySummary{}, err
	}
	for _, f := range []struct {
		raw string
		dst any
	}{
		{highlights, &s.Highlights},
		{events, &s.KeyEvents},
		{stats, &s.Statistics},
		{recommends, &s.Recommendations},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return DailySummary{}, fmt.Errorf("decode summary %s: %w", s.ID, err)
		}
	}
	s.GeneratedAt = time.UnixMilli(generated).UTC()
	return s, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

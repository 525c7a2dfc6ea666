package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidEntry is returned for entries with an unknown type.
var ErrInvalidEntry = errors.New("invalid entry")

// EntryType is the kind of note an entry records.
type EntryType string

const (
	EntryAudio EntryType = "audio"
	EntryImage EntryType = "image"
	EntryText  EntryType = "text"
)

func (t EntryType) Valid() bool {
	switch t {
	case EntryAudio, EntryImage, EntryText:
		return true
	}
	return false
}

// Entry is a logged note: a voice memo transcript, a photo, or plain text.
type Entry struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Type       EntryType      `json:"type"`
	RawPath    string         `json:"raw_path,omitempty"`
	Transcript string         `json:"transcript,omitempty"`
	Labels     []string       `json:"labels"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// EntryFilter narrows ListEntries. Zero times leave that bound open.
type EntryFilter struct {
	Start  time.Time
	End    time.Time
	Label  string
	Limit  int
	Offset int
}

const entryColumns = `id, user_id, type, raw_path, transcript, labels, metadata,
	timestamp, created_at, updated_at`

// CreateEntry inserts e, assigning an id and timestamps when unset. Labels
// are lowercased and de-duplicated.
func (db *DB) CreateEntry(ctx context.Context, e Entry) (Entry, error) {
	if !e.Type.Valid() {
		return Entry{}, fmt.Errorf("%w: type %q", ErrInvalidEntry, e.Type)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = e.CreatedAt
	}
	e.Labels = CleanLabels(e.Labels)

	labels, meta, err := encodeEntryJSON(e)
	if err != nil {
		return Entry{}, err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, string(e.Type), e.RawPath, e.Transcript, labels, meta,
		e.Timestamp.UnixMilli(), e.CreatedAt.UnixMilli(), e.UpdatedAt.UnixMilli())
	if err != nil {
		return Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	return e, nil
}

// GetEntry returns the entry with id owned by userID, or nil, nil.
func (db *DB) GetEntry(ctx context.Context, id, userID string) (*Entry, error) {
	row := db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ? AND user_id = ?`, id, userID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}
	return &e, nil
}

// ListEntries returns userID's entries matching f, newest first.
// f.Limit <= 0 means 50.
func (db *DB) ListEntries(ctx context.Context, userID string, f EntryFilter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}

	query := `SELECT ` + entryColumns + ` FROM entries WHERE user_id = ?`
	args := []any{userID}
	if !f.Start.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, f.Start.UnixMilli())
	}
	if !f.End.IsZero() {
		query += ` AND timestamp < ?`
		args = append(args, f.End.UnixMilli())
	}
	if f.Label != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(entries.labels) WHERE value = ?)`
		args = append(args, strings.ToLower(strings.TrimSpace(f.Label)))
	}
	query += ` ORDER BY timestamp DESC, id LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	return db.queryEntries(ctx, "list entries", query, args...)
}

// SearchEntries returns userID's entries whose transcript or one of whose
// labels contains q, newest first.
func (db *DB) SearchEntries(ctx context.Context, userID, q string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + likeEscaper.Replace(q) + "%"
	return db.queryEntries(ctx, "search entries", `
		SELECT `+entryColumns+` FROM entries
		WHERE user_id = ? AND (
			transcript LIKE ? ESCAPE '\'
			OR EXISTS (SELECT 1 FROM json_each(entries.labels) WHERE value LIKE ? ESCAPE '\')
		)
		ORDER BY timestamp DESC, id LIMIT ?
	`, userID, pattern, pattern, limit)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// UpdateEntryLabels replaces the entry's labels and returns the result.
func (db *DB) UpdateEntryLabels(ctx context.Context, id, userID string, labels []string) (*Entry, error) {
	labels = CleanLabels(labels)
	b, err := json.Marshal(labels)
	if err != nil {
		return nil, fmt.Errorf("encode labels: %w", err)
	}
	res, err := db.ExecContext(ctx, `
		UPDATE entries SET labels = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, string(b), time.Now().UnixMilli(), id, userID)
	if err != nil {
		return nil, fmt.Errorf("update entry labels: %w", err)
	}
	if err := expectRow(res, "entry", id); err != nil {
		return nil, err
	}
	return db.GetEntry(ctx, id, userID)
}

// DeleteEntry removes the entry. Returns ErrNotFound when absent.
func (db *DB) DeleteEntry(ctx context.Context, id, userID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM entries WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return expectRow(res, "entry", id)
}

// CleanLabels lowercases, trims and de-duplicates labels, keeping their
// first-seen order. The result is never nil.
func CleanLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func (db *DB) queryEntries(ctx context.Context, op, query string, args ...any) ([]Entry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e                    Entry
		typ, labels          string
		meta                 sql.NullString
		ts, created, updated int64
	)
	if err := row.Scan(&e.ID, &e.UserID, &typ, &e.RawPath, &e.Transcript, &labels, &meta,
		&ts, &created, &updated); err != nil {
		return Entry{}, err
	}
	e.Type = EntryType(typ)
	if err := json.Unmarshal([]byte(labels), &e.Labels); err != nil {
		return Entry{}, fmt.Errorf("decode labels of entry %s: %w", e.ID, err)
	}
	if e.Labels == nil {
		e.Labels = []string{}
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
			return Entry{}, fmt.Errorf("decode metadata of entry %s: %w", e.ID, err)
		}
	}
	e.Timestamp = time.UnixMilli(ts).UTC()
	e.CreatedAt = time.UnixMilli(created).UTC()
	e.UpdatedAt = time.UnixMilli(updated).UTC()
	return e, nil
}

func encodeEntryJSON(e Entry) (labels string, meta any, err error) {
	b, err := json.Marshal(e.Labels)
	if err != nil {
		return "", nil, fmt.Errorf("encode labels: %w", err)
	}
	if len(e.Metadata) == 0 {
		return string(b), nil, nil
	}
	m, err := json.Marshal(e.Metadata)
	if err != nil {
		return "", nil, fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), string(m), nil
}

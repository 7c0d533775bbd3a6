package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// Document ids.
const (
	docTour   = "tour"
	docQuests = "quests"
)

// Store holds whole JSON documents by id.
type Store interface {
	GetDocument(ctx context.Context, id string) (json.RawMessage, error)
	PutDocument(ctx context.Context, id string, data json.RawMessage) error
}

// DocStore implements Store on the documents table, keeping data as JSONB.
// SQLite preserves object key order through jsonb()/json(), which the quest
// bank relies on.
type DocStore struct {
	db *sql.DB
}

func NewDocStore(db *sql.DB) *DocStore {
	return &DocStore{db: db}
}

func (s *DocStore) GetDocument(ctx context.Context, id string) (json.RawMessage, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT json(data) FROM documents WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", id, err)
	}
	return json.RawMessage(data), nil
}

func (s *DocStore) PutDocument(ctx context.Context, id string, data json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, data) VALUES (?, jsonb(?))
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		id, string(data),
	)
	if err != nil {
		return fmt.Errorf("writing document %s: %w", id, err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"cohorte/api/internal/annotation"
	"cohorte/api/internal/persona"
	"cohorte/api/internal/threads"
	"cohorte/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, body, created_at, updated_at
		FROM documents
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		if err := rows.Scan(&item.ID, &item.Title, &item.Body, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var item Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, body, created_at, updated_at
		FROM documents
		WHERE id=$1
	`, documentID).Scan(&item.ID, &item.Title, &item.Body, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, item Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, body)
		VALUES ($1, $2, $3)
	`, item.ID, item.Title, item.Body)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, documentID, title, body string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET title=$2, body=$3, updated_at=NOW()
		WHERE id=$1
	`, documentID, title, body)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return expectAffected(result, "update document")
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return expectAffected(result, "delete document")
}

func (s *PostgresStore) ListPopulations(ctx context.Context) ([]persona.Population, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, personas::text, created_at
		FROM populations
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list populations: %w", err)
	}
	defer rows.Close()

	items := make([]persona.Population, 0)
	for rows.Next() {
		item, err := scanPopulation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate populations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetPopulation(ctx context.Context, populationID string) (persona.Population, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, personas::text, created_at
		FROM populations
		WHERE id=$1
	`, populationID)
	return scanPopulation(row)
}

func (s *PostgresStore) InsertPopulation(ctx context.Context, item persona.Population) error {
	personas, err := json.Marshal(item.Personas)
	if err != nil {
		return fmt.Errorf("encode personas: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO populations (id, name, personas)
		VALUES ($1, $2, $3::jsonb)
	`, item.ID, item.Name, string(personas))
	if err != nil {
		return fmt.Errorf("insert population: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePopulation(ctx context.Context, populationID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM populations WHERE id=$1`, populationID)
	if err != nil {
		return fmt.Errorf("delete population: %w", err)
	}
	return expectAffected(result, "delete population")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPopulation(row scanner) (persona.Population, error) {
	var (
		item     persona.Population
		personas string
	)
	if err := row.Scan(&item.ID, &item.Name, &personas, &item.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persona.Population{}, err
		}
		return persona.Population{}, fmt.Errorf("scan population: %w", err)
	}
	if err := json.Unmarshal([]byte(personas), &item.Personas); err != nil {
		return persona.Population{}, fmt.Errorf("decode personas: %w", err)
	}
	return item, nil
}

// CreateThread returns the thread anchored at (start, end), inserting it
// when none exists.
func (s *PostgresStore) CreateThread(ctx context.Context, documentID string, start, end int, text, color string) (threads.Thread, error) {
	if color == "" {
		color = threads.ColorDefault
	}
	var item threads.Thread
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comment_threads (id, document_id, start_offset, end_offset, highlighted_text, color)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (document_id, start_offset, end_offset) DO UPDATE SET updated_at=comment_threads.updated_at
		RETURNING id, document_id, start_offset, end_offset, highlighted_text, resolved, color, created_at, updated_at
	`, util.NewID("thr"), documentID, start, end, text, color).Scan(
		&item.ID,
		&item.DocumentID,
		&item.StartOffset,
		&item.EndOffset,
		&item.HighlightedText,
		&item.Resolved,
		&item.Color,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return threads.Thread{}, fmt.Errorf("create thread: %w", err)
	}
	comments, err := s.listComments(ctx, `WHERE c.thread_id=$1`, item.ID)
	if err != nil {
		return threads.Thread{}, err
	}
	item.Comments = nonNilComments(comments[item.ID])
	return item, nil
}

func (s *PostgresStore) GetAllThreads(ctx context.Context, documentID string) ([]threads.Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, start_offset, end_offset, highlighted_text, resolved, color, created_at, updated_at
		FROM comment_threads
		WHERE document_id=$1
		ORDER BY start_offset ASC, end_offset ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	items := make([]threads.Thread, 0)
	for rows.Next() {
		var item threads.Thread
		if err := rows.Scan(
			&item.ID,
			&item.DocumentID,
			&item.StartOffset,
			&item.EndOffset,
			&item.HighlightedText,
			&item.Resolved,
			&item.Color,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}

	comments, err := s.listComments(ctx, `JOIN comment_threads t ON t.id = c.thread_id WHERE t.document_id=$1`, documentID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Comments = nonNilComments(comments[items[i].ID])
	}
	return items, nil
}

func (s *PostgresStore) GetThread(ctx context.Context, documentID, threadID string) (threads.Thread, error) {
	var item threads.Thread
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, start_offset, end_offset, highlighted_text, resolved, color, created_at, updated_at
		FROM comment_threads
		WHERE document_id=$1 AND id=$2
	`, documentID, threadID).Scan(
		&item.ID,
		&item.DocumentID,
		&item.StartOffset,
		&item.EndOffset,
		&item.HighlightedText,
		&item.Resolved,
		&item.Color,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return threads.Thread{}, threads.ErrNotFound
	}
	if err != nil {
		return threads.Thread{}, fmt.Errorf("get thread: %w", err)
	}
	comments, err := s.listComments(ctx, `WHERE c.thread_id=$1`, item.ID)
	if err != nil {
		return threads.Thread{}, err
	}
	item.Comments = nonNilComments(comments[item.ID])
	return item, nil
}

// SaveThread rewrites the thread row and its full comment list in one
// transaction.
func (s *PostgresStore) SaveThread(ctx context.Context, thread threads.Thread) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save thread: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE comment_threads
		SET highlighted_text=$2, resolved=$3, color=$4, updated_at=NOW()
		WHERE id=$1
	`, thread.ID, thread.HighlightedText, thread.Resolved, thread.Color)
	if err != nil {
		return fmt.Errorf("update thread: %w", err)
	}
	if err := expectAffected(result, "update thread"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM thread_comments WHERE thread_id=$1`, thread.ID); err != nil {
		return fmt.Errorf("clear thread comments: %w", err)
	}
	for i, c := range thread.Comments {
		if err := insertComment(ctx, tx, thread.ID, i, c); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save thread: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddComment(ctx context.Context, documentID, threadID string, comment threads.Comment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add comment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE comment_threads SET updated_at=NOW() WHERE document_id=$1 AND id=$2
	`, documentID, threadID)
	if err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}
	if err := expectAffected(result, "touch thread"); err != nil {
		return err
	}
	var position int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), -1) + 1 FROM thread_comments WHERE thread_id=$1
	`, threadID).Scan(&position); err != nil {
		return fmt.Errorf("next comment position: %w", err)
	}
	if err := insertComment(ctx, tx, threadID, position, comment); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetThreadResolved(ctx context.Context, documentID, threadID string, resolved bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comment_threads SET resolved=$3, updated_at=NOW()
		WHERE document_id=$1 AND id=$2
	`, documentID, threadID, resolved)
	if err != nil {
		return fmt.Errorf("set thread resolved: %w", err)
	}
	return expectAffected(result, "set thread resolved")
}

// DeleteComment removes one comment and drops the thread once it has none
// left. It reports whether the thread was deleted.
func (s *PostgresStore) DeleteComment(ctx context.Context, documentID, threadID, commentID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete comment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM thread_comments c
		USING comment_threads t
		WHERE c.thread_id = t.id AND t.document_id=$1 AND t.id=$2 AND c.id=$3
	`, documentID, threadID, commentID)
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	if err := expectAffected(result, "delete comment"); err != nil {
		return false, err
	}
	var remaining int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM thread_comments WHERE thread_id=$1`, threadID).Scan(&remaining); err != nil {
		return false, fmt.Errorf("count comments: %w", err)
	}
	deleted := remaining == 0
	if deleted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM comment_threads WHERE id=$1`, threadID); err != nil {
			return false, fmt.Errorf("delete empty thread: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete comment: %w", err)
	}
	return deleted, nil
}

func (s *PostgresStore) DeleteThread(ctx context.Context, documentID, threadID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM comment_threads WHERE document_id=$1 AND id=$2`, documentID, threadID)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return expectAffected(result, "delete thread")
}

func (s *PostgresStore) listComments(ctx context.Context, where string, arg any) (map[string][]threads.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.thread_id, c.id, c.body, c.author, c.author_type, COALESCE(c.persona_id, ''),
			COALESCE(c.category, ''), COALESCE(c.severity, ''), COALESCE(c.reaction, ''), c.created_at
		FROM thread_comments c
		`+where+`
		ORDER BY c.thread_id, c.position ASC
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	out := map[string][]threads.Comment{}
	for rows.Next() {
		var (
			threadID                     string
			c                            threads.Comment
			authorType                   string
			category, severity, reaction string
		)
		if err := rows.Scan(&threadID, &c.ID, &c.Text, &c.Author, &authorType, &c.PersonaID, &category, &severity, &reaction, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.AuthorType = threads.AuthorType(authorType)
		c.Category = annotation.Category(category)
		c.Severity = annotation.Severity(severity)
		c.Reaction = annotation.Reaction(reaction)
		out[threadID] = append(out[threadID], c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return out, nil
}

func insertComment(ctx context.Context, tx *sql.Tx, threadID string, position int, c threads.Comment) error {
	authorType := c.AuthorType
	if authorType == "" {
		authorType = threads.AuthorUser
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO thread_comments (id, thread_id, position, body, author, author_type, persona_id, category, severity, reaction, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), COALESCE($11, NOW()))
	`, c.ID, threadID, position, c.Text, c.Author, string(authorType), c.PersonaID,
		string(c.Category), string(c.Severity), string(c.Reaction), nullTime(c))
	if err != nil {
		return fmt.Errorf("insert comment %s: %w", c.ID, err)
	}
	return nil
}

func nullTime(c threads.Comment) sql.NullTime {
	return sql.NullTime{Time: c.Timestamp, Valid: !c.Timestamp.IsZero()}
}

func nonNilComments(items []threads.Comment) []threads.Comment {
	if items == nil {
		return []threads.Comment{}
	}
	return items
}

// expectAffected maps a zero-row write onto sql.ErrNoRows so callers can
// treat it like a failed lookup.
func expectAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, sql.ErrNoRows)
	}
	return nil
}

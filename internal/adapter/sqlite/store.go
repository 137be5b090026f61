// Package sqlite keeps highlights, ink strokes and notes in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/escalopa/mushaf-overlay/internal/domain"
)

const timeLayout = time.RFC3339Nano

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serialises writers
	db.SetMaxOpenConns(1)
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS highlights (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			surah INTEGER NOT NULL,
			ayah_start INTEGER NOT NULL,
			ayah_end INTEGER NOT NULL,
			word_start INTEGER,
			word_end INTEGER,
			category TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '',
			page_number INTEGER NOT NULL,
			completed_at TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_highlights_student ON highlights(student_id, page_number);`,
		`CREATE TABLE IF NOT EXISTS ink_strokes (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			page_number INTEGER NOT NULL,
			script TEXT NOT NULL,
			surah INTEGER NOT NULL,
			ayah INTEGER NOT NULL,
			word INTEGER NOT NULL,
			stroke BLOB,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ink_page ON ink_strokes(student_id, page_number, script);`,
		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			highlight_id TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(highlight_id) REFERENCES highlights(id) ON DELETE CASCADE
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// CreateHighlight stores a highlight under a fresh UUID
func (s *Store) CreateHighlight(ctx context.Context, h domain.NewHighlight) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO highlights(id, student_id, surah, ayah_start, ayah_end, word_start, word_end, category, color, page_number, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		h.StudentID,
		h.Surah,
		h.AyahStart,
		h.AyahEnd,
		nullInt(h.WordStart),
		nullInt(h.WordEnd),
		string(h.Category),
		h.Color,
		h.PageNumber,
		s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert highlight: %w", err)
	}
	return id, nil
}

func (s *Store) DeleteHighlight(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE highlight_id = ?`, id); err != nil {
		return fmt.Errorf("delete notes: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM highlights WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete highlight: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("highlight %s: %w", id, domain.ErrNotFound)
	}
	return tx.Commit()
}

func (s *Store) ListHighlights(ctx context.Context, studentID string) ([]domain.Highlight, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, surah, ayah_start, ayah_end, word_start, word_end, category, color, page_number, completed_at, created_at
		FROM highlights
		WHERE student_id = ?
		ORDER BY created_at, id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query highlights: %w", err)
	}
	defer rows.Close()

	var out []domain.Highlight
	for rows.Next() {
		var (
			h                  domain.Highlight
			category           string
			wordStart, wordEnd sql.NullInt64
			completedAt        sql.NullString
			createdAt          string
		)
		if err := rows.Scan(&h.ID, &h.StudentID, &h.Surah, &h.AyahStart, &h.AyahEnd, &wordStart, &wordEnd,
			&category, &h.Color, &h.PageNumber, &completedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan highlight: %w", err)
		}
		h.Category = domain.Category(category)
		h.WordStart = intPtr(wordStart)
		h.WordEnd = intPtr(wordEnd)
		if t, err := time.Parse(timeLayout, createdAt); err == nil {
			h.CreatedAt = t
		}
		if completedAt.Valid {
			if t, err := time.Parse(timeLayout, completedAt.String); err == nil {
				h.CompletedAt = &t
			}
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// CompleteHighlights sets completed_at on every listed highlight, all or nothing
func (s *Store) CompleteHighlights(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stamp := at.UTC().Format(timeLayout)
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `UPDATE highlights SET completed_at = ? WHERE id = ?`, stamp, id)
		if err != nil {
			return fmt.Errorf("complete highlight %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("highlight %s: %w", id, domain.ErrNotFound)
		}
	}
	return tx.Commit()
}

// InkStroke is a freehand mark drawn over one word
type InkStroke struct {
	StudentID string
	Page      int
	Script    domain.ScriptID
	Word      domain.WordRef
	Stroke    []byte
}

// AddInk stores a stroke and returns its ID
func (s *Store) AddInk(ctx context.Context, ink InkStroke) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ink_strokes(id, student_id, page_number, script, surah, ayah, word, stroke, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ink.StudentID, ink.Page, string(ink.Script), ink.Word.Ref.Surah, ink.Word.Ref.Ayah, ink.Word.Word, ink.Stroke,
		s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert ink: %w", err)
	}
	return id, nil
}

// ClearInk removes every stroke of a student on a page
func (s *Store) ClearInk(ctx context.Context, studentID string, page int, script domain.ScriptID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ink_strokes WHERE student_id = ? AND page_number = ? AND script = ?`,
		studentID, page, string(script))
	return err
}

// AddNote attaches a note to an existing highlight
func (s *Store) AddNote(ctx context.Context, highlightID, body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", errors.New("empty note")
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM highlights WHERE id = ?`, highlightID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("highlight %s: %w", highlightID, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lookup highlight: %w", err)
	}

	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO notes(id, highlight_id, body, created_at) VALUES(?, ?, ?, ?)`,
		id, highlightID, body, s.now().UTC().Format(timeLayout)); err != nil {
		return "", fmt.Errorf("insert note: %w", err)
	}
	return id, nil
}

// Marks reports the inked words of a page and the page's highlights that carry notes
func (s *Store) Marks(ctx context.Context, studentID string, page int, script domain.ScriptID) (domain.AnnotationMarks, error) {
	marks := domain.AnnotationMarks{
		Ink:   make(map[domain.WordRef]bool),
		Notes: make(map[string]bool),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT surah, ayah, word FROM ink_strokes
		WHERE student_id = ? AND page_number = ? AND script = ?`, studentID, page, string(script))
	if err != nil {
		return marks, fmt.Errorf("query ink: %w", err)
	}
	for rows.Next() {
		var w domain.WordRef
		if err := rows.Scan(&w.Ref.Surah, &w.Ref.Ayah, &w.Word); err != nil {
			rows.Close()
			return marks, fmt.Errorf("scan ink: %w", err)
		}
		marks.Ink[w] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return marks, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT DISTINCT n.highlight_id FROM notes n
		JOIN highlights h ON h.id = n.highlight_id
		WHERE h.student_id = ? AND h.page_number = ?`, studentID, page)
	if err != nil {
		return marks, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return marks, fmt.Errorf("scan note: %w", err)
		}
		marks.Notes[id] = true
	}
	return marks, rows.Err()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

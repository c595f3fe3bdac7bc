// Package repository stores generated books in postgres. The whole story is
// kept as a jsonb document next to the columns used for listing.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"finlit-workers/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrBookNotFound = errors.New("book not found")
	// ErrProgressConflict means the book changed after it was loaded.
	ErrProgressConflict = errors.New("book progress changed concurrently")
)

const schema = `
CREATE TABLE IF NOT EXISTS books (
	id          UUID PRIMARY KEY,
	user_id     TEXT NOT NULL,
	child_id    TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL,
	language    TEXT NOT NULL,
	status      TEXT NOT NULL,
	age_group   TEXT NOT NULL DEFAULT '',
	document    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS books_user_id_created_at_idx ON books (user_id, created_at DESC);
`

const (
	descriptionLimit = 120
	scenesPerMinute  = 3
)

type bookRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	ChildID   string    `db:"child_id"`
	Title     string    `db:"title"`
	Language  string    `db:"language"`
	Status    string    `db:"status"`
	AgeGroup  string    `db:"age_group"`
	Document  []byte    `db:"document"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// BookCard is the list view of a book.
type BookCard struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Language         string    `json:"language"`
	ShortDescription string    `json:"short_description"`
	ReadingTime      string    `json:"estimation_time_to_read"`
	CoverURL         *string   `json:"img_cover_url"`
	CreatedAt        time.Time `json:"created_at"`
}

type BookRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db, now: time.Now}
}

func (r *BookRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create books schema: %w", err)
	}
	return nil
}

// Create inserts story and returns its id, assigning one when empty.
func (r *BookRepository) Create(ctx context.Context, story *models.Story) (string, error) {
	if story.ID == "" {
		story.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if story.CreatedAt == nil {
		story.CreatedAt = &now
	}

	doc, err := json.Marshal(story)
	if err != nil {
		return "", fmt.Errorf("encode book: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO books (id, user_id, child_id, title, language, status, age_group, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		story.ID, story.UserID, story.ChildID, story.Title, string(story.Language),
		string(story.Status), string(story.AgeGroup), doc, *story.CreatedAt, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert book: %w", err)
	}
	return story.ID, nil
}

func (r *BookRepository) Get(ctx context.Context, id string) (*models.Story, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrBookNotFound
	}

	var row bookRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, user_id, child_id, title, language, status, age_group, document, created_at, updated_at
		FROM books WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select book: %w", err)
	}
	return decode(row)
}

// ListByUser returns the user's books, newest first.
func (r *BookRepository) ListByUser(ctx context.Context, userID string) ([]BookCard, error) {
	var rows []bookRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, child_id, title, language, status, age_group, document, created_at, updated_at
		FROM books WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	cards := make([]BookCard, 0, len(rows))
	for _, row := range rows {
		story, err := decode(row)
		if err != nil {
			return nil, err
		}
		cards = append(cards, Card(story, row.CreatedAt))
	}
	return cards, nil
}

// UpdateProgress stores the reader state of story. A story loaded by Get is
// written only if the row is unchanged since then; otherwise
// ErrProgressConflict is returned and nothing is written.
func (r *BookRepository) UpdateProgress(ctx context.Context, story *models.Story) error {
	doc, err := json.Marshal(story)
	if err != nil {
		return fmt.Errorf("encode book: %w", err)
	}
	now := r.now().UTC().Truncate(time.Microsecond)

	var res sql.Result
	if story.UpdatedAt == nil {
		res, err = r.db.ExecContext(ctx, `
			UPDATE books SET status = $2, document = $3, updated_at = $4 WHERE id = $1`,
			story.ID, string(story.Status), doc, now,
		)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE books SET status = $2, document = $3, updated_at = $4 WHERE id = $1 AND updated_at = $5`,
			story.ID, string(story.Status), doc, now, *story.UpdatedAt,
		)
	}
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	if n == 0 {
		if story.UpdatedAt == nil {
			return ErrBookNotFound
		}
		return r.missingOrConflict(ctx, story.ID)
	}

	story.UpdatedAt = &now
	return nil
}

func (r *BookRepository) missingOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("check book: %w", err)
	}
	if !exists {
		return ErrBookNotFound
	}
	return ErrProgressConflict
}

func decode(row bookRow) (*models.Story, error) {
	var story models.Story
	if err := json.Unmarshal(row.Document, &story); err != nil {
		return nil, fmt.Errorf("decode book %s: %w", row.ID, err)
	}
	story.ID = row.ID
	story.UserID = row.UserID
	updatedAt := row.UpdatedAt
	story.UpdatedAt = &updatedAt
	return &story, nil
}

// Card summarizes story for listing.
func Card(story *models.Story, createdAt time.Time) BookCard {
	card := BookCard{
		ID:          story.ID,
		Title:       story.Title,
		Language:    string(story.Language),
		ReadingTime: ReadingTime(len(story.Scenes)),
		CreatedAt:   createdAt,
	}
	if first, ok := story.Scene(1); ok {
		card.ShortDescription = shorten(first.Content, descriptionLimit)
		card.CoverURL = first.ImgURL
	}
	return card
}

// ReadingTime estimates one minute per three scenes, at least one minute.
func ReadingTime(scenes int) string {
	minutes := (scenes + scenesPerMinute - 1) / scenesPerMinute
	if minutes < 1 {
		minutes = 1
	}
	return strconv.Itoa(minutes) + " menit"
}

func shorten(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "..."
}

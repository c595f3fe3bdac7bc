package persistbook

import (
	"context"
	"errors"
	"testing"

	"finlit-workers/internal/common/logger"
	"finlit-workers/internal/models"
	"finlit-workers/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBooks struct {
	mock.Mock
}

func (m *mockBooks) Create(ctx context.Context, story *models.Story) (string, error) {
	args := m.Called(ctx, story)
	return args.String(0), args.Error(1)
}

func sampleStory() *models.Story {
	return &models.Story{
		UserID:   "user-1",
		Title:    "Celengan Ayam",
		Language: models.LanguageIndonesian,
		Status:   models.StoryInProgress,
		Scenes: []models.Scene{
			{SceneID: 1, Type: models.SceneEnding, Content: "Tamat."},
		},
	}
}

func TestExecute_Success(t *testing.T) {
	books := &mockBooks{}
	story := sampleStory()
	books.On("Create", mock.Anything, story).Return("book-1", nil)

	h := NewHandler(LoadConfig(), books, logger.NewTestLogger(t))
	out, err := h.Execute(context.Background(), &Input{Story: story})

	require.NoError(t, err)
	assert.Equal(t, &Output{BookID: "book-1", Title: "Celengan Ayam", UserID: "user-1"}, out)
	books.AssertExpectations(t)
}

func TestExecute_InsertFailure(t *testing.T) {
	books := &mockBooks{}
	books.On("Create", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

	h := NewHandler(LoadConfig(), books, logger.NewTestLogger(t))
	_, err := h.Execute(context.Background(), &Input{Story: sampleStory()})

	assert.ErrorIs(t, err, ErrDatabaseInsertFailed)
}

func TestExecute_InvalidInput(t *testing.T) {
	h := NewHandler(LoadConfig(), &mockBooks{}, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	story := sampleStory()
	story.UserID = ""
	_, err = h.Execute(context.Background(), &Input{Story: story})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPersist_WithRepository(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sqlMock.ExpectExec(`INSERT INTO books`).WillReturnResult(sqlmock.NewResult(1, 1))

	repo := repository.NewBookRepository(sqlx.NewDb(db, "postgres"))
	h := NewHandler(LoadConfig(), repo, logger.NewTestLogger(t))

	story := sampleStory()
	id, err := h.Persist(context.Background(), story)
	require.NoError(t, err)
	assert.Equal(t, story.ID, id)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

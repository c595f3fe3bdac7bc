package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"finlit-workers/internal/common/logger"
	"finlit-workers/internal/models"
	"finlit-workers/internal/orchestrator"
	"finlit-workers/internal/repository"
	generatesceneassets "finlit-workers/internal/workers/story/generate-scene-assets"
	generatestory "finlit-workers/internal/workers/story/generate-story"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	ownerID = "user-1"
	bookID  = "7f1c2a8e-4b1d-4c55-9d2e-0c8a3b9f6e21"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeChat struct {
	resp *orchestrator.ChatResponse
	err  error
	got  orchestrator.ChatRequest
}

func (f *fakeChat) Handle(_ context.Context, req orchestrator.ChatRequest) (*orchestrator.ChatResponse, error) {
	f.got = req
	return f.resp, f.err
}

type fakeStories struct {
	result *orchestrator.StoryResult
	err    error
	got    orchestrator.StoryRequest
}

func (f *fakeStories) Create(_ context.Context, req orchestrator.StoryRequest) (*orchestrator.StoryResult, error) {
	f.got = req
	return f.result, f.err
}

type mockBooks struct {
	mock.Mock
}

func (m *mockBooks) Get(ctx context.Context, id string) (*models.Story, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*models.Story), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBooks) ListByUser(ctx context.Context, userID string) ([]repository.BookCard, error) {
	args := m.Called(ctx, userID)
	if cards := args.Get(0); cards != nil {
		return cards.([]repository.BookCard), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBooks) UpdateProgress(ctx context.Context, story *models.Story) error {
	return m.Called(ctx, story).Error(0)
}

type fixture struct {
	chat    *fakeChat
	stories *fakeStories
	books   *mockBooks
	router  *gin.Engine
}

func newFixture(t *testing.T, checks map[string]Check) *fixture {
	log := logger.NewTestLogger(t)
	f := &fixture{
		chat:    &fakeChat{},
		stories: &fakeStories{},
		books:   &mockBooks{},
	}
	books := NewBookHandler(f.stories, f.books, log)
	books.now = func() time.Time { return time.Date(2024, 6, 1, 9, 5, 0, 0, time.UTC) }
	f.router = NewRouter(RouterConfig{
		Chat:   NewChatHandler(f.chat, log),
		Books:  books,
		Health: NewHealthHandler(checks, time.Second),
		Logger: log,
	})
	return f
}

func (f *fixture) do(method, path string, body interface{}, user string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func intPtr(v int) *int { return &v }

func decisionStory() *models.Story {
	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return &models.Story{
		ID:           bookID,
		UserID:       ownerID,
		Title:        "Celengan Ayam",
		Language:     models.LanguageIndonesian,
		Status:       models.StoryInProgress,
		CurrentScene: 1,
		CreatedAt:    &created,
		Scenes: []models.Scene{
			{SceneID: 1, Type: models.SceneDecisionPoint, Content: "Uang jajan atau celengan?", Branch: []models.Branch{
				{Choice: "baik", Point: 10, NextScene: 2},
				{Choice: "buruk", Point: 0, NextScene: 3},
			}},
			{SceneID: 2, Type: models.SceneEnding, Content: "Sepeda terbeli."},
			{SceneID: 3, Type: models.SceneEnding, Content: "Celengan kosong."},
		},
	}
}

func TestRequireUser(t *testing.T) {
	f := newFixture(t, nil)

	for _, path := range []string{"/api/v1/books", "/api/v1/books/" + bookID} {
		w := f.do(http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	w := f.do(http.MethodPost, "/api/v1/chat", map[string]string{"query": "q", "child_id": "c"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChat(t *testing.T) {
	t.Run("answered", func(t *testing.T) {
		f := newFixture(t, nil)
		f.chat.resp = &orchestrator.ChatResponse{
			Answer: "Adi rajin menabung.",
			Intent: models.IntentEnvelope{Intent: models.IntentTagGeneral},
			State:  orchestrator.StateDone,
			Trace:  orchestrator.Trace{orchestrator.StateReceivedQuery, orchestrator.StateDone},
		}

		w := f.do(http.MethodPost, "/api/v1/chat", map[string]interface{}{
			"query": "Apa itu menabung?", "child_id": "adi_123", "child_age": 6,
		}, ownerID)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Adi rajin menabung.", body["answer"])
		assert.Equal(t, "Done", body["state"])
		assert.Equal(t, "general_query", body["intent"].(map[string]interface{})["intent"])
		assert.Equal(t, intPtr(6), f.chat.got.ChildAge)
	})

	t.Run("missing child id", func(t *testing.T) {
		f := newFixture(t, nil)
		w := f.do(http.MethodPost, "/api/v1/chat", map[string]string{"query": "q"}, ownerID)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_INPUT", errorCode(t, w))
	})

	t.Run("pipeline error is not exposed", func(t *testing.T) {
		f := newFixture(t, nil)
		f.chat.err = errors.New("template chat-analysis: slot mismatch")
		w := f.do(http.MethodPost, "/api/v1/chat", map[string]string{"query": "q", "child_id": "c"}, ownerID)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "slot mismatch")
	})
}

func TestCreateBook(t *testing.T) {
	valid := map[string]interface{}{
		"prompt":          "Cerita menabung",
		"language":        "english",
		"age":             5,
		"child_id":        "adi_123",
		"caregiver_email": "ibu@example.com",
	}

	t.Run("created", func(t *testing.T) {
		f := newFixture(t, nil)
		f.stories.result = &orchestrator.StoryResult{
			BookID: bookID,
			Assets: generatesceneassets.AssetReport{Requested: 2, Succeeded: 2},
		}

		w := f.do(http.MethodPost, "/api/v1/books", valid, ownerID)

		require.Equal(t, http.StatusCreated, w.Code)
		var body struct {
			Message string `json:"message"`
			Data    struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, bookID, body.Data.ID)
		assert.Equal(t, "successfully create new book", body.Message)
		assert.Equal(t, orchestrator.StoryRequest{
			UserID:         ownerID,
			ChildID:        "adi_123",
			Prompt:         "Cerita menabung",
			Age:            5,
			Language:       models.LanguageEnglish,
			CaregiverEmail: "ibu@example.com",
		}, f.stories.got)
	})

	t.Run("unsupported language", func(t *testing.T) {
		f := newFixture(t, nil)
		body := map[string]interface{}{"prompt": "p", "language": "klingon", "age": 5}
		w := f.do(http.MethodPost, "/api/v1/books", body, ownerID)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing age", func(t *testing.T) {
		f := newFixture(t, nil)
		body := map[string]interface{}{"prompt": "p", "language": "thai"}
		w := f.do(http.MethodPost, "/api/v1/books", body, ownerID)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	failures := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", generatestory.ErrStoryValidationFailed, http.StatusUnprocessableEntity, "STORY_VALIDATION_FAILED"},
		{"generation", generatestory.ErrStoryGenerationFailed, http.StatusBadGateway, "STORY_GENERATION_FAILED"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.stories.err = tt.err
			f.stories.result = &orchestrator.StoryResult{State: orchestrator.StateFailed}

			w := f.do(http.MethodPost, "/api/v1/books", valid, ownerID)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestListBooks(t *testing.T) {
	f := newFixture(t, nil)
	f.books.On("ListByUser", mock.Anything, ownerID).Return([]repository.BookCard{
		{ID: bookID, Title: "Celengan Ayam", ReadingTime: "1 menit"},
	}, nil)

	w := f.do(http.MethodGet, "/api/v1/books", nil, ownerID)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []repository.BookCard `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Celengan Ayam", body.Data[0].Title)
}

func TestGetBook(t *testing.T) {
	t.Run("owner", func(t *testing.T) {
		f := newFixture(t, nil)
		f.books.On("Get", mock.Anything, bookID).Return(decisionStory(), nil)

		w := f.do(http.MethodGet, "/api/v1/books/"+bookID, nil, ownerID)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Data models.Story `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Len(t, body.Data.Scenes, 3)
	})

	t.Run("not found", func(t *testing.T) {
		f := newFixture(t, nil)
		f.books.On("Get", mock.Anything, "missing").Return(nil, repository.ErrBookNotFound)

		w := f.do(http.MethodGet, "/api/v1/books/missing", nil, ownerID)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "BOOK_NOT_FOUND", errorCode(t, w))
	})

	t.Run("other owner", func(t *testing.T) {
		f := newFixture(t, nil)
		f.books.On("Get", mock.Anything, bookID).Return(decisionStory(), nil)

		w := f.do(http.MethodGet, "/api/v1/books/"+bookID, nil, "someone-else")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "BOOK_ACCESS_DENIED", errorCode(t, w))
	})
}

func TestProgress(t *testing.T) {
	t.Run("choice recorded", func(t *testing.T) {
		f := newFixture(t, nil)
		f.books.On("Get", mock.Anything, bookID).Return(decisionStory(), nil)
		f.books.On("UpdateProgress", mock.Anything, mock.MatchedBy(func(s *models.Story) bool {
			return s.CurrentScene == 2 && s.UserStory.TotalPoint == 10
		})).Return(nil)

		w := f.do(http.MethodPost, "/api/v1/books/"+bookID+"/progress",
			map[string]interface{}{"scene_id": 1, "choice": "baik"}, ownerID)

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Data progressView `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, 2, body.Data.CurrentScene)
		assert.Equal(t, []int{1}, body.Data.UserStory.VisitedScene)
		assert.Equal(t, models.StoryInProgress, body.Data.Status)
		f.books.AssertExpectations(t)
	})

	t.Run("invalid choice", func(t *testing.T) {
		f := newFixture(t, nil)
		f.books.On("Get", mock.Anything, bookID).Return(decisionStory(), nil)

		w := f.do(http.MethodPost, "/api/v1/books/"+bookID+"/progress",
			map[string]interface{}{"scene_id": 1, "choice": "entah"}, ownerID)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_CHOICE", errorCode(t, w))
		f.books.AssertNotCalled(t, "UpdateProgress", mock.Anything, mock.Anything)
	})

	t.Run("concurrent update", func(t *testing.T) {
		f := newFixture(t, nil)
		f.books.On("Get", mock.Anything, bookID).Return(decisionStory(), nil)
		f.books.On("UpdateProgress", mock.Anything, mock.Anything).Return(repository.ErrProgressConflict)

		w := f.do(http.MethodPost, "/api/v1/books/"+bookID+"/progress",
			map[string]interface{}{"scene_id": 1, "choice": "baik"}, ownerID)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "BOOK_PROGRESS_CONFLICT", errorCode(t, w))
	})

	t.Run("wrong scene", func(t *testing.T) {
		f := newFixture(t, nil)
		f.books.On("Get", mock.Anything, bookID).Return(decisionStory(), nil)

		w := f.do(http.MethodPost, "/api/v1/books/"+bookID+"/progress",
			map[string]interface{}{"scene_id": 3}, ownerID)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_INPUT", errorCode(t, w))
	})
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t, map[string]Check{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	w := f.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "connection refused", body.Checks["redis"])

	w = f.do(http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_request_duration_seconds")
}

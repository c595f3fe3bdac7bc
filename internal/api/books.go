package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	apperrors "finlit-workers/internal/common/errors"
	"finlit-workers/internal/common/logger"
	"finlit-workers/internal/models"
	"finlit-workers/internal/orchestrator"
	"finlit-workers/internal/repository"
	generatestory "finlit-workers/internal/workers/story/generate-story"
	persistbook "finlit-workers/internal/workers/story/persist-book"

	"github.com/gin-gonic/gin"
)

type StoryService interface {
	Create(ctx context.Context, req orchestrator.StoryRequest) (*orchestrator.StoryResult, error)
}

// BookStore reads and updates stored books.
type BookStore interface {
	Get(ctx context.Context, id string) (*models.Story, error)
	ListByUser(ctx context.Context, userID string) ([]repository.BookCard, error)
	UpdateProgress(ctx context.Context, story *models.Story) error
}

type createBookRequest struct {
	Prompt         string          `json:"prompt" binding:"required"`
	Language       models.Language `json:"language" binding:"required"`
	Age            int             `json:"age" binding:"required,gte=1,lte=18"`
	ChildID        string          `json:"child_id"`
	CaregiverEmail string          `json:"caregiver_email" binding:"omitempty,email"`
}

type progressRequest struct {
	SceneID int    `json:"scene_id" binding:"required,gte=1"`
	Choice  string `json:"choice"`
}

type createdBook struct {
	ID           string `json:"id"`
	FailedAssets int    `json:"failed_assets"`
}

type progressView struct {
	Status       models.StoryStatus `json:"status"`
	CurrentScene int                `json:"current_scene"`
	UserStory    models.UserStory   `json:"user_story"`
}

type BookHandler struct {
	stories StoryService
	books   BookStore
	now     func() time.Time
	logger  logger.Logger
}

func NewBookHandler(stories StoryService, books BookStore, log logger.Logger) *BookHandler {
	return &BookHandler{
		stories: stories,
		books:   books,
		now:     time.Now,
		logger:  log.WithFields(map[string]interface{}{"handler": "books"}),
	}
}

// Create handles POST /api/v1/books.
func (h *BookHandler) Create(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if !req.Language.Valid() {
		respondError(c, apperrors.NewInvalidInputError("unsupported language "+string(req.Language)))
		return
	}

	result, err := h.stories.Create(c.Request.Context(), orchestrator.StoryRequest{
		UserID:         userID(c),
		ChildID:        req.ChildID,
		Prompt:         req.Prompt,
		Age:            req.Age,
		Language:       req.Language,
		CaregiverEmail: req.CaregiverEmail,
	})
	if err != nil {
		h.logger.Error("book creation failed", map[string]interface{}{
			"userId": userID(c),
			"error":  err.Error(),
		})
		respondError(c, storyError(err))
		return
	}

	respondData(c, http.StatusCreated, "successfully create new book", createdBook{
		ID:           result.BookID,
		FailedAssets: len(result.Assets.Failed),
	})
}

func storyError(err error) *apperrors.StandardError {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		return apperrors.NewInvalidInputError(err.Error())
	case errors.Is(err, generatestory.ErrStoryValidationFailed):
		return apperrors.NewStoryValidationFailedError("generated story did not pass validation")
	case errors.Is(err, generatestory.ErrStoryGenerationFailed):
		return apperrors.NewStoryGenerationFailedError(errors.New("story generation is unavailable"))
	case errors.Is(err, persistbook.ErrDatabaseInsertFailed):
		return apperrors.NewDatabaseInsertFailedError(errors.New("book could not be saved"))
	default:
		return apperrors.NewInternalError(errors.New("book could not be created"))
	}
}

// List handles GET /api/v1/books.
func (h *BookHandler) List(c *gin.Context) {
	cards, err := h.books.ListByUser(c.Request.Context(), userID(c))
	if err != nil {
		h.logger.Error("list books failed", map[string]interface{}{
			"userId": userID(c),
			"error":  err.Error(),
		})
		respondError(c, apperrors.NewInternalError(errors.New("books could not be listed")))
		return
	}
	respondOK(c, cards)
}

// Get handles GET /api/v1/books/:id.
func (h *BookHandler) Get(c *gin.Context) {
	story, ok := h.load(c)
	if !ok {
		return
	}
	respondOK(c, story)
}

// Progress handles POST /api/v1/books/:id/progress.
func (h *BookHandler) Progress(c *gin.Context) {
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	story, ok := h.load(c)
	if !ok {
		return
	}

	if err := story.Advance(req.SceneID, req.Choice, h.now()); err != nil {
		if errors.Is(err, models.ErrInvalidChoice) {
			respondError(c, apperrors.NewInvalidChoiceError(err.Error()))
		} else {
			respondError(c, apperrors.NewInvalidInputError(err.Error()))
		}
		return
	}

	if err := h.books.UpdateProgress(c.Request.Context(), story); err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			respondError(c, apperrors.NewBookNotFoundError(story.ID))
			return
		}
		if errors.Is(err, repository.ErrProgressConflict) {
			h.logger.Warn("progress update lost a concurrent write", map[string]interface{}{
				"bookId": story.ID,
			})
			respondError(c, apperrors.NewBookProgressConflictError(story.ID))
			return
		}
		h.logger.Error("progress update failed", map[string]interface{}{
			"bookId": story.ID,
			"error":  err.Error(),
		})
		respondError(c, apperrors.NewInternalError(errors.New("progress could not be saved")))
		return
	}

	respondOK(c, progressView{
		Status:       story.Status,
		CurrentScene: story.CurrentScene,
		UserStory:    story.UserStory,
	})
}

// load fetches the book named in the path and checks the caller owns it.
func (h *BookHandler) load(c *gin.Context) (*models.Story, bool) {
	id := c.Param("id")
	story, err := h.books.Get(c.Request.Context(), id)
	if errors.Is(err, repository.ErrBookNotFound) {
		respondError(c, apperrors.NewBookNotFoundError(id))
		return nil, false
	}
	if err != nil {
		h.logger.Error("load book failed", map[string]interface{}{
			"bookId": id,
			"error":  err.Error(),
		})
		respondError(c, apperrors.NewInternalError(errors.New("book could not be loaded")))
		return nil, false
	}
	if story.UserID != userID(c) {
		respondError(c, apperrors.NewBookAccessDeniedError(id))
		return nil, false
	}
	return story, true
}

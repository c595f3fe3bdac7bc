package persistbook

import "finlit-workers/internal/models"

type Input struct {
	Story *models.Story `json:"story"`
}

type Output struct {
	BookID string `json:"bookId"`
	Title  string `json:"title"`
	UserID string `json:"userId"`
}

package api

import (
	"net/http"

	apperrors "finlit-workers/internal/common/errors"

	"github.com/gin-gonic/gin"
)

type errorEnvelope struct {
	Error *apperrors.StandardError `json:"error"`
}

type dataEnvelope struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data"`
}

// respondError aborts with the status mapped from the error code.
func respondError(c *gin.Context, err *apperrors.StandardError) {
	c.AbortWithStatusJSON(apperrors.HTTPStatus(err.Code), errorEnvelope{Error: err})
}

func respondData(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, dataEnvelope{Message: message, Data: data})
}

func respondOK(c *gin.Context, data interface{}) {
	respondData(c, http.StatusOK, "", data)
}

// Package errors provides standardized error handling for BPMN workflow
// integration and the HTTP API.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeIntentClassificationFailed ErrorCode = "INTENT_CLASSIFICATION_FAILED"

	ErrCodeBackendCallFailed ErrorCode = "BACKEND_CALL_FAILED"
	ErrCodeBackendTimeout    ErrorCode = "BACKEND_TIMEOUT"

	ErrCodeRetrievalFailed       ErrorCode = "RETRIEVAL_FAILED"
	ErrCodeContextAssemblyFailed ErrorCode = "CONTEXT_ASSEMBLY_FAILED"

	ErrCodeLLMTimeout         ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMSynthesisFailed ErrorCode = "LLM_SYNTHESIS_FAILED"

	ErrCodeStoryGenerationFailed ErrorCode = "STORY_GENERATION_FAILED"
	ErrCodeStoryValidationFailed ErrorCode = "STORY_VALIDATION_FAILED"
	ErrCodeAssetGenerationFailed ErrorCode = "ASSET_GENERATION_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeBookNotFound             ErrorCode = "BOOK_NOT_FOUND"
	ErrCodeBookAccessDenied         ErrorCode = "BOOK_ACCESS_DENIED"
	ErrCodeInvalidChoice            ErrorCode = "INVALID_CHOICE"
	ErrCodeBookProgressConflict     ErrorCode = "BOOK_PROGRESS_CONFLICT"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"

	ErrCodeTemplateNotFound         ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateValidationFailed ErrorCode = "TEMPLATE_VALIDATION_FAILED"

	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// AsStandardError finds a *StandardError in err's chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func NewIntentClassificationFailedError(err error) *StandardError {
	return newError(ErrCodeIntentClassificationFailed, "Intent classification failed", errDetails(err), true)
}

func NewBackendCallFailedError(kind string, err error) *StandardError {
	return newError(ErrCodeBackendCallFailed, "Backend data call failed",
		fmt.Sprintf("kind: %s, error: %s", kind, errDetails(err)), true)
}

func NewBackendTimeoutError(kind string) *StandardError {
	return newError(ErrCodeBackendTimeout, "Backend data call timeout",
		fmt.Sprintf("kind: %s", kind), true)
}

func NewRetrievalFailedError(index string, err error) *StandardError {
	return newError(ErrCodeRetrievalFailed, "Reference document retrieval failed",
		fmt.Sprintf("index: %s, error: %s", index, errDetails(err)), true)
}

func NewContextAssemblyFailedError(details string) *StandardError {
	return newError(ErrCodeContextAssemblyFailed, "Prompt context assembly failed", details, false)
}

func NewLLMTimeoutError() *StandardError {
	return newError(ErrCodeLLMTimeout, "LLM completion timeout", "completion call exceeded its deadline", true)
}

func NewLLMSynthesisFailedError(err error) *StandardError {
	return newError(ErrCodeLLMSynthesisFailed, "LLM completion failed", errDetails(err), true)
}

func NewStoryGenerationFailedError(err error) *StandardError {
	return newError(ErrCodeStoryGenerationFailed, "Story generation failed", errDetails(err), true)
}

func NewStoryValidationFailedError(details string) *StandardError {
	return newError(ErrCodeStoryValidationFailed, "Generated story is not a valid scene graph", details, false)
}

func NewAssetGenerationFailedError(details string) *StandardError {
	return newError(ErrCodeAssetGenerationFailed, "Scene asset generation failed", details, true)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", errDetails(err), true)
}

func NewDatabaseInsertFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, "Database insert operation failed", errDetails(err), true)
}

func NewBookNotFoundError(bookID string) *StandardError {
	return newError(ErrCodeBookNotFound, "Book not found", fmt.Sprintf("bookId: %s", bookID), false)
}

func NewBookAccessDeniedError(bookID string) *StandardError {
	return newError(ErrCodeBookAccessDenied, "Book belongs to another user", fmt.Sprintf("bookId: %s", bookID), false)
}

// NewBookProgressConflictError reports progress saved against a stale read.
func NewBookProgressConflictError(bookID string) *StandardError {
	return newError(ErrCodeBookProgressConflict, "Book progress changed concurrently, reload and retry",
		fmt.Sprintf("bookId: %s", bookID), false)
}

func NewInvalidChoiceError(details string) *StandardError {
	return newError(ErrCodeInvalidChoice, "Invalid story progress", details, false)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("type: %s, error: %s", channel, errDetails(err)), true)
}

func NewTemplateNotFoundError(name string) *StandardError {
	return newError(ErrCodeTemplateNotFound, "Template not found in registry",
		fmt.Sprintf("template: %s", name), false)
}

func NewTemplateValidationFailedError(details string) *StandardError {
	return newError(ErrCodeTemplateValidationFailed, "Template validation failed", details, false)
}

func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid input", details, false)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternalError, "Unexpected error", errDetails(err), false)
}

// BPMNErrorMapping maps internal codes to the error codes modelled in the BPMN diagrams.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeIntentClassificationFailed: "INTENT_CLASSIFICATION_FAILED",
	ErrCodeBackendCallFailed:          "BACKEND_CALL_FAILED",
	ErrCodeBackendTimeout:             "BACKEND_TIMEOUT",
	ErrCodeRetrievalFailed:            "RETRIEVAL_FAILED",
	ErrCodeContextAssemblyFailed:      "CONTEXT_ASSEMBLY_FAILED",
	ErrCodeLLMTimeout:                 "LLM_TIMEOUT",
	ErrCodeLLMSynthesisFailed:         "LLM_SYNTHESIS_FAILED",
	ErrCodeStoryGenerationFailed:      "STORY_GENERATION_FAILED",
	ErrCodeStoryValidationFailed:      "STORY_VALIDATION_FAILED",
	ErrCodeAssetGenerationFailed:      "ASSET_GENERATION_FAILED",
	ErrCodeDatabaseConnectionFailed:   "DATABASE_CONNECTION_FAILED",
	ErrCodeDatabaseInsertFailed:       "DATABASE_INSERT_FAILED",
	ErrCodeBookNotFound:               "BOOK_NOT_FOUND",
	ErrCodeBookAccessDenied:           "BOOK_ACCESS_DENIED",
	ErrCodeInvalidChoice:              "INVALID_CHOICE",
	ErrCodeNotificationSendFailed:     "NOTIFICATION_SEND_FAILED",
	ErrCodeTemplateNotFound:           "TEMPLATE_NOT_FOUND",
	ErrCodeTemplateValidationFailed:   "TEMPLATE_VALIDATION_FAILED",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeIntentClassificationFailed,
		ErrCodeBackendCallFailed,
		ErrCodeRetrievalFailed,
		ErrCodeLLMSynthesisFailed,
		ErrCodeStoryGenerationFailed,
		ErrCodeAssetGenerationFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeNotificationSendFailed:
		return 3

	case ErrCodeBackendTimeout:
		return 2

	case ErrCodeLLMTimeout:
		return 1

	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "TEMPLATE") || strings.Contains(codeStr, "CONTEXT"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "DATABASE") || strings.HasPrefix(codeStr, "BOOK"):
		return "DATABASE"
	case strings.Contains(codeStr, "BACKEND"):
		return "BACKEND"
	case strings.Contains(codeStr, "RETRIEVAL"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "INTENT") || strings.Contains(codeStr, "LLM") ||
		strings.Contains(codeStr, "STORY") || strings.Contains(codeStr, "ASSET"):
		return "AI"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

// HTTPStatus maps an error code to the status the API answers with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeBookNotFound, ErrCodeTemplateNotFound:
		return http.StatusNotFound
	case ErrCodeBookAccessDenied:
		return http.StatusForbidden
	case ErrCodeBookProgressConflict:
		return http.StatusConflict
	case ErrCodeInvalidChoice, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeStoryValidationFailed:
		return http.StatusUnprocessableEntity
	case ErrCodeLLMTimeout, ErrCodeBackendTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeStoryGenerationFailed, ErrCodeAssetGenerationFailed,
		ErrCodeLLMSynthesisFailed, ErrCodeBackendCallFailed, ErrCodeRetrievalFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

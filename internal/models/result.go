package models

// ErrKind classifies a failed unit of fan-out work.
type ErrKind string

const (
	ErrKindUnknownEndpoint ErrKind = "unknown_endpoint"
	ErrKindTransport       ErrKind = "transport"
	ErrKindHTTPStatus      ErrKind = "http_status"
	ErrKindTimeout         ErrKind = "timeout"
	ErrKindDecode          ErrKind = "decode"
	ErrKindGeneration      ErrKind = "generation"
	ErrKindUpload          ErrKind = "upload"
)

type CallError struct {
	Kind   ErrKind `json:"kind"`
	Detail string  `json:"detail"`
}

func (e *CallError) Error() string {
	return string(e.Kind) + ": " + e.Detail
}

// Result carries either a value or a CallError, never both.
type Result[T any] struct {
	Value T
	Err   *CallError
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Err[T any](kind ErrKind, detail string) Result[T] {
	return Result[T]{Err: &CallError{Kind: kind, Detail: detail}}
}

func (r Result[T]) IsOk() bool {
	return r.Err == nil
}

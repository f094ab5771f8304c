// Package apperr defines the error kinds shared by the retrieval pipeline and
// their mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindUnknown             Kind = "UNKNOWN"
	KindInvalidInput        Kind = "INVALID_INPUT"
	KindDecodeFailure       Kind = "DECODE_FAILURE"
	KindProviderUnavailable Kind = "PROVIDER_UNAVAILABLE"
	KindEmbeddingFailed     Kind = "EMBEDDING_FAILED"
	KindGenerationFailed    Kind = "GENERATION_FAILED"
	KindDimensionMismatch   Kind = "DIMENSION_MISMATCH"
	KindStoreUnavailable    Kind = "STORE_UNAVAILABLE"
)

// NoIndex marks an Error that is not tied to a particular input position.
const NoIndex = -1

// Error is a classified failure. Op names the operation that failed, e.g.
// "embed" or "qdrant.upsert". Index is the offending input position for
// batch operations and NoIndex otherwise.
type Error struct {
	Kind    Kind
	Op      string
	Index   int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	if e.Index >= 0 {
		msg += fmt.Sprintf(" (index %d)", e.Index)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match for any *Error carrying the same kind, so callers can
// write errors.Is(err, apperr.ErrStoreUnavailable).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidInput        = &Error{Kind: KindInvalidInput, Index: NoIndex}
	ErrDecodeFailure       = &Error{Kind: KindDecodeFailure, Index: NoIndex}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable, Index: NoIndex}
	ErrEmbeddingFailed     = &Error{Kind: KindEmbeddingFailed, Index: NoIndex}
	ErrGenerationFailed    = &Error{Kind: KindGenerationFailed, Index: NoIndex}
	ErrDimensionMismatch   = &Error{Kind: KindDimensionMismatch, Index: NoIndex}
	ErrStoreUnavailable    = &Error{Kind: KindStoreUnavailable, Index: NoIndex}
)

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Index: NoIndex, Message: message}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Index: NoIndex, Err: err}
}

// AtIndex returns an error for a single item of a batch.
func AtIndex(kind Kind, op string, index int, message string) *Error {
	return &Error{Kind: kind, Op: op, Index: index, Message: message}
}

func InvalidInput(op, message string) *Error {
	return New(KindInvalidInput, op, message)
}

func DecodeFailure(op string, err error) *Error {
	return Wrap(KindDecodeFailure, op, err)
}

func ProviderUnavailable(op string, err error) *Error {
	return Wrap(KindProviderUnavailable, op, err)
}

func StoreUnavailable(op string, err error) *Error {
	return Wrap(KindStoreUnavailable, op, err)
}

func DimensionMismatch(op string, want, got int) *Error {
	return New(KindDimensionMismatch, op, fmt.Sprintf("expected dimension %d, got %d", want, got))
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus maps a kind to the status a handler should answer with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput, KindDecodeFailure:
		return http.StatusBadRequest
	case KindDimensionMismatch:
		return http.StatusConflict
	case KindEmbeddingFailed, KindGenerationFailed:
		return http.StatusBadGateway
	case KindProviderUnavailable, KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

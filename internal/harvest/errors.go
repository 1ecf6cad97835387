package harvest

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies extraction failures.
type ErrorKind string

const (
	KindFieldNotFound     ErrorKind = "field_not_found"
	KindItemUnavailable   ErrorKind = "item_unavailable"
	KindNoIdentifier      ErrorKind = "no_identifier"
	KindBackendError      ErrorKind = "backend_error"
	KindEmptyResponse     ErrorKind = "empty_response"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindCanceled          ErrorKind = "canceled"
	KindPanic             ErrorKind = "panic"
)

var (
	// ErrNoWorkItems is returned when a run starts with nothing to process.
	ErrNoWorkItems = errors.New("no work items")
	// ErrQueueDrained is returned by a queue that is closed and empty.
	ErrQueueDrained = errors.New("queue drained")
	// ErrAggregateEmpty signals that a run finished without a single completed record.
	ErrAggregateEmpty = errors.New("aggregate empty")

	ErrFieldNotFound     = &ExtractionError{Kind: KindFieldNotFound}
	ErrItemUnavailable   = &ExtractionError{Kind: KindItemUnavailable}
	ErrNoIdentifier      = &ExtractionError{Kind: KindNoIdentifier}
	ErrBackend           = &ExtractionError{Kind: KindBackendError}
	ErrEmptyResponse     = &ExtractionError{Kind: KindEmptyResponse}
	ErrMalformedResponse = &ExtractionError{Kind: KindMalformedResponse}
)

// ExtractionError is the only error type an extraction session returns.
type ExtractionError struct {
	Kind       ErrorKind
	StatusCode int
	URL        string
	Err        error
}

// NewExtractionError builds an ExtractionError for url.
func NewExtractionError(kind ErrorKind, url string, err error) *ExtractionError {
	return &ExtractionError{Kind: kind, URL: url, Err: err}
}

// BackendError reports a remote failure. Transport errors use statusCode 0.
func BackendError(url string, statusCode int, err error) *ExtractionError {
	return &ExtractionError{Kind: KindBackendError, StatusCode: statusCode, URL: url, Err: err}
}

func (e *ExtractionError) Error() string {
	msg := string(e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.URL != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.URL)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is matches any ExtractionError of the same kind, so the Err* values work as sentinels.
func (e *ExtractionError) Is(target error) bool {
	var other *ExtractionError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// AsExtractionError unwraps err into an ExtractionError.
func AsExtractionError(err error) (*ExtractionError, bool) {
	var xerr *ExtractionError
	if errors.As(err, &xerr) {
		return xerr, true
	}
	return nil, false
}

// KindOf maps any error to an ErrorKind. Unknown errors are backend errors.
func KindOf(err error) ErrorKind {
	if xerr, ok := AsExtractionError(err); ok {
		return xerr.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindBackendError
}

package repository

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrMissingAPIKey = errors.New("api key is not configured")

	// Classes of upstream failure. A *SearchError or *ExtractionError
	// matches the sentinel of its Kind with errors.Is.
	ErrAuth        = errors.New("credentials rejected")
	ErrRateLimited = errors.New("rate limited")
	ErrTransient   = errors.New("transient upstream failure")
	ErrClient      = errors.New("request rejected")
	ErrMalformed   = errors.New("malformed response")
	ErrCanceled    = errors.New("canceled")
)

// ErrorKind classifies an upstream failure for retry decisions and metrics.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindRateLimited ErrorKind = "rate_limited"
	KindTransient   ErrorKind = "transient"
	KindClient      ErrorKind = "client"
	KindMalformed   ErrorKind = "malformed"
	KindCanceled    ErrorKind = "canceled"
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindAuth:
		return ErrAuth
	case KindRateLimited:
		return ErrRateLimited
	case KindTransient:
		return ErrTransient
	case KindClient:
		return ErrClient
	case KindMalformed:
		return ErrMalformed
	case KindCanceled:
		return ErrCanceled
	}
	return nil
}

// Retryable reports whether another attempt may succeed.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient || k == KindRateLimited
}

// KindForStatus maps an HTTP status code onto a failure class.
// It returns "" for 2xx codes.
func KindForStatus(code int) ErrorKind {
	switch {
	case code >= 200 && code < 300:
		return ""
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout || code >= 500:
		return KindTransient
	default:
		return KindClient
	}
}

// UpstreamError carries the diagnostic details of a failed upstream call.
type UpstreamError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := string(e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() []error {
	errs := []error{}
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// SearchError is a per-row search failure.
type SearchError struct {
	Query string
	UpstreamError
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %q: %s", e.Query, e.UpstreamError.Error())
}

func (e *SearchError) Unwrap() []error { return e.UpstreamError.Unwrap() }

// ExtractionError is a per-row failure of the language-model call.
type ExtractionError struct {
	Field string
	UpstreamError
}

func (e *ExtractionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("extract %q: %s", e.Field, e.UpstreamError.Error())
	}
	return "extract: " + e.UpstreamError.Error()
}

func (e *ExtractionError) Unwrap() []error { return e.UpstreamError.Unwrap() }

// KindOf returns the failure class of err, or "" if err carries none.
func KindOf(err error) ErrorKind {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	var se *SearchError
	if errors.As(err, &se) {
		return se.Kind
	}
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}

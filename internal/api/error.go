package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// ProblemContentType is sent with every structured error body.
const ProblemContentType = "application/problem+json"

// ErrorBody is the machine-parsable part of an API error, loosely following
// RFC 7807. All fields are optional; an entirely empty body is sent as a
// zero-length response instead of "{}".
type ErrorBody struct {
	// DocsURI links to documentation describing the error.
	DocsURI string `json:"type,omitempty"`
	// Title is a short, human-readable summary of the problem.
	Title string `json:"title,omitempty"`
	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
	// Source names the service or component that produced the error.
	Source string `json:"source,omitempty"`
	// ErrorCode is an optional service-specific code.
	ErrorCode *uint8 `json:"error_code,omitempty"`
}

// IsEmpty reports whether every field of the body is unset.
func (b ErrorBody) IsEmpty() bool {
	return b == ErrorBody{}
}

// Error is the transport-independent outcome of a failed API request: an
// HTTP status code, a structured body, and extra headers to attach to the
// wire response. It implements the error interface so handlers can return it
// directly.
type Error struct {
	StatusCode int
	Body       ErrorBody
	Header     http.Header
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Body.Title, e.Body.Detail)
}

// NewError returns an empty Error with the given HTTP status code.
func NewError(statusCode int) *Error {
	return &Error{StatusCode: statusCode, Header: http.Header{}}
}

// BadRequest returns a 400 error.
func BadRequest() *Error { return NewError(http.StatusBadRequest) }

// Forbidden returns a 403 error.
func Forbidden() *Error { return NewError(http.StatusForbidden) }

// NotFound returns a 404 error.
func NotFound() *Error { return NewError(http.StatusNotFound) }

// Internal returns a 500 error with the detail taken from cause.
func Internal(cause error) *Error {
	return NewError(http.StatusInternalServerError).WithDetail(cause.Error())
}

// WithDocsURI sets the documentation link and returns the error.
func (e *Error) WithDocsURI(docsURI string) *Error {
	e.Body.DocsURI = docsURI
	return e
}

// WithTitle sets the error title and returns the error.
func (e *Error) WithTitle(title string) *Error {
	e.Body.Title = title
	return e
}

// WithDetail sets the error detail and returns the error.
func (e *Error) WithDetail(detail string) *Error {
	e.Body.Detail = detail
	return e
}

// WithSource sets the originating component and returns the error.
func (e *Error) WithSource(source string) *Error {
	e.Body.Source = source
	return e
}

// WithErrorCode sets the service-specific code and returns the error.
func (e *Error) WithErrorCode(code uint8) *Error {
	e.Body.ErrorCode = &code
	return e
}

func (e *Error) withHeader(key, value string) *Error {
	if e.Header == nil {
		e.Header = http.Header{}
	}
	e.Header.Set(key, value)
	return e
}

// MarshalBody serializes the structured body for the wire. An entirely empty
// body yields a zero-length payload rather than "{}".
func (e *Error) MarshalBody() ([]byte, error) {
	if e.Body.IsEmpty() {
		return nil, nil
	}
	return json.Marshal(e.Body)
}

// ParseError reconstructs an Error from a wire response, the inverse of
// MarshalBody. A zero-length body maps back to an empty ErrorBody.
func ParseError(statusCode int, body []byte) (*Error, error) {
	e := NewError(statusCode)
	if len(body) == 0 {
		return e, nil
	}
	if err := json.Unmarshal(body, &e.Body); err != nil {
		return nil, fmt.Errorf("malformed error body: %w", err)
	}
	return e, nil
}

// MovedPermanentlyError builds a 301 redirect pointing at a base location
// plus an optional URL-encoded query part. Redirects carry no body.
type MovedPermanentlyError struct {
	location string
	query    url.Values
}

// MovedPermanently starts a redirect error builder for the given location.
func MovedPermanently(location string) *MovedPermanentlyError {
	return &MovedPermanentlyError{location: location}
}

// WithQuery attaches a query string to the redirect location.
func (m *MovedPermanentlyError) WithQuery(query url.Values) *MovedPermanentlyError {
	m.query = query
	return m
}

// ToError finalizes the builder into an Error carrying the Location header.
func (m *MovedPermanentlyError) ToError() *Error {
	location := m.location
	if len(m.query) > 0 {
		location = location + "?" + m.query.Encode()
	}
	return NewError(http.StatusMovedPermanently).withHeader("Location", location)
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Mutability classifies an endpoint as read-only or state-changing. It
// decides both the HTTP method and where the query value is extracted from:
// immutable endpoints read the URL query string, mutable endpoints read a
// JSON request body.
type Mutability int

const (
	Immutable Mutability = iota
	Mutable
)

func (m Mutability) String() string {
	if m == Mutable {
		return "mutable"
	}
	return "immutable"
}

// Method returns the HTTP method used to invoke endpoints of this kind.
func (m Mutability) Method() string {
	if m == Mutable {
		return http.MethodPost
	}
	return http.MethodGet
}

// Actuality describes the lifecycle state of an endpoint: current, or
// deprecated with optional discontinuation metadata. The zero value means
// the endpoint is current.
type Actuality struct {
	deprecated     bool
	discontinuedOn *time.Time
	description    string
}

// Actual marks an endpoint as current.
func Actual() Actuality { return Actuality{} }

// IsDeprecated reports whether the endpoint is deprecated.
func (a Actuality) IsDeprecated() bool { return a.deprecated }

// warningText renders the Warning header message for deprecated endpoints.
func (a Actuality) warningText() string {
	expiration := "Currently there is no specific date for disabling this endpoint."
	if a.discontinuedOn != nil {
		expiration = fmt.Sprintf(
			"The old API is maintained until %s.",
			a.discontinuedOn.UTC().Format(http.TimeFormat),
		)
	}

	text := "Deprecated API: this endpoint is deprecated, " +
		"see documentation for an alternative. " + expiration
	if a.description != "" {
		text = fmt.Sprintf("%s Additional information: %s.", text, a.description)
	}
	return text
}

// HandlerFunc is a typed endpoint handler: it receives a query value decoded
// from the request and returns a serializable result or an error. Returning
// *Error controls the wire response precisely; any other error is reported
// as a 500 with the error text as detail.
type HandlerFunc[Q, I any] func(ctx context.Context, query Q) (I, error)

// Deprecated adapts a handler into a deprecated endpoint, optionally
// carrying the planned discontinuation date and extra information. Wiring a
// deprecated endpoint makes successful responses carry a "Warning: 299"
// header describing the deprecation.
type Deprecated[Q, I any] struct {
	Handler        HandlerFunc[Q, I]
	discontinuedOn *time.Time
	description    string
}

// NewDeprecated wraps handler as deprecated with no metadata.
func NewDeprecated[Q, I any](handler HandlerFunc[Q, I]) Deprecated[Q, I] {
	return Deprecated[Q, I]{Handler: handler}
}

// WithDate sets the date the endpoint stops being maintained.
func (d Deprecated[Q, I]) WithDate(discontinuedOn time.Time) Deprecated[Q, I] {
	d.discontinuedOn = &discontinuedOn
	return d
}

// WithDescription attaches extra information, usually a pointer to the
// replacement endpoint.
func (d Deprecated[Q, I]) WithDescription(description string) Deprecated[Q, I] {
	d.description = description
	return d
}

func (d Deprecated[Q, I]) actuality() Actuality {
	return Actuality{
		deprecated:     true,
		discontinuedOn: d.discontinuedOn,
		description:    d.description,
	}
}

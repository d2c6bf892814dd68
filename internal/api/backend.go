package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/schema"
)

// queryDecoder maps URL query strings onto typed query values. Field names
// follow json tags so query and body extraction share one struct shape.
var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.SetAliasTag("json")
	d.IgnoreUnknownKeys(true)
	return d
}()

// AddEndpoint registers an immutable (read-only, GET, query-extracted)
// endpoint on the scope.
func AddEndpoint[Q, I any](s *Scope, name string, handler HandlerFunc[Q, I]) *Scope {
	return s.Add(newEndpoint(name, Immutable, Actual(), handler))
}

// AddEndpointMut registers a mutable (state-changing, POST, body-extracted)
// endpoint on the scope.
func AddEndpointMut[Q, I any](s *Scope, name string, handler HandlerFunc[Q, I]) *Scope {
	return s.Add(newEndpoint(name, Mutable, Actual(), handler))
}

// AddDeprecated registers an immutable deprecated endpoint.
func AddDeprecated[Q, I any](s *Scope, name string, d Deprecated[Q, I]) *Scope {
	return s.Add(newEndpoint(name, Immutable, d.actuality(), d.Handler))
}

// AddDeprecatedMut registers a mutable deprecated endpoint.
func AddDeprecatedMut[Q, I any](s *Scope, name string, d Deprecated[Q, I]) *Scope {
	return s.Add(newEndpoint(name, Mutable, d.actuality(), d.Handler))
}

// newEndpoint erases a typed handler behind the uniform Endpoint shape:
// extraction, invocation and serialization are bound here, once, so every
// endpoint looks identical to the transport.
func newEndpoint[Q, I any](name string, mutability Mutability, actuality Actuality, handler HandlerFunc[Q, I]) Endpoint {
	h := func(w http.ResponseWriter, r *http.Request) {
		query, apiErr := extract[Q](r, mutability)
		if apiErr != nil {
			writeError(w, apiErr)
			return
		}
		item, err := handler(r.Context(), query)
		if err != nil {
			writeError(w, asAPIError(err))
			return
		}
		writeJSON(w, actuality, item)
	}

	return Endpoint{
		Name:       name,
		Mutability: mutability,
		Actuality:  actuality,
		Handler:    h,
	}
}

// extract decodes the request into a query value following the extraction
// policy: query string for immutable endpoints, JSON body for mutable ones.
func extract[Q any](r *http.Request, mutability Mutability) (Q, *Error) {
	var query Q

	if mutability == Mutable {
		if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
			return query, BadRequest().
				WithTitle("JSON body parse error").
				WithDetail(err.Error())
		}
		return query, nil
	}

	if err := queryDecoder.Decode(&query, r.URL.Query()); err != nil {
		return query, BadRequest().
			WithTitle("Query parse error").
			WithDetail(err.Error())
	}
	return query, nil
}

// asAPIError surfaces handler failures: an *Error passes through verbatim,
// anything else becomes an internal server fault.
func asAPIError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal(err)
}

func writeJSON(w http.ResponseWriter, actuality Actuality, item interface{}) {
	body, err := json.Marshal(item)
	if err != nil {
		writeError(w, Internal(err))
		return
	}

	if actuality.IsDeprecated() {
		w.Header().Set("Warning", fmt.Sprintf("299 - %q", actuality.warningText()))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, e *Error) {
	body, err := e.MarshalBody()
	if err != nil {
		// The body is a plain struct; this cannot realistically fail.
		body = nil
	}

	for key, values := range e.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set("Content-Type", ProblemContentType)
	w.WriteHeader(e.StatusCode)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
}

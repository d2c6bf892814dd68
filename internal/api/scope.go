package api

import (
	"net/http"
	"sort"
)

// Access is the partition of the API surface an endpoint is exposed on.
type Access int

const (
	// Public endpoints are reachable by anyone able to connect.
	Public Access = iota
	// Private endpoints are reserved for the node operator.
	Private
)

func (a Access) String() string {
	if a == Private {
		return "private"
	}
	return "public"
}

// Endpoint is the type-erased, transport-ready form of one registered
// operation. The typed handler has already been bound to extraction and
// serialization by the dispatch adapter.
type Endpoint struct {
	Name       string
	Mutability Mutability
	Actuality  Actuality
	Handler    http.HandlerFunc
}

// Scope is an insertion-ordered set of endpoints under one access level.
// Registering the same name twice is allowed; the last registration wins
// when the scope is wired into a router.
type Scope struct {
	endpoints []Endpoint
}

// Add appends an endpoint to the scope and returns the scope for chaining.
func (s *Scope) Add(ep Endpoint) *Scope {
	s.endpoints = append(s.endpoints, ep)
	return s
}

// Endpoints returns the registered endpoints in registration order.
func (s *Scope) Endpoints() []Endpoint {
	return s.endpoints
}

// resolved returns the endpoints deduplicated by (method, name), keeping the
// latest registration and preserving first-seen order otherwise.
func (s *Scope) resolved() []Endpoint {
	type key struct {
		method string
		name   string
	}
	index := make(map[key]int, len(s.endpoints))
	out := make([]Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		k := key{method: ep.Mutability.Method(), name: ep.Name}
		if i, ok := index[k]; ok {
			out[i] = ep
			continue
		}
		index[k] = len(out)
		out = append(out, ep)
	}
	return out
}

func (s *Scope) clone() Scope {
	return Scope{endpoints: append([]Endpoint(nil), s.endpoints...)}
}

// Builder is one service's API surface: a public scope for endpoints safe to
// expose broadly, and a private scope for operational endpoints.
type Builder struct {
	public  Scope
	private Scope
}

// NewBuilder returns an empty service API surface.
func NewBuilder() *Builder { return &Builder{} }

// PublicScope returns the mutable public scope of the service.
func (b *Builder) PublicScope() *Scope { return &b.public }

// PrivateScope returns the mutable private scope of the service.
func (b *Builder) PrivateScope() *Scope { return &b.private }

// Scope returns the scope for the given access level.
func (b *Builder) Scope(access Access) *Scope {
	if access == Private {
		return &b.private
	}
	return &b.public
}

func (b *Builder) clone() *Builder {
	return &Builder{public: b.public.clone(), private: b.private.clone()}
}

// ServiceAPI names one service's API surface inside an aggregator or an
// endpoint-set update.
type ServiceAPI struct {
	Name string
	API  *Builder
}

// Aggregator merges every service's API surface into one routable namespace
// per access level. Service names are unique; inserting an existing name
// replaces the previous surface. Iteration is ordered by name so route
// tables are built deterministically.
type Aggregator struct {
	services map[string]*Builder
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{services: make(map[string]*Builder)}
}

// Insert registers a service's API surface under its name.
func (a *Aggregator) Insert(name string, builder *Builder) {
	a.services[name] = builder
}

// Extend registers every listed service, replacing surfaces whose names are
// already present.
func (a *Aggregator) Extend(services []ServiceAPI) {
	for _, svc := range services {
		a.services[svc.Name] = svc.API
	}
}

// ServiceNames returns the registered service names in sorted order.
func (a *Aggregator) ServiceNames() []string {
	names := make([]string, 0, len(a.services))
	for name := range a.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone deep-copies the aggregator so a running listener generation is not
// affected by later registrations.
func (a *Aggregator) Clone() *Aggregator {
	out := NewAggregator()
	for name, builder := range a.services {
		out.services[name] = builder.clone()
	}
	return out
}

// Package status exposes build and uptime information about the node. It is
// the simplest example of a service registering endpoints on the public API
// surface.
package status

import (
	"context"
	"time"

	"github.com/quorumlab/nodegate/internal/api"
	"github.com/quorumlab/nodegate/internal/version"
)

// Name is the route segment the service is mounted under.
const Name = "status"

type infoQuery struct{}

type infoResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version,omitempty"`
	Commit        string  `json:"commit,omitempty"`
	GoVersion     string  `json:"go_version,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Service reports node status over the public API.
type Service struct {
	started time.Time
}

// New creates the status service; uptime is counted from now.
func New() *Service {
	return &Service{started: time.Now()}
}

// API builds the service's endpoint surface. The old "health" endpoint is
// kept as a deprecated alias of "info".
func (s *Service) API() *api.Builder {
	builder := api.NewBuilder()

	api.AddEndpoint(builder.PublicScope(), "info", s.info)
	api.AddDeprecated(builder.PublicScope(), "health",
		api.NewDeprecated(s.info).
			WithDescription("use the `info` endpoint instead"))

	return builder
}

func (s *Service) info(_ context.Context, _ infoQuery) (infoResponse, error) {
	return infoResponse{
		Status:        "ok",
		Version:       version.Version,
		Commit:        version.Commit,
		GoVersion:     version.GoVersion,
		UptimeSeconds: time.Since(s.started).Seconds(),
	}, nil
}

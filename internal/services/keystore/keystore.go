// Package keystore is a redis-backed key/value service demonstrating both
// access levels: reads and writes on the public surface, destructive
// operations on the private one.
package keystore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quorumlab/nodegate/internal/api"
)

// Name is the route segment the service is mounted under.
const Name = "keystore"

const keyPrefix = "nodegate:kv:"

type getQuery struct {
	Key string `json:"key"`
}

type entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type dropQuery struct {
	Key string `json:"key"`
}

type dropResponse struct {
	Removed bool `json:"removed"`
}

// Service stores string values in redis.
type Service struct {
	client *redis.Client
}

// New creates the keystore service on top of an established redis client.
func New(client *redis.Client) *Service {
	return &Service{client: client}
}

// API builds the service's endpoint surface.
func (s *Service) API() *api.Builder {
	builder := api.NewBuilder()

	api.AddEndpoint(builder.PublicScope(), "get", s.get)
	api.AddEndpointMut(builder.PublicScope(), "put", s.put)
	api.AddEndpointMut(builder.PrivateScope(), "drop", s.drop)

	return builder
}

func (s *Service) get(ctx context.Context, q getQuery) (entry, error) {
	if q.Key == "" {
		return entry{}, api.BadRequest().
			WithTitle("Missing key").
			WithSource(Name)
	}

	value, err := s.client.Get(ctx, keyPrefix+q.Key).Result()
	if errors.Is(err, redis.Nil) {
		return entry{}, api.NotFound().
			WithTitle("Key not found").
			WithDetail(fmt.Sprintf("no value stored under `%s`", q.Key)).
			WithSource(Name)
	}
	if err != nil {
		return entry{}, fmt.Errorf("keystore get: %w", err)
	}
	return entry{Key: q.Key, Value: value}, nil
}

func (s *Service) put(ctx context.Context, e entry) (entry, error) {
	if e.Key == "" {
		return entry{}, api.BadRequest().
			WithTitle("Missing key").
			WithSource(Name)
	}
	if err := s.client.Set(ctx, keyPrefix+e.Key, e.Value, 0).Err(); err != nil {
		return entry{}, fmt.Errorf("keystore put: %w", err)
	}
	return e, nil
}

func (s *Service) drop(ctx context.Context, q dropQuery) (dropResponse, error) {
	if q.Key == "" {
		return dropResponse{}, api.BadRequest().
			WithTitle("Missing key").
			WithSource(Name)
	}
	removed, err := s.client.Del(ctx, keyPrefix+q.Key).Result()
	if err != nil {
		return dropResponse{}, fmt.Errorf("keystore drop: %w", err)
	}
	return dropResponse{Removed: removed > 0}, nil
}

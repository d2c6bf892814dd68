package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quorumlab/nodegate/internal/logger"
)

const (
	// DefaultRetryTimeout is the fixed delay between bind attempts.
	DefaultRetryTimeout = 500 * time.Millisecond
	// DefaultMaxRetries bounds bind attempts per listener per generation.
	DefaultMaxRetries = 20

	shutdownTimeout = 5 * time.Second
)

// ServerConfig is the network policy of one listener.
type ServerConfig struct {
	// ListenAddress is the TCP address the listener binds, e.g. ":8080".
	ListenAddress string
	// AllowOrigin optionally enables CORS enforcement.
	AllowOrigin *AllowOrigin
	// JSONPayloadSize optionally caps request bodies, in bytes.
	JSONPayloadSize int64
}

// NewServerConfig returns a ServerConfig with no CORS policy and no payload
// limit.
func NewServerConfig(listenAddress string) ServerConfig {
	return ServerConfig{ListenAddress: listenAddress}
}

// ManagerConfig is the process-wide policy of the API manager.
type ManagerConfig struct {
	// Servers maps each served access level to its listener policy.
	Servers map[Access]ServerConfig
	// Aggregator is the static endpoint set every generation starts from.
	Aggregator *Aggregator
	// RetryTimeout is the fixed delay between failed bind attempts.
	RetryTimeout time.Duration
	// MaxRetries bounds bind attempts; at least 1.
	MaxRetries int
	// DisableSignals stops the manager from treating SIGINT/SIGTERM as a
	// shutdown request. Useful when the embedding process owns signals.
	DisableSignals bool
}

// NewManagerConfig builds a config with the default retry policy.
func NewManagerConfig(servers map[Access]ServerConfig, aggregator *Aggregator) ManagerConfig {
	return ManagerConfig{
		Servers:      servers,
		Aggregator:   aggregator,
		RetryTimeout: DefaultRetryTimeout,
		MaxRetries:   DefaultMaxRetries,
	}
}

// WithRetries overrides the retry policy.
func (c ManagerConfig) WithRetries(timeout time.Duration, maxRetries int) ManagerConfig {
	c.RetryTimeout = timeout
	c.MaxRetries = maxRetries
	return c
}

// Validate fails fast on configurations the manager cannot run with.
func (c ManagerConfig) Validate() error {
	if len(c.Servers) == 0 {
		return errors.New("manager config: no servers configured")
	}
	for access, sc := range c.Servers {
		if sc.ListenAddress == "" {
			return fmt.Errorf("manager config: %s server has no listen address", access)
		}
	}
	if c.Aggregator == nil {
		return errors.New("manager config: nil aggregator")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("manager config: max retries must be >= 1, got %d", c.MaxRetries)
	}
	return nil
}

// UpdateEndpoints is one full replacement of the dynamic endpoint set.
type UpdateEndpoints struct {
	endpoints []ServiceAPI
}

// NewUpdateEndpoints wraps the replacement endpoint set.
func NewUpdateEndpoints(endpoints []ServiceAPI) UpdateEndpoints {
	return UpdateEndpoints{endpoints: endpoints}
}

// UpdatedPaths lists the service names carried by the update.
func (u UpdateEndpoints) UpdatedPaths() []string {
	paths := make([]string, len(u.endpoints))
	for i, svc := range u.endpoints {
		paths[i] = svc.Name
	}
	return paths
}

// serverExit is the single terminal outcome a supervised listener forwards
// to its generation's completion channel.
type serverExit struct {
	access Access
	addr   string
	err    error
}

// serverHandle owns one bound, running listener.
type serverHandle struct {
	access   Access
	addr     string
	listener net.Listener
	server   *http.Server
}

func (h serverHandle) stop(log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := h.server.Shutdown(ctx); err != nil {
		log.Warn("forcing listener close after failed graceful shutdown",
			logger.String("access", h.access.String()),
			logger.String("addr", h.addr),
			logger.Error(err))
		_ = h.server.Close()
	}
}

// Manager supervises one listener per access level. It owns the full
// lifecycle: binding with retries, supervising crashes, and all-or-nothing
// hot restarts when the endpoint set changes. All state is mutated by the
// single goroutine running Run; listeners communicate back only through the
// per-generation completion channel.
type Manager struct {
	cfg       ManagerConfig
	log       logger.Logger
	servers   []serverHandle
	endpoints []ServiceAPI
}

// NewManager builds a manager from a validated config.
func NewManager(cfg ManagerConfig, log logger.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg, log: log}, nil
}

// Run drives the manager until the update stream closes (orderly shutdown,
// nil), the context is canceled (orderly shutdown, nil), or a listener
// terminates with an error (fatal, returned). Listeners are only started
// when the first UpdateEndpoints message arrives; each further update stops
// the running generation and starts the next one with the merged endpoint
// set. Updates are processed strictly in order with no coalescing.
func (m *Manager) Run(ctx context.Context, updates <-chan UpdateEndpoints) error {
	if !m.cfg.DisableSignals {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}

	err := m.runInner(ctx, updates)
	m.stopServers()
	m.log.Info("http servers shut down")
	return err
}

func (m *Manager) runInner(ctx context.Context, updates <-chan UpdateEndpoints) error {
	done := make(chan serverExit, len(m.cfg.Servers))

	for {
		select {
		case exit := <-done:
			if exit.err != nil {
				m.log.Error("listener failed",
					logger.String("access", exit.access.String()),
					logger.String("addr", exit.addr),
					logger.Error(exit.err))
				return exit.err
			}
			m.log.Info("listener terminated cleanly",
				logger.String("access", exit.access.String()),
				logger.String("addr", exit.addr))
			return nil

		case update, ok := <-updates:
			if !ok {
				return nil
			}
			m.log.Info("server restart requested")

			// A fresh channel per generation: terminal outcomes of the
			// draining generation must never be misattributed to the next.
			done = make(chan serverExit, len(m.cfg.Servers))

			m.stopServers()
			m.endpoints = update.endpoints
			if err := m.startServers(ctx, done); err != nil {
				// Shutdown requested mid-start is orderly, not a failure.
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					return nil
				}
				return err
			}

		case <-ctx.Done():
			return nil
		}
	}
}

// startServers binds one listener per configured access level, concurrently
// and all-or-nothing: if any access level exhausts its retries, every
// listener already bound for this generation is torn down and the error is
// returned.
func (m *Manager) startServers(ctx context.Context, done chan serverExit) error {
	m.log.Debug("servers start requested")

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var started []serverHandle

	for access, sc := range m.cfg.Servers {
		access, sc := access, sc
		aggregator := m.cfg.Aggregator.Clone()
		aggregator.Extend(m.endpoints)

		g.Go(func() error {
			handle, err := m.bindWithRetries(gctx, access, sc, aggregator)
			if err != nil {
				return err
			}
			mu.Lock()
			started = append(started, handle)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// These listeners never reached Serve, so Shutdown would not
		// release them; close them directly.
		for _, handle := range started {
			_ = handle.listener.Close()
		}
		return err
	}

	m.servers = started
	for _, handle := range m.servers {
		go supervise(handle, done, m.log)
	}
	return nil
}

// bindWithRetries attempts to bind the listener up to MaxRetries times with
// a fixed RetryTimeout delay between attempts. Only the bind step is
// retried; once serving, per-request failures never come back here.
func (m *Manager) bindWithRetries(ctx context.Context, access Access, sc ServerConfig, aggregator *Aggregator) (serverHandle, error) {
	description := fmt.Sprintf("starting %s api on %s", access, sc.ListenAddress)

	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxRetries; attempt++ {
		m.log.Debugf("%s (attempt #%d)", description, attempt)

		ln, err := net.Listen("tcp", sc.ListenAddress)
		if err == nil {
			m.log.Infof("started %s api on %s", access, ln.Addr())
			srv := &http.Server{
				Handler:           aggregator.Handler(access, sc, m.log),
				ReadHeaderTimeout: 5 * time.Second,
			}
			return serverHandle{
				access:   access,
				addr:     sc.ListenAddress,
				listener: ln,
				server:   srv,
			}, nil
		}

		lastErr = err
		m.log.Warnf("%s (attempt #%d) failed: %v", description, attempt, err)

		if attempt == m.cfg.MaxRetries {
			break
		}
		select {
		case <-time.After(m.cfg.RetryTimeout):
		case <-ctx.Done():
			return serverHandle{}, ctx.Err()
		}
	}

	return serverHandle{}, fmt.Errorf(
		"cannot complete %s after %d attempts: %w",
		description, m.cfg.MaxRetries, lastErr)
}

// supervise runs one listener and forwards exactly one terminal outcome to
// the completion channel of the generation that started it. The channel is
// buffered for the whole listener set, so the send never blocks even when
// the manager has already moved on to a newer generation.
func supervise(h serverHandle, done chan<- serverExit, log logger.Logger) {
	err := h.server.Serve(h.listener)
	if errors.Is(err, http.ErrServerClosed) {
		// Graceful stop requested through the handle; not an escalation.
		log.Debug("listener stopped",
			logger.String("access", h.access.String()),
			logger.String("addr", h.addr))
		err = nil
	}
	done <- serverExit{access: h.access, addr: h.addr, err: err}
}

// stopServers gracefully stops every listener of the current generation.
func (m *Manager) stopServers() {
	if len(m.servers) == 0 {
		return
	}
	m.log.Debug("servers stop requested")

	var wg sync.WaitGroup
	for _, handle := range m.servers {
		wg.Add(1)
		go func(h serverHandle) {
			defer wg.Done()
			h.stop(m.log)
		}(handle)
	}
	wg.Wait()
	m.servers = nil
}

package api

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/quorumlab/nodegate/internal/logger"
)

// freeAddr reserves a loopback address and releases it so the manager can
// bind it.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func pingBuilder(reply string) *Builder {
	builder := NewBuilder()
	AddEndpoint(builder.PublicScope(), "ping",
		func(ctx context.Context, q struct{}) (map[string]string, error) {
			return map[string]string{"reply": reply}, nil
		})
	return builder
}

func testManager(t *testing.T, servers map[Access]ServerConfig) *Manager {
	t.Helper()

	aggregator := NewAggregator()
	aggregator.Insert("node", pingBuilder("static"))

	cfg := NewManagerConfig(servers, aggregator).
		WithRetries(20*time.Millisecond, 3)
	cfg.DisableSignals = true

	m, err := NewManager(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	return m
}

func runManager(m *Manager, updates chan UpdateEndpoints) chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Run(context.Background(), updates)
	}()
	return errCh
}

// get performs one HTTP GET, returning the status code.
func get(url string) (int, string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), nil
}

// waitForStatus polls until the URL answers with the wanted status.
func waitForStatus(t *testing.T, url string, want int) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		status, body, err := get(url)
		if err == nil && status == want {
			return body
		}
		lastErr = fmt.Errorf("status %d, err %v", status, err)
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("GET %s never reached status %d: %v", url, want, lastErr)
	return ""
}

func waitForErr(t *testing.T, errCh chan error, timeout time.Duration) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(timeout):
		t.Fatal("manager did not return in time")
		return nil
	}
}

func TestManagerServesAfterFirstUpdate(t *testing.T) {
	addr := freeAddr(t)
	m := testManager(t, map[Access]ServerConfig{Public: NewServerConfig(addr)})

	updates := make(chan UpdateEndpoints, 1)
	errCh := runManager(m, updates)

	updates <- NewUpdateEndpoints(nil)
	body := waitForStatus(t, "http://"+addr+"/api/node/ping", http.StatusOK)
	if body != `{"reply":"static"}` {
		t.Errorf("ping body = %s, want static reply", body)
	}

	close(updates)
	if err := waitForErr(t, errCh, 3*time.Second); err != nil {
		t.Errorf("Run() after stream close = %v, want nil", err)
	}

	// every listener is released on shutdown
	if _, _, err := get("http://" + addr + "/api/node/ping"); err == nil {
		t.Error("listener still bound after shutdown")
	}
}

func TestManagerHotRestartSwapsEndpointSet(t *testing.T) {
	addr := freeAddr(t)
	m := testManager(t, map[Access]ServerConfig{Public: NewServerConfig(addr)})

	updates := make(chan UpdateEndpoints, 1)
	errCh := runManager(m, updates)

	updates <- NewUpdateEndpoints([]ServiceAPI{{Name: "alpha", API: pingBuilder("alpha")}})
	waitForStatus(t, "http://"+addr+"/api/alpha/ping", http.StatusOK)

	// the replacement set drops alpha and brings beta
	updates <- NewUpdateEndpoints([]ServiceAPI{{Name: "beta", API: pingBuilder("beta")}})
	waitForStatus(t, "http://"+addr+"/api/beta/ping", http.StatusOK)
	status, _, err := get("http://" + addr + "/api/alpha/ping")
	if err != nil {
		t.Fatalf("GET alpha after restart: %v", err)
	}
	if status != http.StatusNotFound {
		t.Errorf("alpha after restart status = %d, want 404", status)
	}

	// the static aggregator survives every generation
	waitForStatus(t, "http://"+addr+"/api/node/ping", http.StatusOK)

	// the planned stop of the drained generation must not surface as a crash
	select {
	case err := <-errCh:
		t.Fatalf("Run() returned %v during hot restart", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(updates)
	if err := waitForErr(t, errCh, 3*time.Second); err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
}

func TestManagerBothAccessLevels(t *testing.T) {
	publicAddr := freeAddr(t)
	privateAddr := freeAddr(t)
	m := testManager(t, map[Access]ServerConfig{
		Public:  NewServerConfig(publicAddr),
		Private: NewServerConfig(privateAddr),
	})

	updates := make(chan UpdateEndpoints, 1)
	errCh := runManager(m, updates)
	updates <- NewUpdateEndpoints(nil)

	waitForStatus(t, "http://"+publicAddr+"/api/node/ping", http.StatusOK)
	// ping is registered on the public scope only
	waitForStatus(t, "http://"+privateAddr+"/api/node/ping", http.StatusNotFound)

	close(updates)
	if err := waitForErr(t, errCh, 3*time.Second); err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
}

func TestManagerStartFailsAfterMaxRetries(t *testing.T) {
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer blocker.Close()

	okAddr := freeAddr(t)
	m := testManager(t, map[Access]ServerConfig{
		Public:  NewServerConfig(blocker.Addr().String()),
		Private: NewServerConfig(okAddr),
	})

	updates := make(chan UpdateEndpoints, 1)
	errCh := runManager(m, updates)
	updates <- NewUpdateEndpoints(nil)

	if err := waitForErr(t, errCh, 3*time.Second); err == nil {
		t.Fatal("Run() = nil, want bind failure after exhausted retries")
	}

	// all-or-nothing: the sibling listener must not stay bound
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, _, err := get("http://" + okAddr + "/api/node/ping"); err != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("sibling listener still bound after failed start")
}

func TestManagerRetriesThenSucceeds(t *testing.T) {
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := blocker.Addr().String()

	m := testManager(t, map[Access]ServerConfig{Public: NewServerConfig(addr)})
	// generous retry budget; the port frees up after the first attempts fail
	m.cfg.RetryTimeout = 25 * time.Millisecond
	m.cfg.MaxRetries = 20

	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = blocker.Close()
	}()

	updates := make(chan UpdateEndpoints, 1)
	errCh := runManager(m, updates)
	updates <- NewUpdateEndpoints(nil)

	waitForStatus(t, "http://"+addr+"/api/node/ping", http.StatusOK)

	close(updates)
	if err := waitForErr(t, errCh, 3*time.Second); err != nil {
		t.Errorf("Run() = %v, want nil after successful retry", err)
	}
}

func TestManagerContextCancelIsOrderlyShutdown(t *testing.T) {
	addr := freeAddr(t)
	m := testManager(t, map[Access]ServerConfig{Public: NewServerConfig(addr)})

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan UpdateEndpoints, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Run(ctx, updates)
	}()

	updates <- NewUpdateEndpoints(nil)
	waitForStatus(t, "http://"+addr+"/api/node/ping", http.StatusOK)

	cancel()
	if err := waitForErr(t, errCh, 3*time.Second); err != nil {
		t.Errorf("Run() after cancel = %v, want nil", err)
	}
}

func TestManagerConfigValidate(t *testing.T) {
	aggregator := NewAggregator()
	valid := map[Access]ServerConfig{Public: NewServerConfig(":0")}

	tests := []struct {
		name    string
		cfg     ManagerConfig
		wantErr bool
	}{
		{
			name: "valid",
			cfg:  NewManagerConfig(valid, aggregator),
		},
		{
			name:    "no servers",
			cfg:     NewManagerConfig(nil, aggregator),
			wantErr: true,
		},
		{
			name:    "missing listen address",
			cfg:     NewManagerConfig(map[Access]ServerConfig{Public: {}}, aggregator),
			wantErr: true,
		},
		{
			name:    "nil aggregator",
			cfg:     NewManagerConfig(valid, nil),
			wantErr: true,
		},
		{
			name:    "zero retries",
			cfg:     NewManagerConfig(valid, aggregator).WithRetries(time.Millisecond, 0),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestUpdateEndpointsPaths(t *testing.T) {
	update := NewUpdateEndpoints([]ServiceAPI{
		{Name: "alpha", API: NewBuilder()},
		{Name: "beta", API: NewBuilder()},
	})
	paths := update.UpdatedPaths()
	if len(paths) != 2 || paths[0] != "alpha" || paths[1] != "beta" {
		t.Errorf("UpdatedPaths() = %v, want [alpha beta]", paths)
	}
}

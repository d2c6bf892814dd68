package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quorumlab/nodegate/internal/api"
)

// Duration lets YAML configs use human-readable values like "500ms".
type Duration time.Duration

// UnmarshalYAML parses a scalar through time.ParseDuration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back as a scalar.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

type fileServer struct {
	ListenAddress   string           `yaml:"listen_address"`
	AllowOrigin     *api.AllowOrigin `yaml:"allow_origin,omitempty"`
	JSONPayloadSize int64            `yaml:"json_payload_size,omitempty"`
}

type fileConfig struct {
	Servers        map[string]fileServer `yaml:"servers"`
	RetryTimeout   Duration              `yaml:"retry_timeout,omitempty"`
	MaxRetries     int                   `yaml:"max_retries,omitempty"`
	DisableSignals bool                  `yaml:"disable_signals,omitempty"`
}

// applyFile overlays the server table and retry policy from a YAML file.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config yaml: %w", err)
	}
	if len(fc.Servers) == 0 {
		return fmt.Errorf("config file %s declares no servers", path)
	}

	servers := make(map[api.Access]api.ServerConfig, len(fc.Servers))
	for name, fs := range fc.Servers {
		var access api.Access
		switch name {
		case "public":
			access = api.Public
		case "private":
			access = api.Private
		default:
			return fmt.Errorf("unknown access level %q in config file", name)
		}
		if fs.ListenAddress == "" {
			return fmt.Errorf("%s server in config file has no listen_address", name)
		}
		if fs.AllowOrigin != nil && !fs.AllowOrigin.IsAny() && len(fs.AllowOrigin.Hosts()) == 0 {
			return fmt.Errorf("%s server in config file has an empty allow_origin whitelist", name)
		}
		servers[access] = api.ServerConfig{
			ListenAddress:   fs.ListenAddress,
			AllowOrigin:     fs.AllowOrigin,
			JSONPayloadSize: fs.JSONPayloadSize,
		}
	}
	c.Servers = servers

	if fc.RetryTimeout != 0 {
		c.RetryTimeout = time.Duration(fc.RetryTimeout)
	}
	if fc.MaxRetries != 0 {
		c.MaxRetries = fc.MaxRetries
	}
	if fc.DisableSignals {
		c.DisableSignals = true
	}
	return nil
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// AllowOrigin is a declarative CORS rule: either any origin is accepted, or
// only an explicit whitelist of hosts is. Construct values through
// AnyOrigin, OriginWhitelist or ParseAllowOrigin; the zero value is an empty
// whitelist and rejects every origin.
type AllowOrigin struct {
	any   bool
	hosts []string
}

// AnyOrigin disables origin restriction.
func AnyOrigin() AllowOrigin {
	return AllowOrigin{any: true}
}

// OriginWhitelist restricts cross-origin access to the given hosts.
func OriginWhitelist(hosts ...string) AllowOrigin {
	return AllowOrigin{hosts: hosts}
}

// IsAny reports whether the rule accepts any origin.
func (a AllowOrigin) IsAny() bool { return a.any }

// Hosts returns the whitelisted hosts; nil when the rule is "any".
func (a AllowOrigin) Hosts() []string {
	if a.any {
		return nil
	}
	return a.hosts
}

func (a AllowOrigin) String() string {
	if a.any {
		return "*"
	}
	return strings.Join(a.hosts, ", ")
}

// Equal reports whether two rules are identical, including host order.
func (a AllowOrigin) Equal(other AllowOrigin) bool {
	if a.any != other.any || len(a.hosts) != len(other.hosts) {
		return false
	}
	for i, h := range a.hosts {
		if other.hosts[i] != h {
			return false
		}
	}
	return true
}

// ParseAllowOrigin parses the textual configuration form: "*" means any
// origin, anything else is a comma-separated host whitelist. An empty
// whitelist is a configuration error.
func ParseAllowOrigin(s string) (AllowOrigin, error) {
	if s == "*" {
		return AnyOrigin(), nil
	}

	var hosts []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			hosts = append(hosts, trimmed)
		}
	}
	if len(hosts) == 0 {
		return AllowOrigin{}, errors.New("invalid allow-origin whitelist: no hosts")
	}
	return OriginWhitelist(hosts...), nil
}

// wireValue produces the duck-typed wire shape: "*" for any, a bare string
// for a single host, a list of strings otherwise.
func (a AllowOrigin) wireValue() interface{} {
	switch {
	case a.any:
		return "*"
	case len(a.hosts) == 1:
		return a.hosts[0]
	default:
		return a.hosts
	}
}

func allowOriginFromScalar(s string) AllowOrigin {
	if s == "*" {
		return AnyOrigin()
	}
	return OriginWhitelist(s)
}

// MarshalJSON implements the duck-typed wire shape.
func (a AllowOrigin) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.wireValue())
}

// UnmarshalJSON accepts both a bare string and a list of strings, regardless
// of which shape was last serialized.
func (a *AllowOrigin) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = allowOriginFromScalar(s)
		return nil
	}
	var hosts []string
	if err := json.Unmarshal(data, &hosts); err != nil {
		return fmt.Errorf("allow-origin: expected a host list or \"*\": %w", err)
	}
	*a = OriginWhitelist(hosts...)
	return nil
}

// MarshalYAML implements the duck-typed wire shape for YAML configs.
func (a AllowOrigin) MarshalYAML() (interface{}, error) {
	return a.wireValue(), nil
}

// UnmarshalYAML accepts both a bare scalar and a sequence of hosts.
func (a *AllowOrigin) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*a = allowOriginFromScalar(s)
		return nil
	case yaml.SequenceNode:
		var hosts []string
		if err := value.Decode(&hosts); err != nil {
			return err
		}
		*a = OriginWhitelist(hosts...)
		return nil
	default:
		return fmt.Errorf("allow-origin: expected a host list or \"*\", got yaml kind %d", value.Kind)
	}
}

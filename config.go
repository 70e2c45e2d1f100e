package clubauthz

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete engine configuration
type Config struct {
	Version                uint16                 `json:"version" yaml:"version"`
	Engine                 EngineConfig           `json:"engine" yaml:"engine"`
	Capabilities           map[Role][]Capability  `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	ImpersonationBlocklist []Capability           `json:"impersonation_blocklist,omitempty" yaml:"impersonation_blocklist,omitempty"`
	TicketConstraints      map[string]Constraints `json:"ticket_constraints,omitempty" yaml:"ticket_constraints,omitempty"`
	FallbackConstraints    *Constraints           `json:"fallback_constraints,omitempty" yaml:"fallback_constraints,omitempty"`
}

type EngineConfig struct {
	AuditBufferSize     int   `json:"audit_buffer_size" yaml:"audit_buffer_size"`
	BatchWorkerCount    int   `json:"batch_worker_count" yaml:"batch_worker_count"`
	DecisionCacheTTL    int64 `json:"decision_cache_ttl_ms" yaml:"decision_cache_ttl_ms"`
	RistrettoNumCounter int64 `json:"ristretto_num_counter" yaml:"ristretto_num_counter"`
	RistrettoMaxCost    int64 `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer     int64 `json:"ristretto_buffer" yaml:"ristretto_buffer"`
}

// ConfigLoader loads configuration from various formats
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile picks the decoder from the file extension
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return l.LoadJSON(data)
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	default:
		return nil, fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
	}
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate rejects unknown capabilities and tier codes. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error
	roles := make([]string, 0, len(c.Capabilities))
	for r := range c.Capabilities {
		roles = append(roles, string(r))
	}
	sort.Strings(roles)
	for _, r := range roles {
		if strings.TrimSpace(r) == "" {
			errs = append(errs, errors.New("capabilities: empty role name"))
		}
		for _, c2 := range c.Capabilities[Role(r)] {
			if !IsKnownCapability(c2) {
				errs = append(errs, fmt.Errorf("capabilities[%s]: unknown capability %q", r, c2))
			}
		}
	}
	for _, c2 := range c.ImpersonationBlocklist {
		if !IsKnownCapability(c2) {
			errs = append(errs, fmt.Errorf("impersonation_blocklist: unknown capability %q", c2))
		}
	}
	codes := make([]string, 0, len(c.TicketConstraints))
	for code := range c.TicketConstraints {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		errs = append(errs, validateStatuses("ticket_constraints["+code+"]", c.TicketConstraints[code].AllowedMemberStatuses)...)
	}
	if c.FallbackConstraints != nil {
		errs = append(errs, validateStatuses("fallback_constraints", c.FallbackConstraints.AllowedMemberStatuses)...)
	}
	if c.Engine.AuditBufferSize < 0 || c.Engine.BatchWorkerCount < 0 || c.Engine.DecisionCacheTTL < 0 {
		errs = append(errs, errors.New("engine: negative sizes are not allowed"))
	}
	return errors.Join(errs...)
}

func validateStatuses(field string, statuses []TierCode) []error {
	var errs []error
	for _, s := range statuses {
		if !IsKnownTier(ParseTierCode(string(s))) {
			errs = append(errs, fmt.Errorf("%s: unknown tier %q", field, s))
		}
	}
	return errs
}

// EngineOptions turns the config into engine options. Omitted sections keep
// the built-in defaults.
func (c *Config) EngineOptions() []EngineOption {
	var opts []EngineOption
	if len(c.Capabilities) > 0 {
		opts = append(opts, WithCapabilityTable(NewCapabilityTable(c.Capabilities)))
	}
	if len(c.ImpersonationBlocklist) > 0 {
		opts = append(opts, WithBlockedCapabilities(c.ImpersonationBlocklist...))
	}
	if len(c.TicketConstraints) > 0 || c.FallbackConstraints != nil {
		defaults := DefaultConstraints()
		for code, cons := range c.TicketConstraints {
			defaults.ByCode[strings.ToUpper(strings.TrimSpace(code))] = cons
		}
		if c.FallbackConstraints != nil {
			defaults.Fallback = *c.FallbackConstraints
		}
		opts = append(opts, WithConstraintProvider(defaults))
	}
	if c.Engine.AuditBufferSize > 0 {
		opts = append(opts, WithAuditBufferSize(c.Engine.AuditBufferSize))
	}
	if c.Engine.BatchWorkerCount > 0 {
		opts = append(opts, WithBatchWorkerCount(c.Engine.BatchWorkerCount))
	}
	if c.Engine.RistrettoNumCounter > 0 {
		ttl := time.Duration(c.Engine.DecisionCacheTTL) * time.Millisecond
		opts = append(opts, WithDecisionCache(c.Engine.RistrettoNumCounter, c.Engine.RistrettoMaxCost, c.Engine.RistrettoBuffer, ttl))
	}
	return opts
}

// NewEngineFromConfig validates cfg and builds an engine. Explicit opts are
// applied after the config-derived ones.
func NewEngineFromConfig(cfg *Config, audit AuditHook, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		return NewEngine(audit, opts...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return NewEngine(audit, append(cfg.EngineOptions(), opts...)...)
}

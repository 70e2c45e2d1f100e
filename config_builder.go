package clubauthz

// ConfigBuilder provides fluent API for building configurations
type ConfigBuilder struct {
	cfg *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		cfg: &Config{
			Version:           1,
			Capabilities:      make(map[Role][]Capability),
			TicketConstraints: make(map[string]Constraints),
			Engine: EngineConfig{
				AuditBufferSize:  1024,
				BatchWorkerCount: 4,
			},
		},
	}
}

func (b *ConfigBuilder) Version(v uint16) *ConfigBuilder {
	b.cfg.Version = v
	return b
}

// Grant adds capabilities to role. The first Grant replaces the whole
// built-in table, so list every role you need.
func (b *ConfigBuilder) Grant(role Role, caps ...Capability) *ConfigBuilder {
	b.cfg.Capabilities[role] = append(b.cfg.Capabilities[role], caps...)
	return b
}

// WithDefaultGrants seeds the table with the built-in grants
func (b *ConfigBuilder) WithDefaultGrants() *ConfigBuilder {
	for role, caps := range DefaultGrants {
		b.cfg.Capabilities[role] = append([]Capability(nil), caps...)
	}
	return b
}

func (b *ConfigBuilder) BlockWhileImpersonating(caps ...Capability) *ConfigBuilder {
	b.cfg.ImpersonationBlocklist = append(b.cfg.ImpersonationBlocklist, caps...)
	return b
}

func (b *ConfigBuilder) TicketConstraint(code string, c Constraints) *ConfigBuilder {
	b.cfg.TicketConstraints[code] = c
	return b
}

func (b *ConfigBuilder) Fallback(c Constraints) *ConfigBuilder {
	b.cfg.FallbackConstraints = &c
	return b
}

func (b *ConfigBuilder) EngineSettings(fn func(*EngineConfig)) *ConfigBuilder {
	fn(&b.cfg.Engine)
	return b
}

func (b *ConfigBuilder) Build() *Config {
	return b.cfg
}

func (b *ConfigBuilder) ToYAML() ([]byte, error) {
	return b.cfg.ToYAML()
}

func (b *ConfigBuilder) ToJSON() ([]byte, error) {
	return b.cfg.ToJSON()
}

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/rulelens/cache"
	"github.com/pithecene-io/rulelens/pipeline"
)

// DefaultFile is read from the working directory when --config is not given.
const DefaultFile = "rulelens.yaml"

// Cache backends.
const (
	CacheBackendResp  = "resp"
	CacheBackendRedis = "redis"
	CacheBackendLocal = "local"
	CacheBackendNone  = "none"
)

// Planner kinds.
const (
	PlannerMode  = "mode"
	PlannerModel = "model"
)

// Config is a rulelens.yaml file. Every value is optional; CLI flags
// override it.
type Config struct {
	LogLevel            string          `yaml:"log_level"`
	CollaboratorTimeout Duration        `yaml:"collaborator_timeout"`
	Cache               CacheConfig     `yaml:"cache"`
	LLM                 LLMConfig       `yaml:"llm"`
	Memory              MemoryConfig    `yaml:"memory"`
	Retrieval           RetrievalConfig `yaml:"retrieval"`
	Trace               TraceConfig     `yaml:"trace"`
	Adapter             AdapterConfig   `yaml:"adapter"`
	// Termination lists the steps whose short-circuit ends a run.
	Termination []string `yaml:"termination,omitempty"`
}

// CacheConfig configures the advisory cache store.
type CacheConfig struct {
	// Backend is resp (default), redis, local or none.
	Backend string `yaml:"backend"`
	// Addr is host:port for the resp backend.
	Addr string `yaml:"addr"`
	// URL is redis://... for the redis backend.
	URL       string   `yaml:"url"`
	Namespace string   `yaml:"namespace"`
	Timeout   Duration `yaml:"timeout"`
	// LocalSize caps entries of the local backend.
	LocalSize int       `yaml:"local_size"`
	TTL       TTLConfig `yaml:"ttl"`
}

// TTLConfig overrides per-kind cache expiry.
type TTLConfig struct {
	Parse   Duration `yaml:"parse"`
	Explain Duration `yaml:"explain"`
	Context Duration `yaml:"context"`
}

// LLMConfig configures the model behind the text collaborators.
type LLMConfig struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	ServerURL   string   `yaml:"server_url"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	// Planner is mode (static table, default) or model (agentic planning).
	Planner string `yaml:"planner"`
}

// MemoryConfig locates profile, mappings and the reflection log.
type MemoryConfig struct {
	Dir  string `yaml:"dir"`
	File string `yaml:"file"`
	// Disabled stops reflection findings from being stored.
	Disabled bool `yaml:"disabled"`
}

// RetrievalConfig configures the knowledge-base retriever.
type RetrievalConfig struct {
	KBDir       string `yaml:"kb_dir"`
	MaxSnippets int    `yaml:"max_snippets"`
	MinTokenLen int    `yaml:"min_token_len"`
}

// TraceConfig configures trace persistence.
type TraceConfig struct {
	// Enabled defaults to true.
	Enabled *bool      `yaml:"enabled,omitempty"`
	Dir     string     `yaml:"dir"`
	Lode    LodeConfig `yaml:"lode"`
}

// LodeConfig enables the Lode dataset sink when Path is set.
type LodeConfig struct {
	Backend     string `yaml:"backend"`
	Dataset     string `yaml:"dataset"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig configures run completion notifications.
type AdapterConfig struct {
	// Type is webhook or redis; empty disables notifications.
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration is a time.Duration read from strings like "10s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML writes the duration back in string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// TraceEnabled reports whether traces are persisted.
func (c *Config) TraceEnabled() bool {
	return c.Trace.Enabled == nil || *c.Trace.Enabled
}

// TTLs returns the cache TTL table with overrides applied.
func (c *Config) TTLs() cache.TTLs {
	ttls := cache.DefaultTTLs()
	for kind, d := range map[cache.Kind]Duration{
		cache.KindParse:   c.Cache.TTL.Parse,
		cache.KindExplain: c.Cache.TTL.Explain,
		cache.KindContext: c.Cache.TTL.Context,
	} {
		if d.Duration > 0 {
			ttls[kind] = d.Duration
		}
	}
	return ttls
}

// TerminationPolicy returns the configured policy, or nil for the default.
func (c *Config) TerminationPolicy() (pipeline.TerminationPolicy, error) {
	if len(c.Termination) == 0 {
		return nil, nil
	}
	return pipeline.NewTermination(c.Termination)
}

// Validate checks enumerated values and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	switch c.Cache.Backend {
	case "", CacheBackendResp, CacheBackendLocal, CacheBackendNone:
	case CacheBackendRedis:
		if c.Cache.URL == "" {
			errs = append(errs, errors.New("cache.url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q must be resp, redis, local or none", c.Cache.Backend))
	}
	if c.Cache.LocalSize < 0 {
		errs = append(errs, fmt.Errorf("cache.local_size must be >= 0, got %d", c.Cache.LocalSize))
	}
	for name, d := range map[string]Duration{
		"parse":   c.Cache.TTL.Parse,
		"explain": c.Cache.TTL.Explain,
		"context": c.Cache.TTL.Context,
	} {
		if d.Duration > 0 && d.Duration < time.Second {
			errs = append(errs, fmt.Errorf("cache.ttl.%s must be at least 1s, got %s", name, d.Duration))
		}
	}

	switch c.LLM.Provider {
	case "", "ollama", "mock":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q must be ollama or mock", c.LLM.Provider))
	}
	switch c.LLM.Planner {
	case "", PlannerMode, PlannerModel:
	default:
		errs = append(errs, fmt.Errorf("llm.planner %q must be mode or model", c.LLM.Planner))
	}
	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("llm.temperature must be within [0, 2], got %g", *t))
	}

	switch c.Trace.Lode.Backend {
	case "", "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("trace.lode.backend %q must be fs or s3", c.Trace.Lode.Backend))
	}

	switch c.Adapter.Type {
	case "":
	case "webhook", "redis":
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter.url is required for the %s adapter", c.Adapter.Type))
		}
		if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
			errs = append(errs, fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter.type %q must be webhook or redis", c.Adapter.Type))
	}

	if _, err := c.TerminationPolicy(); err != nil {
		errs = append(errs, fmt.Errorf("termination: %w", err))
	}
	return errors.Join(errs...)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/rulelens/adapter"
	"github.com/pithecene-io/rulelens/adapter/redis"
	"github.com/pithecene-io/rulelens/adapter/webhook"
	"github.com/pithecene-io/rulelens/cache"
	"github.com/pithecene-io/rulelens/cli/config"
	"github.com/pithecene-io/rulelens/llm"
	"github.com/pithecene-io/rulelens/lode"
	"github.com/pithecene-io/rulelens/log"
	"github.com/pithecene-io/rulelens/memory"
	"github.com/pithecene-io/rulelens/metrics"
	"github.com/pithecene-io/rulelens/pipeline"
	"github.com/pithecene-io/rulelens/retrieval"
	"github.com/pithecene-io/rulelens/trace"
)

// defaultLogLevel keeps CLI output readable; config or --log-level raise it.
const defaultLogLevel = "warn"

// loadConfig resolves the config file and applies flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Resolve(c.String("config"))
	if err != nil {
		return nil, err
	}
	applyOverrides(c, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyOverrides copies explicitly set flags over config values.
func applyOverrides(c *cli.Context, cfg *config.Config) {
	str := func(flag string, dst *string) {
		if c.IsSet(flag) {
			*dst = c.String(flag)
		}
	}
	str("log-level", &cfg.LogLevel)
	str("cache-backend", &cfg.Cache.Backend)
	str("cache-addr", &cfg.Cache.Addr)
	str("cache-url", &cfg.Cache.URL)
	str("provider", &cfg.LLM.Provider)
	str("model", &cfg.LLM.Model)
	str("planner", &cfg.LLM.Planner)
	str("kb-dir", &cfg.Retrieval.KBDir)
	str("memory-dir", &cfg.Memory.Dir)
	str("trace-dir", &cfg.Trace.Dir)
	str("lode-path", &cfg.Trace.Lode.Path)
	str("lode-backend", &cfg.Trace.Lode.Backend)

	if c.IsSet("timeout") {
		cfg.CollaboratorTimeout = config.Duration{Duration: c.Duration("timeout")}
	}
	if c.Bool("no-trace") {
		disabled := false
		cfg.Trace.Enabled = &disabled
	}
}

// environment is everything a run needs, built once per command and shared
// by every run of a batch.
type environment struct {
	logger       *log.Logger
	metrics      *metrics.Collector
	orchestrator *pipeline.Orchestrator
	store        cache.Store
	closers      []io.Closer
}

// newEnvironment builds the orchestrator and its collaborators from cfg.
func newEnvironment(ctx context.Context, cfg *config.Config) (*environment, error) {
	level := cfg.LogLevel
	if level == "" {
		level = defaultLogLevel
	}
	env := &environment{logger: log.NewLoggerAtLevel(nil, level)}

	store, cacheBackend, err := buildStore(cfg.Cache)
	if err != nil {
		return nil, err
	}
	env.store = store
	if store != nil {
		env.closers = append(env.closers, store)
	}

	provider := cfg.LLM.Provider
	if provider == "" {
		provider = llm.ProviderOllama
	}
	traceBackend := "none"
	if cfg.TraceEnabled() {
		traceBackend = "file"
		if cfg.Trace.Lode.Path != "" {
			traceBackend = "file+lode"
		}
	}
	env.metrics = metrics.NewCollector(cacheBackend, provider, traceBackend)

	pcfg, err := buildPipelineConfig(ctx, cfg, env)
	if err != nil {
		_ = env.Close()
		return nil, err
	}
	orchestrator, err := pipeline.New(pcfg)
	if err != nil {
		_ = env.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	env.orchestrator = orchestrator
	return env, nil
}

func buildPipelineConfig(ctx context.Context, cfg *config.Config, env *environment) (pipeline.Config, error) {
	model, err := llm.NewModel(llm.Config{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		ServerURL: cfg.LLM.ServerURL,
	})
	if err != nil {
		return pipeline.Config{}, err
	}

	var agentOpts []llm.Option
	if t := cfg.LLM.Temperature; t != nil {
		agentOpts = append(agentOpts, llm.WithTemperature(*t))
	}

	pcfg := pipeline.Config{
		Retriever: retrieval.Keyword{
			MaxSnippets: cfg.Retrieval.MaxSnippets,
			MinTokenLen: cfg.Retrieval.MinTokenLen,
		},
		KBDir: cfg.Retrieval.KBDir,
		Cache: cache.NewAdvisory(cache.AdvisoryConfig{
			Store:     env.store,
			Namespace: cfg.Cache.Namespace,
			TTLs:      cfg.TTLs(),
			Logger:    env.logger,
			Metrics:   env.metrics,
		}),
		CollaboratorTimeout: cfg.CollaboratorTimeout.Duration,
		Logger:              env.logger,
		Metrics:             env.metrics,
	}

	if !cfg.Memory.Disabled {
		dir := cfg.Memory.Dir
		if dir == "" {
			dir = memory.DefaultDir
		}
		file := cfg.Memory.File
		if file == "" {
			file = memory.DefaultMemoryFile
		}
		mem := memory.Load(dir)
		agentOpts = append(agentOpts, llm.WithProfile(mem.Profile))
		pcfg.MemoryContext = memory.FormatContext(mem)
		pcfg.Memory = memory.NewFileStore(filepath.Join(dir, file))
	}
	pcfg = pcfg.WithModel(llm.NewAgent(model, agentOpts...))

	if cfg.LLM.Planner == config.PlannerModel {
		pcfg.Planner = llm.NewPlanner(model)
	}

	termination, err := cfg.TerminationPolicy()
	if err != nil {
		return pipeline.Config{}, err
	}
	pcfg.Termination = termination

	sink, err := buildSink(ctx, cfg, env)
	if err != nil {
		return pipeline.Config{}, err
	}
	pcfg.Sink = sink
	return pcfg, nil
}

// buildStore returns the cache backend and its metrics label. The none
// backend returns a nil Store, which disables caching.
func buildStore(cfg config.CacheConfig) (cache.Store, string, error) {
	switch cfg.Backend {
	case config.CacheBackendNone:
		return nil, config.CacheBackendNone, nil
	case config.CacheBackendLocal:
		size := cfg.LocalSize
		if size == 0 {
			size = cache.DefaultLocalSize
		}
		store, err := cache.NewLocal(size, time.Now)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create local cache: %w", err)
		}
		return store, config.CacheBackendLocal, nil
	case config.CacheBackendRedis:
		store, err := cache.NewPooled(cfg.URL, cfg.Timeout.Duration)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create redis cache: %w", err)
		}
		return store, config.CacheBackendRedis, nil
	default:
		return cache.NewClient(cache.ClientConfig{
			Addr:    cfg.Addr,
			Timeout: cfg.Timeout.Duration,
		}), config.CacheBackendResp, nil
	}
}

// buildSink assembles trace persistence: trace files, then the Lode
// dataset, then the completion notification.
func buildSink(ctx context.Context, cfg *config.Config, env *environment) (trace.Sink, error) {
	var (
		sinks    trace.MultiSink
		location func(runID string) string
	)

	if cfg.TraceEnabled() {
		dir := cfg.Trace.Dir
		if dir == "" {
			dir = trace.DefaultDir
		}
		files := trace.NewFileSink(dir)
		sinks = append(sinks, files)
		location = files.Path

		if cfg.Trace.Lode.Path != "" {
			ls, err := lode.OpenTraceSink(ctx, lodeOptions(cfg.Trace.Lode))
			if err != nil {
				return nil, fmt.Errorf("failed to open trace dataset: %w", err)
			}
			sinks = append(sinks, ls)
		}
	}

	a, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return nil, err
	}
	if a != nil {
		env.closers = append(env.closers, a)
		sinks = append(sinks, adapter.NewSink(a, location, env.logger))
	}

	if len(sinks) == 0 {
		return trace.NopSink{}, nil
	}
	return sinks, nil
}

// buildAdapter returns the configured notification adapter, or nil.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		retries := webhook.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	case "redis":
		retries := redis.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		return redis.New(redis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Type)
	}
}

func lodeOptions(cfg config.LodeConfig) lode.Options {
	return lode.Options{
		Backend:      cfg.Backend,
		Dataset:      cfg.Dataset,
		Path:         cfg.Path,
		Region:       cfg.Region,
		Endpoint:     cfg.Endpoint,
		UsePathStyle: cfg.S3PathStyle,
	}
}

// Close releases the cache store and the notification adapter.
func (e *environment) Close() error {
	var errs []error
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

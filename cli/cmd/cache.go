package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/rulelens/cache"
	"github.com/pithecene-io/rulelens/cli/config"
	"github.com/pithecene-io/rulelens/cli/render"
	"github.com/pithecene-io/rulelens/log"
)

// CacheCommand returns the cache command with subcommands.
func CacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Look up cache entries for a rule file",
		Subcommands: []*cli.Command{
			cacheKeyCommand(),
			cacheGetCommand(),
		},
	}
}

func cacheFlags() []cli.Flag {
	return append(ReadOnlyFlags(),
		ConfigFlag,
		&cli.StringFlag{
			Name:  "cache-backend",
			Usage: "Cache backend: resp, redis, local, none",
		},
		&cli.StringFlag{
			Name:  "cache-addr",
			Usage: "host:port of the RESP cache store",
		},
		&cli.StringFlag{
			Name:  "cache-url",
			Usage: "redis:// URL for the redis cache backend",
		},
	)
}

// CacheKeyResponse identifies the cache entry of a rule.
type CacheKeyResponse struct {
	Kind cache.Kind `json:"kind" yaml:"kind"`
	Hash string     `json:"hash" yaml:"hash"`
	Key  string     `json:"key" yaml:"key"`
}

// CacheGetResponse is a cache lookup result.
type CacheGetResponse struct {
	Kind  cache.Kind `json:"kind" yaml:"kind"`
	Key   string     `json:"key" yaml:"key"`
	Found bool       `json:"found" yaml:"found"`
	Value any        `json:"value,omitempty" yaml:"value,omitempty"`
}

func cacheKeyCommand() *cli.Command {
	return &cli.Command{
		Name:      "key",
		Usage:     "Print the cache key of a rule file",
		ArgsUsage: "<parse|explain|context> <rule-file>",
		Flags:     cacheFlags(),
		Action:    cacheKeyAction,
	}
}

func cacheKeyAction(c *cli.Context) error {
	kind, raw, err := cacheArgs(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for cache commands", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	adv := cache.NewAdvisory(cache.AdvisoryConfig{Namespace: cfg.Cache.Namespace})
	hash := cache.Hash(raw)
	return r.Render(CacheKeyResponse{Kind: kind, Hash: hash, Key: adv.Key(kind, hash)})
}

func cacheGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Fetch the cached entry of a rule file",
		ArgsUsage: "<parse|explain|context> <rule-file>",
		Flags:     cacheFlags(),
		Action:    cacheGetAction,
	}
}

func cacheGetAction(c *cli.Context) error {
	kind, raw, err := cacheArgs(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for cache commands", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	if cfg.Cache.Backend == config.CacheBackendNone || cfg.Cache.Backend == config.CacheBackendLocal {
		return cli.Exit(fmt.Sprintf("cache get needs a shared store; backend %q keeps nothing between processes", cfg.Cache.Backend), exitInvalidInput)
	}

	store, _, err := buildStore(cfg.Cache)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	defer func() { _ = store.Close() }()

	logger := log.NewLoggerAtLevel(nil, defaultLogLevel)
	adv := cache.NewAdvisory(cache.AdvisoryConfig{
		Store:     store,
		Namespace: cfg.Cache.Namespace,
		Logger:    logger,
	})

	hash := cache.Hash(raw)
	resp := CacheGetResponse{Kind: kind, Key: adv.Key(kind, hash)}
	if kind == cache.KindParse {
		if ex, ok := adv.GetParse(c.Context, hash); ok {
			resp.Found, resp.Value = true, ex
		}
	} else if text, ok := adv.GetText(c.Context, kind, hash); ok {
		resp.Found, resp.Value = true, text
	}
	return r.Render(resp)
}

// cacheArgs parses "<kind> <file>".
func cacheArgs(c *cli.Context) (cache.Kind, string, error) {
	if c.NArg() != 2 {
		return "", "", fmt.Errorf("usage: %s <parse|explain|context> <rule-file>", c.Command.FullName())
	}
	kind := cache.Kind(c.Args().Get(0))
	switch kind {
	case cache.KindParse, cache.KindExplain, cache.KindContext:
	default:
		return "", "", fmt.Errorf("unknown cache kind %q (want parse, explain or context)", kind)
	}
	inputs, err := readInputs([]string{c.Args().Get(1)}, c.App.Reader)
	if err != nil {
		return "", "", err
	}
	return kind, inputs[0], nil
}

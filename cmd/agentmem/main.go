// Command agentmem inspects and drives agent memories from the shell.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oceanbase/agentmem-go/pkg/core"
	"github.com/oceanbase/agentmem-go/pkg/intelligence"
	"github.com/oceanbase/agentmem-go/pkg/learning"
	"github.com/oceanbase/agentmem-go/pkg/twin"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli holds what every subcommand shares.
type cli struct {
	v      *viper.Viper
	out    io.Writer
	logger zerolog.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out, logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "agentmem",
		Short:         "Tiered memory and style learning for persona agents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(errOut, c.v.GetString("log-level"), c.v.GetString("log-format"))
			if err != nil {
				return err
			}
			c.logger = logger
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (.yaml, .yml or .json); defaults to environment")
	flags.String("env-file", "", "explicit .env file to load")
	flags.String("durable", "", "durable tier provider override (sqlite, postgres, oceanbase, mysql, redis, none)")
	flags.String("registry", "", "persona registry YAML file")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")

	for _, name := range []string{"config", "env-file", "durable", "registry", "log-level", "log-format"} {
		if err := c.v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	for key, env := range map[string]string{
		"config":     "AGENTMEM_CONFIG",
		"durable":    "DURABLE_PROVIDER",
		"registry":   "AGENTMEM_REGISTRY",
		"log-level":  "LOG_LEVEL",
		"log-format": "LOG_FORMAT",
	} {
		if err := c.v.BindEnv(key, env); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		c.analyzeCmd(),
		c.learnCmd(),
		c.promptCmd(),
		c.searchCmd(),
		c.pruneCmd(),
		c.personalityCmd(),
		c.insightsCmd(),
		c.agentsCmd(),
		c.chatCmd(),
	)
	return root
}

func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q", level)
	}
	var logger zerolog.Logger
	switch format {
	case "json":
		logger = zerolog.New(w)
	case "console", "":
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", format)
	}
	return logger.Level(lvl).With().Timestamp().Logger(), nil
}

// loadConfig resolves the config file or the environment, then applies flag
// overrides.
func (c *cli) loadConfig() (*core.Config, error) {
	var (
		cfg *core.Config
		err error
	)
	path := c.v.GetString("config")
	switch strings.ToLower(filepath.Ext(path)) {
	case "":
		if envFile := c.v.GetString("env-file"); envFile != "" {
			cfg, err = core.LoadConfigFromEnvFile(envFile)
		} else {
			cfg, err = core.LoadConfigFromEnv()
		}
	case ".yaml", ".yml":
		cfg, err = core.LoadConfigFromYAML(path)
	case ".json":
		cfg, err = core.LoadConfigFromJSON(path)
	default:
		return nil, fmt.Errorf("unsupported config file %q", path)
	}
	if err != nil {
		return nil, err
	}

	if provider := c.v.GetString("durable"); provider != "" && provider != cfg.Durable.Provider {
		cfg.Durable.Provider = provider
		if provider == "sqlite" && cfg.Durable.Config["db_path"] == nil {
			cfg.Durable.Config = map[string]interface{}{"db_path": "./agentmem.db"}
		}
	}
	return cfg, nil
}

// runtime is the wired object graph behind a command.
type runtime struct {
	cfg    *core.Config
	memory *core.Client
	engine *learning.Engine
}

func (c *cli) open() (*runtime, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}

	memory, err := core.NewClientFromConfig(cfg,
		core.WithLogger(c.logger.With().Str("component", "memory_store").Logger()))
	if err != nil {
		return nil, err
	}

	analyzer, err := c.analyzer(cfg)
	if err != nil {
		_ = memory.Close()
		return nil, err
	}
	engine, err := learning.NewEngine(memory,
		learning.WithAnalyzer(analyzer),
		learning.WithLogger(c.logger.With().Str("component", "learning_engine").Logger()),
	)
	if err != nil {
		_ = memory.Close()
		return nil, err
	}
	return &runtime{cfg: cfg, memory: memory, engine: engine}, nil
}

func (c *cli) analyzer(cfg *core.Config) (*intelligence.Analyzer, error) {
	if cfg == nil || cfg.VocabularyPath == "" {
		return intelligence.NewDefaultAnalyzer(), nil
	}
	vocab, err := intelligence.LoadVocabulary(cfg.VocabularyPath)
	if err != nil {
		return nil, err
	}
	return intelligence.NewAnalyzer(vocab)
}

func (r *runtime) Close() {
	r.engine.Close()
	_ = r.memory.Close()
}

func (c *cli) registry() (*twin.Registry, error) {
	if path := c.v.GetString("registry"); path != "" {
		return twin.LoadRegistry(path)
	}
	return twin.DefaultRegistry(), nil
}

// service wires a twin service; the model is optional unless requireLLM.
func (c *cli) service(rt *runtime, requireLLM bool) (*twin.Service, error) {
	registry, err := c.registry()
	if err != nil {
		return nil, err
	}
	provider, err := core.NewLLM(rt.cfg.LLM)
	if err != nil {
		if requireLLM {
			return nil, err
		}
		c.logger.Debug().Err(err).Msg("language model unavailable")
		provider = nil
	}
	return twin.NewService(registry, rt.engine, rt.memory, provider,
		twin.WithLogger(c.logger.With().Str("component", "twin").Logger()))
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/collabgen/internal/config"
	"github.com/harrison/collabgen/internal/display"
	"github.com/harrison/collabgen/internal/llm"
	"github.com/harrison/collabgen/internal/logger"
	"github.com/harrison/collabgen/internal/pipeline"
	"github.com/harrison/collabgen/internal/resilience"
	"github.com/harrison/collabgen/internal/stage"
	"github.com/harrison/collabgen/internal/storage"
)

// newGenerator builds the generation service client. Tests replace it.
var newGenerator = func(cfg *config.Config) llm.Generator {
	return llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.APIKey(),
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
}

// loadConfig reads the config file and overlays persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	configPath, _ := flags.GetString("config")
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	var o config.Overrides
	stringFlag := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}
	o.LogLevel = stringFlag("log-level")
	o.LogDir = stringFlag("log-dir")
	o.Model = stringFlag("model")
	o.StorageDriver = stringFlag("storage-driver")
	o.StoragePath = stringFlag("storage-path")
	if flags.Lookup("max-concurrency") != nil && flags.Changed("max-concurrency") {
		n, _ := flags.GetInt("max-concurrency")
		o.MaxConcurrency = &n
	}
	cfg.MergeWithFlags(o)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app holds the components one command invocation needs.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	fileLog  *logger.FileLogger
	executor *resilience.Executor
	store    storage.Store
	orch     *pipeline.Orchestrator
}

type appOptions struct {
	// generation wires the executor and orchestrator
	generation bool
	// storage opens the configured report store
	storage  bool
	progress *pipeline.ProgressReporter
}

func newApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	console := logger.NewConsoleLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	a.log = console
	if cfg.LogDir != "" && opts.generation {
		fl, err := logger.NewFileLogger(cfg.LogDir, cfg.LogLevel)
		if err != nil {
			console.LogWarn(fmt.Sprintf("file logging disabled: %v", err))
		} else {
			a.fileLog = fl
			a.log = logger.Multi{console, fl}
		}
	}

	if opts.storage {
		store, err := openStore(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = store
	}

	if opts.generation {
		if cfg.APIKey() == "" {
			display.WarnMissingAPIKey(cfg.LLM.APIKeyEnv).Display(cmd.ErrOrStderr())
		}
		a.executor = newExecutor(cfg, a.log)
		runner := stage.NewRunner(a.executor, stage.RunnerConfig{
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxOutputTokens,
		}, a.log)
		a.orch = pipeline.New(runner, pipeline.Options{
			Timeouts: pipeline.Timeouts{
				Research:  cfg.Timeouts.Research,
				Product:   cfg.Timeouts.Product,
				Marketing: cfg.Timeouts.Marketing,
				Quality:   cfg.Timeouts.Quality,
			},
			RunTimeout: cfg.Timeouts.Pipeline,
			Store:      a.store,
			Logger:     a.log,
			Progress:   opts.progress,
		})
	}

	return a, nil
}

func newExecutor(cfg *config.Config, log logger.Logger) *resilience.Executor {
	// Validate has already rejected unknown policies.
	policy, _ := resilience.ParseRecoveryPolicy(cfg.CircuitBreaker.Recovery)
	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		Threshold:       cfg.CircuitBreaker.FailureThreshold,
		Recovery:        policy,
		RecoveryTimeout: cfg.CircuitBreaker.RecoveryTimeout,
	})
	return resilience.NewExecutor(newGenerator(cfg), breaker, resilience.Config{
		CallTimeout: cfg.LLM.RequestTimeout,
		Retry: resilience.RetryPolicy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
		},
	}, log)
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Driver == config.DriverFile {
		s, err := storage.NewFileStore(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the store and the run log.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.LogWarn(fmt.Sprintf("failed to close store: %v", err))
		}
	}
	if a.fileLog != nil {
		a.fileLog.Close()
	}
}

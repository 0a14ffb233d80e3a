package container

import (
	"fmt"

	"goprofile/adapters/memory"
	"goprofile/adapters/sources"
	"goprofile/app"
	"goprofile/internal"
	"goprofile/internal/config"
	"goprofile/internal/executor"
	"goprofile/internal/orchestrator"
	"goprofile/ports"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	Memory   ports.MemoryMonitor
	Progress ports.ProgressObserver
	Pool     *executor.Pool
	Guard    *executor.Guard

	// Analysis
	Engine        *orchestrator.Engine
	SourceOptions sources.Options
	Analysis      *app.AnalysisService
}

// Option adjusts the container before its components are built
type Option func(*Container)

// WithSourceOptions overrides how files are opened
func WithSourceOptions(opts sources.Options) Option {
	return func(c *Container) { c.SourceOptions = opts }
}

// WithMemoryMonitor replaces the runtime memory monitor
func WithMemoryMonitor(m ports.MemoryMonitor) Option {
	return func(c *Container) { c.Memory = m }
}

// WithProgressObserver subscribes an observer to every analysis run
func WithProgressObserver(p ports.ProgressObserver) Option {
	return func(c *Container) { c.Progress = p }
}

// WithLogger replaces the logger derived from the configuration
func WithLogger(l *internal.Logger) Option {
	return func(c *Container) { c.Logger = l }
}

// New creates a new dependency injection container
func New(cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{
		Config:        cfg,
		Logger:        internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level)),
		SourceOptions: sources.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Memory == nil {
		c.Memory = memory.NewRuntimeMonitor(cfg.Memory.SoftLimitMB)
	}
	c.SourceOptions.Logger = c.Logger

	engine, err := orchestrator.NewEngine(orchestrator.ConfigFrom(cfg.Analysis), orchestrator.EngineDeps{
		Memory:   c.Memory,
		Progress: c.Progress,
		Logger:   c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis engine: %w", err)
	}
	c.Engine = engine

	c.Pool = executor.NewPool(cfg.Analysis.FileWorkers, c.Logger)
	c.Guard = executor.NewGuard(executor.DefaultGuardConfig(), c.Logger)
	c.Analysis = app.NewAnalysisService(c.Engine, c.Pool, c.Guard, c.openSource, c.Logger)

	c.Logger.Debug("Container initialized (file workers %d, memory limit %d MB)", cfg.Analysis.FileWorkers, cfg.Memory.SoftLimitMB)
	return c, nil
}

func (c *Container) openSource(path string) (ports.ClosableRowSource, error) {
	return sources.Open(path, c.SourceOptions)
}

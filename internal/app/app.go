package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/scengridgo/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	settings *Settings
	registry *registry.Registry
}

// NewApp is the constructor for the main application. It resolves the
// settings file into the config, builds an isolated logger, and registers
// the action modules (the compiled-in set when none are passed).
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	settings, err := LoadSettings(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	cfg.applySettings(settings)

	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	reg.Install(modules...)
	logger.Debug("All action modules registered.", "count", len(modules), "actions", reg.ActionTypes())

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		settings: settings,
		registry: reg,
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"cratesync/internal/config"
	"cratesync/internal/daemonrun"
	"cratesync/internal/logging"
	"cratesync/internal/reconcile"
	"cratesync/internal/store"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) resolvedLogLevel(cfg *config.Config) string {
	if c.logLevelFlag != nil {
		if level := strings.TrimSpace(*c.logLevelFlag); level != "" {
			return level
		}
	}
	if cfg == nil {
		return "info"
	}
	return cfg.Logging.Level
}

// ensureLogger builds the one-shot command logger: console output on stderr
// so command output on stdout stays clean, plus the rotated log file.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logPath := cfg.LogFilePath()
		logger, err := logging.New(logging.Options{
			Level:            c.resolvedLogLevel(cfg),
			Format:           cfg.Logging.Format,
			OutputPaths:      []string{"stderr", logPath},
			ErrorOutputPaths: []string{"stderr", logPath},
			Rotation: logging.Rotation{
				MaxSizeMB:  cfg.Logging.MaxSizeMB,
				MaxBackups: cfg.Logging.MaxBackups,
				MaxAgeDays: cfg.Logging.MaxAgeDays,
			},
		})
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// withRuntime opens the full runtime, including the Tidal client.
func (c *commandContext) withRuntime(fn func(*config.Config, *daemonrun.Runtime) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	rt, err := daemonrun.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(cfg, rt)
}

// withStore opens only the mapping store.
func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	return fn(cfg, st)
}

// withLocalEngine builds an engine with no remote collaborators, for passes
// that only touch the store and the filesystem.
func (c *commandContext) withLocalEngine(fn func(*config.Config, *reconcile.Engine) error) error {
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	return c.withStore(func(cfg *config.Config, st *store.Store) error {
		return fn(cfg, reconcile.New(cfg, st, nil, nil, reconcile.WithLogger(logger)))
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

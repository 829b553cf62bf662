// Package servecmder provides the serve command running the memory API.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/branchmem/api"
	"github.com/papercomputeco/branchmem/cmd/branchmem/bootstrap"
	"github.com/papercomputeco/branchmem/pkg/config"
)

type serveCommander struct {
	configDir string

	listen      string
	storage     string
	sqlitePath  string
	postgresDSN string
	scheme      string
	eventStream string
	brokers     string
	topic       string
	jsonLog     bool
	logFile     string
	noMCP       bool
}

var serveFlags = []string{
	config.FlagListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagScheme,
	config.FlagEventStream,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagDebug,
	config.FlagJSONLog,
	config.FlagLogFile,
}

const serveLongDesc string = `Run the branchmem API server.

The server exposes the memory HTTP API and an MCP endpoint at /mcp.
Configuration is read from flags, BRANCHMEM_ environment variables and
config.toml in the .branchmem/ directory, in that order of precedence.

Edits to config.toml are picked up while running: log.debug and
memory.enabled take effect without a restart.`

const serveShortDesc string = "Run the branchmem API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, cfg, err := bootstrap.LoadConfig(cmd, cmder.configDir, serveFlags...)
			if err != nil {
				return err
			}

			return cmder.run(cmd.Context(), v, cfg)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagScheme, &cmder.scheme)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventStream, &cmder.eventStream)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.brokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.topic)
	config.AddBoolFlag(cmd, config.Flags, config.FlagJSONLog, &cmder.jsonLog)
	config.AddStringFlag(cmd, config.Flags, config.FlagLogFile, &cmder.logFile)
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Do not mount the MCP endpoint")

	return cmd
}

func (c *serveCommander) run(ctx context.Context, v *viper.Viper, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := bootstrap.Open(ctx, cfg, c.configDir)
	if err != nil {
		return err
	}
	defer rt.Close()

	c.watchConfig(v, rt)

	server, err := api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
		DisableMCP: c.noMCP,
	}, rt.Service, rt.Logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	rt.Logger.Info("conversation memory",
		"enabled", rt.Service.Enabled(),
		"scheme", rt.Service.Scheme(),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		rt.Logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
		rt.Logger.Info("context done, shutting down")
	}

	return server.Shutdown()
}

// watchConfig applies runtime-safe settings when config.toml changes.
// Storage, listen address and event stream changes need a restart.
func (c *serveCommander) watchConfig(v *viper.Viper, rt *bootstrap.Runtime) {
	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		next := config.FromViper(v)
		applyRuntimeConfig(rt, next)
		rt.Logger.Info("config reloaded",
			"file", e.Name,
			"debug", next.Log.Debug,
			"memory_enabled", next.Memory.Enabled,
		)
	})
	v.WatchConfig()
}

func applyRuntimeConfig(rt *bootstrap.Runtime, cfg *config.Config) {
	if cfg.Log.Debug {
		rt.Level.Set(slog.LevelDebug)
	} else {
		rt.Level.Set(slog.LevelInfo)
	}
	rt.Service.SetEnabled(cfg.Memory.Enabled)
}

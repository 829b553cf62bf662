package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/branchmem/pkg/config"
	"github.com/papercomputeco/branchmem/pkg/convmem"
	"github.com/papercomputeco/branchmem/pkg/dotdir"
	"github.com/papercomputeco/branchmem/pkg/eventstream"
	"github.com/papercomputeco/branchmem/pkg/storage"
)

// LoadConfig resolves the config for cmd: defaults, config.toml, BRANCHMEM_
// environment variables and the given registered flags, in increasing
// precedence.
func LoadConfig(cmd *cobra.Command, configDir string, flagKeys ...string) (*viper.Viper, *config.Config, error) {
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, nil, err
	}

	config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)

	return v, config.FromViper(v), nil
}

// Runtime holds the components a command needs to serve or inspect memory.
type Runtime struct {
	Config    *config.Config
	Level     *slog.LevelVar
	Logger    *slog.Logger
	Driver    storage.Driver
	Publisher eventstream.Publisher
	Service   *convmem.Service

	logFile *os.File
}

// Open builds a Runtime from cfg. Close releases what Open acquired.
func Open(ctx context.Context, cfg *config.Config, configDir string) (*Runtime, error) {
	rt := &Runtime{
		Config: cfg,
		Level:  new(slog.LevelVar),
	}
	var err error
	rt.Logger, rt.logFile, err = NewLogger(cfg, rt.Level)
	if err != nil {
		return nil, err
	}

	rt.Driver, err = OpenDriver(ctx, cfg, configDir, rt.Logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.Publisher, err = NewPublisher(cfg, rt.Logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.Service, err = NewService(cfg, rt.Driver, rt.Publisher, rt.Logger)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("creating memory service: %w", err)
	}

	return rt, nil
}

// Close flushes the publisher, closes the storage driver and the log file.
func (r *Runtime) Close() error {
	var errs []error
	if r.Publisher != nil {
		errs = append(errs, r.Publisher.Close())
	}
	if r.Driver != nil {
		errs = append(errs, r.Driver.Close())
	}
	if r.logFile != nil {
		errs = append(errs, r.logFile.Close())
	}
	return errors.Join(errs...)
}

// ResolveHead returns head when set, otherwise the head pinned for the
// session by "branchmem checkout", otherwise "" (the latest message).
func ResolveHead(head, sessionID, configDir string) (string, error) {
	if head != "" {
		return head, nil
	}

	state, err := dotdir.NewManager().LoadCheckoutState(configDir)
	if err != nil {
		return "", fmt.Errorf("loading checkout state: %w", err)
	}

	return state.Head(sessionID), nil
}

// Package configcmder provides the config command for managing persistent
// branchmem configuration stored in the .branchmem/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/branchmem/pkg/cliui"
	"github.com/papercomputeco/branchmem/pkg/config"
)

const configLongDesc string = `Manage persistent branchmem configuration.

Configuration is stored as config.toml in the .branchmem/ directory and
provides default values for command flags. CLI flags and BRANCHMEM_
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  api.listen,
  memory.enabled, memory.scheme,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  log.debug, log.json

Use subcommands to get, set, or list configuration values:
  branchmem config set <key> <value>    Set a configuration value
  branchmem config get <key>            Get a configuration value
  branchmem config list                 List all configuration values

Examples:
  branchmem config set memory.enabled false
  branchmem config set storage.driver postgres
  branchmem config get memory.scheme
  branchmem config list`

const configShortDesc string = "Manage persistent branchmem configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func unknownKeyError(key string) error {
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.MutedStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.MutedStyle.Render("No config file found. Using defaults."))
}

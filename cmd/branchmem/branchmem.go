// Package branchmemcmder
package branchmemcmder

import (
	"github.com/spf13/cobra"

	checkoutcmder "github.com/papercomputeco/branchmem/cmd/branchmem/checkout"
	configcmder "github.com/papercomputeco/branchmem/cmd/branchmem/config"
	memorycmder "github.com/papercomputeco/branchmem/cmd/branchmem/memory"
	pathcmder "github.com/papercomputeco/branchmem/cmd/branchmem/path"
	servecmder "github.com/papercomputeco/branchmem/cmd/branchmem/serve"
	versioncmder "github.com/papercomputeco/branchmem/cmd/version"
	"github.com/papercomputeco/branchmem/pkg/config"
)

const branchmemLongDesc string = `Branchmem is branch-aware conversation memory for chat agents.

Memory entries are scoped to the active path of a branching conversation, so
edits and retries never leak memory from abandoned branches.

  branchmem serve                   Run the API and MCP server
  branchmem path <session>          Show the active path of a session
  branchmem checkout <session> <id> Pin the head message of a session
  branchmem memory show <s> <node>  Show the memory visible on the active path
  branchmem config list             Show persistent configuration`

const branchmemShortDesc string = "Branchmem - branch-aware conversation memory"

func NewBranchmemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "branchmem",
		Short:         branchmemShortDesc,
		Long:          branchmemLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	debug := config.Flags[config.FlagDebug]
	cmd.PersistentFlags().BoolP(debug.Name, "d", false, debug.Description)
	cmd.PersistentFlags().String("config-dir", "", "Override the .branchmem config directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(pathcmder.NewPathCmd())
	cmd.AddCommand(checkoutcmder.NewCheckoutCmd())
	cmd.AddCommand(memorycmder.NewMemoryCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

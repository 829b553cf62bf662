// Package memorycmder provides the memory command for inspecting and
// clearing the conversation memory of a memory node.
package memorycmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/branchmem/pkg/config"
)

const memoryLongDesc string = `Inspect and clear conversation memory.

Memory is stored per session and memory node. Reads are scoped to the
active path of the session, the same way an agent execution sees them.

  branchmem memory show <session> <node>    Show the visible entries
  branchmem memory clear <session> <node>   Remove every entry of the node`

const memoryShortDesc string = "Inspect and clear conversation memory"

// DefaultOwner is the owner identity used when --owner is not given.
const DefaultOwner = "local"

var storageFlags = []string{
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagScheme,
	config.FlagDebug,
}

func NewMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: memoryShortDesc,
		Long:  memoryLongDesc,
	}

	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newClearCmd())

	return cmd
}

type storageOpts struct {
	storage     string
	sqlitePath  string
	postgresDSN string
	scheme      string
	owner       string
}

func (o *storageOpts) register(cmd *cobra.Command) {
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &o.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &o.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &o.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagScheme, &o.scheme)
	cmd.Flags().StringVar(&o.owner, "owner", DefaultOwner, "Owner identity to read memory as")
}

package memorycmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/branchmem/cmd/branchmem/bootstrap"
	"github.com/papercomputeco/branchmem/pkg/cliui"
	"github.com/papercomputeco/branchmem/pkg/convmem"
)

type clearCommander struct {
	storageOpts
}

const clearLongDesc string = `Remove every memory entry of a memory node.

All branches of the session lose the node's memory. Clearing a node with no
entries succeeds.

Examples:
  branchmem memory clear session-1 node-1`

const clearShortDesc string = "Remove every entry of a memory node"

func newClearCmd() *cobra.Command {
	cmder := &clearCommander{}

	cmd := &cobra.Command{
		Use:   "clear <session> <node>",
		Short: clearShortDesc,
		Long:  clearLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0], args[1])
		},
	}

	cmder.register(cmd)

	return cmd
}

func (c *clearCommander) run(cmd *cobra.Command, sessionID, nodeID string) error {
	configDir, _ := cmd.Flags().GetString("config-dir")

	_, cfg, err := bootstrap.LoadConfig(cmd, configDir, storageFlags...)
	if err != nil {
		return err
	}

	rt, err := bootstrap.Open(cmd.Context(), cfg, configDir)
	if err != nil {
		return err
	}
	defer rt.Close()

	h, err := rt.Service.Acquire(cmd.Context(), convmem.Request{
		Node:         convmem.NodeDescriptor{Name: "cli", Type: convmem.NodeTypeChatHubMemory},
		SessionID:    sessionID,
		MemoryNodeID: nodeID,
		OwnerID:      c.owner,
	})
	if err != nil {
		return err
	}

	return cliui.Step(cmd.OutOrStdout(), fmt.Sprintf("Clearing memory of %s/%s", sessionID, nodeID), func() error {
		return h.Clear(cmd.Context())
	})
}

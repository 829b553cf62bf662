// Package checkoutcmder provides the checkout subcommand for pinning the head
// message of a branching chat session.
package checkoutcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/branchmem/cmd/branchmem/bootstrap"
	pathcmder "github.com/papercomputeco/branchmem/cmd/branchmem/path"
	"github.com/papercomputeco/branchmem/pkg/cliui"
	"github.com/papercomputeco/branchmem/pkg/config"
	"github.com/papercomputeco/branchmem/pkg/dotdir"
)

type checkoutCommander struct {
	sessionID string
	messageID string
	configDir string

	storage     string
	sqlitePath  string
	postgresDSN string
}

var checkoutFlags = []string{
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagDebug,
}

const checkoutLongDesc string = `Pin the head message of a session.

"branchmem path" and "branchmem memory show" resolve the active path from the
pinned head when --head is not given. The message must exist in the session
and its parent chain must reach a root.

If no message is provided, clears the pin so the most recent message is used.

Examples:
  branchmem checkout session-1 msg-42   Pin msg-42 as the head of session-1
  branchmem checkout session-1          Clear the pin`

const checkoutShortDesc string = "Pin the head message of a session"

func NewCheckoutCmd() *cobra.Command {
	cmder := &checkoutCommander{}

	cmd := &cobra.Command{
		Use:   "checkout <session> [message]",
		Short: checkoutShortDesc,
		Long:  checkoutLongDesc,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.sessionID = args[0]
			if len(args) > 1 {
				cmder.messageID = args[1]
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)

	return cmd
}

func (c *checkoutCommander) run(cmd *cobra.Command) error {
	dotdirManager := dotdir.NewManager()
	out := cmd.OutOrStdout()

	// If no message provided, clear the pin
	if c.messageID == "" {
		if err := dotdirManager.ClearCheckout(c.sessionID, c.configDir); err != nil {
			return fmt.Errorf("clearing checkout: %w", err)
		}
		fmt.Fprintf(out, "  %s Checkout cleared for %s. The latest message is the head.\n",
			cliui.SuccessMark, c.sessionID)
		return nil
	}

	_, cfg, err := bootstrap.LoadConfig(cmd, c.configDir, checkoutFlags...)
	if err != nil {
		return err
	}

	rt, err := bootstrap.Open(cmd.Context(), cfg, c.configDir)
	if err != nil {
		return err
	}
	defer rt.Close()

	view, err := rt.Service.ActivePath(cmd.Context(), c.sessionID, c.messageID)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", c.messageID, err)
	}

	if err := dotdirManager.Checkout(c.sessionID, c.messageID, c.configDir); err != nil {
		return fmt.Errorf("saving checkout: %w", err)
	}

	fmt.Fprintf(out, "  %s Checked out %s (%d messages)\n",
		cliui.SuccessMark, c.messageID, len(view.Messages))
	pathcmder.PrintPath(out, view, true)

	return nil
}

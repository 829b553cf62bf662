// Package pathcmder provides the path command showing the active path of a
// branching chat session.
package pathcmder

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/branchmem/cmd/branchmem/bootstrap"
	"github.com/papercomputeco/branchmem/pkg/cliui"
	"github.com/papercomputeco/branchmem/pkg/config"
	"github.com/papercomputeco/branchmem/pkg/convmem"
)

type pathCommander struct {
	head        string
	asJSON      bool
	storage     string
	sqlitePath  string
	postgresDSN string
	scheme      string
}

var pathFlags = []string{
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagScheme,
	config.FlagDebug,
}

const pathLongDesc string = `Show the active path of a chat session.

The active path runs from the root message to the head. Without --head the
head pinned by "branchmem checkout" is used, or the most recent message.
Superseded siblings left by edits and retries are listed next to the path
message that replaced them.

Examples:
  branchmem path session-1
  branchmem path session-1 --head msg-42
  branchmem path session-1 --json`

const pathShortDesc string = "Show the active path of a session"

func NewPathCmd() *cobra.Command {
	cmder := &pathCommander{}

	cmd := &cobra.Command{
		Use:   "path <session>",
		Short: pathShortDesc,
		Long:  pathLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			_, cfg, err := bootstrap.LoadConfig(cmd, configDir, pathFlags...)
			if err != nil {
				return err
			}

			head, err := bootstrap.ResolveHead(cmder.head, args[0], configDir)
			if err != nil {
				return err
			}

			rt, err := bootstrap.Open(cmd.Context(), cfg, configDir)
			if err != nil {
				return err
			}
			defer rt.Close()

			view, err := rt.Service.ActivePath(cmd.Context(), args[0], head)
			if err != nil {
				return fmt.Errorf("resolving active path: %w", err)
			}

			if cmder.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}

			PrintPath(cmd.OutOrStdout(), view, head != "" && cmder.head == "")
			return nil
		},
	}

	cmd.Flags().StringVar(&cmder.head, "head", "", "Head message id (default: pinned head or latest)")
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print the path as JSON")
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagScheme, &cmder.scheme)

	return cmd
}

// PrintPath writes a human readable rendering of view.
func PrintPath(w io.Writer, view *convmem.PathView, pinned bool) {
	if len(view.Messages) == 0 {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.MutedStyle.Render("No messages in session "+view.SessionID))
		return
	}

	head := view.HeadID
	if pinned {
		head += " " + cliui.MutedStyle.Render("(pinned)")
	}
	fmt.Fprintf(w, "\n  %s %s  %s %s\n\n",
		cliui.KeyStyle.Render("Session"), view.SessionID,
		cliui.KeyStyle.Render("Head"), head,
	)

	for _, msg := range view.Messages {
		marker := cliui.MutedStyle.Render("│")
		if msg.ID == view.HeadID {
			marker = cliui.ActiveStyle.Render("●")
		}

		line := fmt.Sprintf("  %s %s  %s", marker, msg.ID, cliui.Role(msg.Role))
		if turn := msg.Turn(); turn != "" {
			line += "  " + cliui.MutedStyle.Render("turn "+turn)
		}
		if alts := view.Alternatives[msg.ID]; len(alts) > 0 {
			line += "  " + cliui.MutedStyle.Render(fmt.Sprintf("(replaces %s)", strings.Join(alts, ", ")))
		}
		fmt.Fprintln(w, line)
	}

	ids := "none"
	if len(view.CorrelationIDs) > 0 {
		ids = strings.Join(view.CorrelationIDs, ", ")
	}
	fmt.Fprintf(w, "\n  %s %s\n", cliui.KeyStyle.Render("Correlation ids:"), ids)
	fmt.Fprintf(w, "  %s %s\n\n", cliui.KeyStyle.Render("Leaves:"), strings.Join(view.Leaves, ", "))
}

package memorycmder

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/branchmem/cmd/branchmem/bootstrap"
	"github.com/papercomputeco/branchmem/pkg/cliui"
	"github.com/papercomputeco/branchmem/pkg/convmem"
	"github.com/papercomputeco/branchmem/pkg/memory"
)

type showCommander struct {
	storageOpts

	head       string
	turn       string
	regenerate bool
	asJSON     bool
	plain      bool
}

const showLongDesc string = `Show the memory entries visible on the active path.

Entries written on edited or retried branches are hidden. --turn simulates
an execution of that turn and --regenerate hides the turn's own entries, as
a retry would.

Examples:
  branchmem memory show session-1 node-1
  branchmem memory show session-1 node-1 --head msg-42
  branchmem memory show session-1 node-1 --turn T7 --regenerate
  branchmem memory show session-1 node-1 --json`

const showShortDesc string = "Show the memory visible on the active path"

func newShowCmd() *cobra.Command {
	cmder := &showCommander{}

	cmd := &cobra.Command{
		Use:   "show <session> <node>",
		Short: showShortDesc,
		Long:  showLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0], args[1])
		},
	}

	cmder.register(cmd)
	cmd.Flags().StringVar(&cmder.head, "head", "", "Head message id (default: pinned head or latest)")
	cmd.Flags().StringVar(&cmder.turn, "turn", "", "Turn id of the simulated execution")
	cmd.Flags().BoolVar(&cmder.regenerate, "regenerate", false, "Hide the entries of --turn")
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print entries as JSON")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Print without markdown rendering")

	return cmd
}

func (c *showCommander) run(cmd *cobra.Command, sessionID, nodeID string) error {
	configDir, _ := cmd.Flags().GetString("config-dir")

	_, cfg, err := bootstrap.LoadConfig(cmd, configDir, storageFlags...)
	if err != nil {
		return err
	}

	head, err := bootstrap.ResolveHead(c.head, sessionID, configDir)
	if err != nil {
		return err
	}

	rt, err := bootstrap.Open(cmd.Context(), cfg, configDir)
	if err != nil {
		return err
	}
	defer rt.Close()

	h, err := rt.Service.Acquire(cmd.Context(), convmem.Request{
		Node:          convmem.NodeDescriptor{Name: "cli", Type: convmem.NodeTypeChatHubMemory},
		SessionID:     sessionID,
		MemoryNodeID:  nodeID,
		HeadMessageID: head,
		TurnID:        c.turn,
		Regenerate:    c.regenerate,
		OwnerID:       c.owner,
	})
	if err != nil {
		return err
	}

	entries, err := h.Memory(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading memory: %w", err)
	}

	out := cmd.OutOrStdout()
	if c.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	doc := Markdown(sessionID, nodeID, entries)
	if c.plain {
		_, err = io.WriteString(out, doc)
		return err
	}

	rendered, err := cliui.RenderMarkdown(doc)
	if err != nil {
		rt.Logger.Debug("markdown rendering failed", "error", err)
	}
	_, err = io.WriteString(out, rendered)
	return err
}

// Markdown renders memory entries as a markdown document, decoding AI tool
// calls and tool results.
func Markdown(sessionID, nodeID string, entries []*memory.Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Memory `%s`\n\nSession `%s`, %d entries\n", nodeID, sessionID, len(entries))
	if len(entries) == 0 {
		b.WriteString("\n_No memory visible on the active path._\n")
		return b.String()
	}

	for _, e := range entries {
		fmt.Fprintf(&b, "\n## %s `%s`\n\n", e.Role, e.CorrelationID)
		fmt.Fprintf(&b, "_%s_\n\n", e.CreatedAt.Format(time.RFC3339))

		switch e.Role {
		case memory.RoleAI:
			payload := memory.DecodeAI(e.Content)
			if payload.Text != "" {
				b.WriteString(quote(payload.Text))
			}
			for _, call := range payload.ToolCalls {
				args, _ := json.Marshal(call.Args)
				fmt.Fprintf(&b, "- calls `%s` (`%s`): `%s`\n", call.Name, call.ID, args)
			}
		case memory.RoleTool:
			payload := memory.DecodeTool(e.Content)
			if !payload.Structured {
				fmt.Fprintf(&b, "**%s**\n\n%s", payload.ToolName, quote(payload.Raw))
				continue
			}
			input, _ := json.Marshal(payload.Input)
			output, _ := json.Marshal(payload.Output)
			fmt.Fprintf(&b, "**%s** (`%s`)\n\n- input: `%s`\n- output: `%s`\n",
				payload.ToolName, payload.ToolCallID, input, output)
		default:
			b.WriteString(quote(e.Content))
		}
	}

	return b.String()
}

func quote(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n") + "\n"
}

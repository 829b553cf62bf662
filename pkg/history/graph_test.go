package history_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/branchmem/pkg/chat"
	"github.com/papercomputeco/branchmem/pkg/history"
)

var baseTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// msg builds a chat message; minute is the offset from baseTime.
func msg(id, parent, role, turn string, minute int) *chat.Message {
	m := &chat.Message{
		ID:        id,
		SessionID: "session-1",
		Role:      role,
		CreatedAt: baseTime.Add(time.Duration(minute) * time.Minute),
	}
	if parent != "" {
		m.ParentID = &parent
	}
	if turn != "" {
		m.TurnID = &turn
	}
	return m
}

func ids(path []*chat.Message) []string {
	out := make([]string, 0, len(path))
	for _, m := range path {
		out = append(out, m.ID)
	}
	return out
}

var _ = Describe("Graph", func() {
	Describe("NewGraph", func() {
		It("indexes an empty log", func() {
			g := history.NewGraph(nil)
			Expect(g.Size()).To(Equal(0))
			Expect(g.Head()).To(BeEmpty())
		})

		It("reports a duplicate id once the walk reaches it", func() {
			g := history.NewGraph([]*chat.Message{
				msg("h1", "", chat.RoleHuman, "", 0),
				msg("h1", "", chat.RoleHuman, "", 1),
				msg("a1", "h1", chat.RoleAI, "t1", 2),
			})
			Expect(g.Size()).To(Equal(2))

			_, err := g.ActivePath("a1")
			Expect(err).To(MatchError(history.ErrDuplicateMessage))
			Expect(history.IsStructural(err)).To(BeTrue())
		})

		It("reports a parent outside the log once the walk reaches it", func() {
			_, err := history.ResolveActivePath([]*chat.Message{
				msg("a1", "missing", chat.RoleAI, "t1", 0),
			}, "a1")
			Expect(err).To(MatchError(history.ErrDanglingParent))

			var se *history.StructuralError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.MessageID).To(Equal("a1"))
		})

		It("ignores corruption on a branch the active path never visits", func() {
			path, err := history.ResolveActivePath([]*chat.Message{
				msg("h1", "", chat.RoleHuman, "", 0),
				msg("orphan", "gone", chat.RoleAI, "t0", 1),
				msg("a1", "h1", chat.RoleAI, "t1", 2),
				msg("dup", "h1", chat.RoleAI, "t2", 3),
				msg("dup", "h1", chat.RoleAI, "t3", 4),
			}, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(path)).To(Equal([]string{"h1", "a1"}))
		})

		It("skips nil rows", func() {
			g := history.NewGraph([]*chat.Message{nil, msg("h1", "", chat.RoleHuman, "", 0)})
			Expect(g.Size()).To(Equal(1))
		})
	})

	Describe("Head", func() {
		It("picks the greatest CreatedAt", func() {
			g := history.NewGraph([]*chat.Message{
				msg("h1", "", chat.RoleHuman, "", 0),
				msg("a1", "h1", chat.RoleAI, "t1", 5),
				msg("a2", "h1", chat.RoleAI, "t2", 3),
			})
			Expect(g.Head()).To(Equal("a1"))
		})

		It("breaks ties by insertion order", func() {
			g := history.NewGraph([]*chat.Message{
				msg("h1", "", chat.RoleHuman, "", 0),
				msg("a1", "h1", chat.RoleAI, "t1", 1),
				msg("a2", "h1", chat.RoleAI, "t2", 1),
			})
			Expect(g.Head()).To(Equal("a2"))
		})
	})

	Describe("ActivePath", func() {
		var log []*chat.Message

		BeforeEach(func() {
			// h1 -> a1 -> h2 -> a2
			//           \-> h2e -> a2e   (edit of h2)
			log = []*chat.Message{
				msg("h1", "", chat.RoleHuman, "", 0),
				msg("a1", "h1", chat.RoleAI, "t1", 1),
				msg("h2", "a1", chat.RoleHuman, "", 2),
				msg("a2", "h2", chat.RoleAI, "t2", 3),
				msg("h2e", "a1", chat.RoleHuman, "", 4),
				msg("a2e", "h2e", chat.RoleAI, "t3", 5),
			}
		})

		It("returns an empty path for an empty log", func() {
			path, err := history.ResolveActivePath(nil, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(BeEmpty())
		})

		It("resolves from the latest message when no head is given", func() {
			path, err := history.ResolveActivePath(log, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(path)).To(Equal([]string{"h1", "a1", "h2e", "a2e"}))
		})

		It("never includes the orphaned original of an edited message", func() {
			path, err := history.ResolveActivePath(log, "a2e")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(path)).NotTo(ContainElement("h2"))
			Expect(ids(path)).NotTo(ContainElement("a2"))
		})

		It("resolves an abandoned branch when asked for explicitly", func() {
			path, err := history.ResolveActivePath(log, "a2")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(path)).To(Equal([]string{"h1", "a1", "h2", "a2"}))
		})

		It("returns a single root", func() {
			path, err := history.ResolveActivePath(log, "h1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(path)).To(Equal([]string{"h1"}))
		})

		It("fails for an unknown head", func() {
			_, err := history.ResolveActivePath(log, "nope")
			Expect(err).To(MatchError(history.ErrUnknownHead))
		})

		It("fails fast on a cyclic parent chain", func() {
			cyclic := []*chat.Message{
				msg("x", "y", chat.RoleHuman, "", 0),
				msg("y", "x", chat.RoleAI, "t1", 1),
			}
			_, err := history.ResolveActivePath(cyclic, "")
			Expect(err).To(MatchError(history.ErrCycle))

			var se *history.StructuralError
			Expect(err).To(BeAssignableToTypeOf(se))
		})

		It("fails fast on a self-referencing message", func() {
			self := []*chat.Message{msg("x", "x", chat.RoleHuman, "", 0)}
			_, err := history.ResolveActivePath(self, "x")
			Expect(err).To(MatchError(history.ErrCycle))
		})

		It("visits each message at most once", func() {
			g := history.NewGraph(log)

			for _, leaf := range g.Leaves() {
				path, err := g.ActivePath(leaf)
				Expect(err).NotTo(HaveOccurred())

				seen := map[string]bool{}
				for _, m := range path {
					Expect(seen[m.ID]).To(BeFalse())
					seen[m.ID] = true
				}
				Expect(path[len(path)-1].ID).To(Equal(leaf))
				Expect(path[0].IsRoot()).To(BeTrue())
			}
		})
	})

	Describe("Branches and Leaves", func() {
		It("reports edit siblings", func() {
			g := history.NewGraph([]*chat.Message{
				msg("h1", "", chat.RoleHuman, "", 0),
				msg("a1", "h1", chat.RoleAI, "t1", 1),
				msg("a1r", "h1", chat.RoleAI, "t2", 2),
			})

			Expect(g.Branches("h1")).To(Equal([]string{"a1", "a1r"}))
			Expect(g.Branches("missing")).To(BeNil())
			Expect(g.Leaves()).To(Equal([]string{"a1", "a1r"}))
			Expect(g.Get("a1r").Turn()).To(Equal("t2"))
			Expect(g.Get("missing")).To(BeNil())
		})
	})
})

package convmem_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/branchmem/pkg/chat"
	"github.com/papercomputeco/branchmem/pkg/convmem"
	"github.com/papercomputeco/branchmem/pkg/eventstream"
	"github.com/papercomputeco/branchmem/pkg/history"
	"github.com/papercomputeco/branchmem/pkg/memory"
	"github.com/papercomputeco/branchmem/pkg/session"
	"github.com/papercomputeco/branchmem/pkg/storage/inmemory"
	"github.com/papercomputeco/branchmem/pkg/storage/storagetest"
)

var _ = Describe("Handle", func() {
	var (
		ctx       context.Context
		driver    *inmemory.Driver
		store     *countingStore
		publisher *recordingPublisher
		ids       *sequentialIDs
		svc       *convmem.Service
		scheme    history.Scheme
	)

	newService := func() {
		var err error
		svc, err = convmem.NewService(convmem.Config{
			Store:     store,
			Scheme:    scheme,
			Enabled:   true,
			Publisher: publisher,
			Clock:     (&tickingClock{now: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)}).Now,
			NewID:     ids.Next,
		})
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		store = &countingStore{Driver: driver}
		publisher = &recordingPublisher{}
		ids = &sequentialIDs{}
		scheme = history.SchemeTurn
		newService()
	})

	acquire := func(mutate func(r *convmem.Request)) *convmem.Handle {
		req := convmem.Request{
			Node:         convmem.NodeDescriptor{Type: convmem.NodeTypeChatHubMemory},
			SessionID:    "session-1",
			MemoryNodeID: "node-1",
			OwnerID:      "user-1",
		}
		if mutate != nil {
			mutate(&req)
		}
		h, err := svc.Acquire(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		return h
	}

	appendMessages := func(msgs ...*chat.Message) {
		for _, m := range msgs {
			Expect(driver.AppendMessage(ctx, m)).To(Succeed())
		}
	}

	appendEntries := func(entries ...*memory.Entry) {
		for _, e := range entries {
			Expect(driver.AppendEntry(ctx, e)).To(Succeed())
		}
	}

	// h1 -> a1(T1) -> h2 -> a2(T2)
	twoTurns := func() {
		appendMessages(
			storagetest.NewMessage("h1", "", chat.RoleHuman, "", 1),
			storagetest.NewMessage("a1", "h1", chat.RoleAI, "T1", 2),
			storagetest.NewMessage("h2", "a1", chat.RoleHuman, "", 3),
			storagetest.NewMessage("a2", "h2", chat.RoleAI, "T2", 4),
		)
		appendEntries(
			storagetest.NewEntry("e1", "T1", memory.RoleHuman, 1),
			storagetest.NewEntry("e2", "T1", memory.RoleAI, 2),
			storagetest.NewEntry("e3", "T2", memory.RoleHuman, 3),
			storagetest.NewEntry("e4", "T2", memory.RoleAI, 4),
			storagetest.NewEntry("stray", "T-other", memory.RoleAI, 5),
		)
	}

	Describe("Memory", func() {
		It("returns nothing without querying the store when the session has no messages", func() {
			appendEntries(storagetest.NewEntry("e1", "T1", memory.RoleHuman, 1))

			entries, err := acquire(nil).Memory(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
			Expect(entries).NotTo(BeNil())
			Expect(store.queries()).To(BeZero())
		})

		It("filters by the turns on the active path plus the current turn", func() {
			twoTurns()
			appendEntries(storagetest.NewEntry("e5", "T3", memory.RoleHuman, 6))

			h := acquire(func(r *convmem.Request) { r.TurnID = "T3" })
			entries, err := h.Memory(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entryIDs(entries)).To(Equal([]string{"e1", "e2", "e3", "e4", "e5"}))
			Expect(store.lastCorrIDs).To(Equal([]string{"T1", "T2", "T3"}))
		})

		It("excludes the regenerated turn but keeps earlier turns", func() {
			twoTurns()

			h := acquire(func(r *convmem.Request) {
				r.HeadMessageID = "a2"
				r.TurnID = "T2"
				r.Regenerate = true
			})
			entries, err := h.Memory(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entryIDs(entries)).To(Equal([]string{"e1", "e2"}))
			Expect(store.lastCorrIDs).To(Equal([]string{"T1"}))
		})

		It("never includes superseded branches after an edit", func() {
			twoTurns()
			// h2 edited: h2e is a new child of a1
			appendMessages(
				storagetest.NewMessage("h2e", "a1", chat.RoleHuman, "", 10),
				storagetest.NewMessage("a2e", "h2e", chat.RoleAI, "T2e", 11),
			)
			appendEntries(
				storagetest.NewEntry("e6", "T2e", memory.RoleHuman, 10),
				storagetest.NewEntry("e7", "T2e", memory.RoleAI, 11),
			)

			h := acquire(func(r *convmem.Request) { r.TurnID = "T3" })
			entries, err := h.Memory(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entryIDs(entries)).To(Equal([]string{"e1", "e2", "e6", "e7"}))
			Expect(store.lastCorrIDs).NotTo(ContainElement("T2"))
		})

		It("resolves from an explicit head on an abandoned branch", func() {
			twoTurns()
			appendMessages(
				storagetest.NewMessage("h2e", "a1", chat.RoleHuman, "", 10),
				storagetest.NewMessage("a2e", "h2e", chat.RoleAI, "T2e", 11),
			)

			h := acquire(func(r *convmem.Request) {
				r.HeadMessageID = "a2"
				r.TurnID = "T3"
			})
			entries, err := h.Memory(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entryIDs(entries)).To(Equal([]string{"e1", "e2", "e3", "e4"}))
		})

		It("falls back to the whole node for a minted turn with no path ids", func() {
			appendMessages(storagetest.NewMessage("h1", "", chat.RoleHuman, "", 1))
			appendEntries(
				storagetest.NewEntry("e1", "manual-1", memory.RoleHuman, 1),
				storagetest.NewEntry("e2", "manual-2", memory.RoleHuman, 2),
			)

			entries, err := acquire(nil).Memory(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entryIDs(entries)).To(Equal([]string{"e1", "e2"}))
			Expect(store.listAll).To(Equal(1))
			Expect(store.listByCorr).To(BeZero())
		})

		It("scopes a hinted first turn to its own key", func() {
			appendMessages(storagetest.NewMessage("h1", "", chat.RoleHuman, "", 1))
			appendEntries(
				storagetest.NewEntry("e1", "T1", memory.RoleHuman, 1),
				storagetest.NewEntry("e2", "T0", memory.RoleHuman, 2),
			)

			entries, err := acquire(func(r *convmem.Request) { r.TurnID = "T1" }).Memory(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entryIDs(entries)).To(Equal([]string{"e1"}))
			Expect(store.listAll).To(BeZero())
		})

		It("short-circuits when regeneration empties the filter", func() {
			appendMessages(
				storagetest.NewMessage("h1", "", chat.RoleHuman, "", 1),
				storagetest.NewMessage("a1", "h1", chat.RoleAI, "T1", 2),
			)

			h := acquire(func(r *convmem.Request) {
				r.TurnID = "T1"
				r.Regenerate = true
			})
			entries, err := h.Memory(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
			Expect(store.queries()).To(BeZero())
		})

		It("resolves past an orphaned message on an abandoned branch", func() {
			twoTurns()
			appendMessages(storagetest.NewMessage("orphan", "gone", chat.RoleAI, "T9", 0))

			h := acquire(func(r *convmem.Request) {
				r.HeadMessageID = "a2"
				r.TurnID = "T3"
			})
			entries, err := h.Memory(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entryIDs(entries)).To(Equal([]string{"e1", "e2", "e3", "e4"}))
		})

		It("raises a structural error for a cyclic parent chain", func() {
			appendMessages(
				storagetest.NewMessage("x", "y", chat.RoleHuman, "", 1),
				storagetest.NewMessage("y", "x", chat.RoleAI, "T1", 2),
			)

			_, err := acquire(nil).Memory(ctx)
			Expect(history.IsStructural(err)).To(BeTrue())
			Expect(errors.Is(err, history.ErrCycle)).To(BeTrue())
			Expect(store.queries()).To(BeZero())
		})

		It("raises a structural error for an unknown head", func() {
			twoTurns()
			_, err := acquire(func(r *convmem.Request) { r.HeadMessageID = "missing" }).Memory(ctx)
			Expect(errors.Is(err, history.ErrUnknownHead)).To(BeTrue())
		})

		It("returns no partial result when the context is cancelled", func() {
			twoTurns()
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			entries, err := acquire(func(r *convmem.Request) { r.TurnID = "T3" }).Memory(cctx)
			Expect(err).To(MatchError(context.Canceled))
			Expect(entries).To(BeNil())
		})
	})

	Describe("parent-message scheme", func() {
		BeforeEach(func() {
			scheme = history.SchemeParentMessage
			newService()

			appendMessages(
				storagetest.NewMessage("h1", "", chat.RoleHuman, "", 1),
				storagetest.NewMessage("a1", "h1", chat.RoleAI, "", 2),
				storagetest.NewMessage("h2", "a1", chat.RoleHuman, "", 3),
				storagetest.NewMessage("a2", "h2", chat.RoleAI, "", 4),
			)
			appendEntries(
				storagetest.NewEntry("e1", "h1", memory.RoleHuman, 1),
				storagetest.NewEntry("e2", "h1", memory.RoleAI, 2),
				storagetest.NewEntry("e3", "h2", memory.RoleHuman, 3),
				storagetest.NewEntry("e4", "h2", memory.RoleAI, 4),
			)
		})

		It("anchors on a human head hint and excludes it when regenerating", func() {
			h := acquire(func(r *convmem.Request) {
				r.HeadMessageID = "h2"
				r.Regenerate = true
			})
			entries, err := h.Memory(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entryIDs(entries)).To(Equal([]string{"e1", "e2"}))

			turn, err := h.Turn(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(turn).To(Equal(convmem.Turn{Key: "h2"}))
		})

		It("anchors on the last human message of the path otherwise", func() {
			h := acquire(func(r *convmem.Request) { r.HeadMessageID = "a2" })
			Expect(h.AddAIMessage(ctx, "again")).To(Succeed())

			entries, err := driver.ListEntriesByCorrelation(ctx, "session-1", "node-1", []string{"h2"})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3))
			Expect(entries[2].Content).To(Equal("again"))
		})

		It("mints a key for an empty session", func() {
			h := acquire(func(r *convmem.Request) { r.SessionID = "session-2" })
			turn, err := h.Turn(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Minted).To(BeTrue())
			Expect(turn.Key).To(Equal("id-1"))
		})
	})

	Describe("writes", func() {
		It("tags every write of one execution with the same minted key", func() {
			h := acquire(nil)
			Expect(h.AddHumanMessage(ctx, "hi")).To(Succeed())
			Expect(h.AddAIMessage(ctx, "hello")).To(Succeed())
			Expect(h.AddToolMessage(ctx, "call-1", "search", map[string]any{"q": "x"}, "result")).To(Succeed())

			entries, err := driver.ListEntries(ctx, "session-1", "node-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3))

			turn, err := h.Turn(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Minted).To(BeTrue())
			for _, e := range entries {
				Expect(e.CorrelationID).To(Equal(turn.Key))
			}
			Expect([]string{entries[0].Role, entries[1].Role, entries[2].Role}).To(Equal([]string{"human", "ai", "tool"}))
			Expect(entries[2].Name).To(Equal("search"))
			Expect(entryIDs(entries)).To(HaveLen(3))
			Expect(entries[0].ID).NotTo(Equal(entries[1].ID))
		})

		It("uses the hinted turn", func() {
			h := acquire(func(r *convmem.Request) { r.TurnID = "T9" })
			Expect(h.AddHumanMessage(ctx, "hi")).To(Succeed())

			entries, err := driver.ListEntriesByCorrelation(ctx, "session-1", "node-1", []string{"T9"})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
		})

		It("round-trips AI tool calls", func() {
			appendMessages(storagetest.NewMessage("h1", "", chat.RoleHuman, "", 1))
			h := acquire(func(r *convmem.Request) { r.TurnID = "T1" })

			calls := []memory.ToolCall{
				{ID: "call-1", Name: "search", Args: map[string]any{"query": "weather"}},
				{ID: "call-2", Name: "calendar", Args: map[string]any{"day": "monday"}},
			}
			Expect(h.AddAIMessage(ctx, "let me check", calls...)).To(Succeed())

			entries, err := h.Memory(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))

			payload := memory.DecodeAI(entries[0].Content)
			Expect(payload.Structured).To(BeTrue())
			Expect(payload.Text).To(Equal("let me check"))
			Expect(payload.ToolCalls).To(Equal(calls))
		})

		It("falls back to raw content for corrupt entries without failing the read", func() {
			appendMessages(storagetest.NewMessage("h1", "", chat.RoleHuman, "", 1))
			h := acquire(func(r *convmem.Request) { r.TurnID = "T1" })
			Expect(h.AddHumanMessage(ctx, "question")).To(Succeed())

			corruptAI := storagetest.NewEntry("bad-ai", "T1", memory.RoleAI, 30)
			corruptAI.Content = `{"content": "cut off", "toolCalls": [`
			corruptTool := storagetest.NewEntry("bad-tool", "T1", memory.RoleTool, 31)
			corruptTool.Content = "\x00not json"
			appendEntries(corruptAI, corruptTool)

			entries, err := h.Memory(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3))

			byID := map[string]*memory.Entry{}
			for _, e := range entries {
				byID[e.ID] = e
			}

			ai := memory.DecodeAI(byID["bad-ai"].Content)
			Expect(ai.Structured).To(BeFalse())
			Expect(ai.Text).To(Equal(corruptAI.Content))

			tool := memory.DecodeTool(byID["bad-tool"].Content)
			Expect(tool.Structured).To(BeFalse())
			Expect(tool.ToolName).To(Equal(memory.UnknownToolName))
			Expect(tool.Raw).To(Equal(corruptTool.Content))
		})

		It("publishes an event per write and tolerates publish failures", func() {
			publisher.err = errors.New("broker down")
			h := acquire(func(r *convmem.Request) { r.TurnID = "T1" })

			Expect(h.AddHumanMessage(ctx, "hi")).To(Succeed())
			Expect(h.AddToolMessage(ctx, "c1", "lookup", nil, nil)).To(Succeed())

			Expect(publisher.types()).To(Equal([]string{
				eventstream.EventTypeMemoryAppended,
				eventstream.EventTypeMemoryAppended,
			}))
			Expect(publisher.events[1].Entry.Name).To(Equal("lookup"))
			Expect(publisher.events[1].CorrelationID).To(Equal("T1"))
		})

		It("surfaces duplicate entry ids", func() {
			fixed := convmem.Config{
				Store:   store,
				Enabled: true,
				NewID:   func() string { return "same" },
			}
			dup, err := convmem.NewService(fixed)
			Expect(err).NotTo(HaveOccurred())

			h, err := dup.Acquire(ctx, convmem.Request{
				Node:         convmem.NodeDescriptor{Type: convmem.NodeTypeChatHubMemory},
				SessionID:    "session-1",
				MemoryNodeID: "node-1",
				OwnerID:      "user-1",
				TurnID:       "T1",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(h.AddHumanMessage(ctx, "one")).To(Succeed())
			Expect(h.AddHumanMessage(ctx, "two")).To(HaveOccurred())
		})
	})

	Describe("Clear", func() {
		It("empties the node and is idempotent", func() {
			twoTurns()
			h := acquire(func(r *convmem.Request) { r.TurnID = "T3" })

			Expect(h.Clear(ctx)).To(Succeed())
			entries, err := h.Memory(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())

			Expect(h.Clear(ctx)).To(Succeed())

			Expect(publisher.types()).To(Equal([]string{
				eventstream.EventTypeMemoryCleared,
				eventstream.EventTypeMemoryCleared,
			}))
			Expect(publisher.events[0].Removed).To(Equal(5))
			Expect(publisher.events[1].Removed).To(BeZero())
		})

		It("leaves other memory nodes alone", func() {
			twoTurns()
			other := storagetest.NewEntry("o1", "T1", memory.RoleHuman, 1)
			other.MemoryNodeID = "node-2"
			appendEntries(other)

			Expect(acquire(nil).Clear(ctx)).To(Succeed())

			entries, err := driver.ListEntries(ctx, "session-1", "node-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(entryIDs(entries)).To(Equal([]string{"o1"}))
		})
	})

	Describe("EnsureSession", func() {
		workflow := convmem.WorkflowDescriptor{
			ID:   "wf-1",
			Name: "Support flow",
			Nodes: []convmem.NodeDescriptor{
				{Type: convmem.NodeTypeChatTrigger, Parameters: map[string]any{"agentName": "Helpdesk"}},
			},
		}

		It("titles a new session with the agent name", func() {
			h := acquire(func(r *convmem.Request) { r.Workflow = workflow })
			Expect(h.EnsureSession(ctx, "")).To(Succeed())

			s, err := driver.GetSession(ctx, "session-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Title).To(Equal("Helpdesk"))
			Expect(s.AgentName).To(Equal("Helpdesk"))
			Expect(*s.WorkflowID).To(Equal("wf-1"))
			Expect(s.OwnerID).To(Equal("user-1"))
		})

		It("uses an explicit title", func() {
			h := acquire(nil)
			Expect(h.EnsureSession(ctx, "Billing question")).To(Succeed())

			s, err := driver.GetSession(ctx, "session-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Title).To(Equal("Billing question"))
			Expect(s.AgentName).To(Equal(convmem.DefaultAgentName))
			Expect(s.WorkflowID).To(BeNil())
		})

		It("creates exactly one session under concurrent calls", func() {
			var wg sync.WaitGroup
			errs := make(chan error, 10)
			for range 10 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					h, err := svc.Acquire(ctx, convmem.Request{
						Workflow:     workflow,
						Node:         convmem.NodeDescriptor{Type: convmem.NodeTypeChatHubMemory},
						SessionID:    "session-1",
						MemoryNodeID: "node-1",
						OwnerID:      "user-1",
					})
					Expect(err).NotTo(HaveOccurred())
					errs <- h.EnsureSession(ctx, "")
				}()
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := driver.GetSession(ctx, "session-1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("refuses a session owned by another user", func() {
			Expect(acquire(nil).EnsureSession(ctx, "")).To(Succeed())
			h := acquire(func(r *convmem.Request) { r.OwnerID = "user-2" })
			Expect(h.EnsureSession(ctx, "")).To(MatchError(session.ErrOwnerMismatch))
		})
	})
})

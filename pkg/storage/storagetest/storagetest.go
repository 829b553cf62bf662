// Package storagetest holds the behaviour every storage.Driver must share.
// Driver packages register it from their own ginkgo suites.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/branchmem/pkg/chat"
	"github.com/papercomputeco/branchmem/pkg/memory"
	"github.com/papercomputeco/branchmem/pkg/storage"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// NewEntry builds a memory entry for the default test partition; second is the
// offset from a fixed epoch.
func NewEntry(id, correlationID, role string, second int) *memory.Entry {
	return &memory.Entry{
		ID:            id,
		SessionID:     "session-1",
		MemoryNodeID:  "node-1",
		CorrelationID: correlationID,
		Role:          role,
		Content:       "content " + id,
		CreatedAt:     epoch.Add(time.Duration(second) * time.Second),
	}
}

// NewMessage builds a chat message for "session-1".
func NewMessage(id, parent, role, turn string, second int) *chat.Message {
	m := &chat.Message{
		ID:        id,
		SessionID: "session-1",
		Role:      role,
		CreatedAt: epoch.Add(time.Duration(second) * time.Second),
	}
	if parent != "" {
		m.ParentID = &parent
	}
	if turn != "" {
		m.TurnID = &turn
	}
	return m
}

func entryIDs(entries []*memory.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

// DescribeDriver registers the shared driver tests. newDriver is called once
// per test and the returned driver is closed afterwards.
func DescribeDriver(name string, newDriver func() storage.Driver) bool {
	return Describe(name+" conformance", func() {
		var (
			driver storage.Driver
			ctx    context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			driver = nil
			driver = newDriver()
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
			}
		})

		Describe("messages", func() {
			It("lists a session log in insertion order", func() {
				Expect(driver.AppendMessage(ctx, NewMessage("h1", "", chat.RoleHuman, "", 0))).To(Succeed())
				Expect(driver.AppendMessage(ctx, NewMessage("a1", "h1", chat.RoleAI, "t1", 0))).To(Succeed())
				Expect(driver.AppendMessage(ctx, NewMessage("a1r", "h1", chat.RoleAI, "", 0))).To(Succeed())

				msgs, err := driver.ListMessages(ctx, "session-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(msgs).To(HaveLen(3))
				Expect(msgs[0].ID).To(Equal("h1"))
				Expect(msgs[0].ParentID).To(BeNil())
				Expect(msgs[1].ID).To(Equal("a1"))
				Expect(*msgs[1].ParentID).To(Equal("h1"))
				Expect(msgs[1].Turn()).To(Equal("t1"))
				Expect(msgs[2].ID).To(Equal("a1r"))
				Expect(msgs[2].TurnID).To(BeNil())
				Expect(msgs[0].CreatedAt.Equal(epoch)).To(BeTrue())
			})

			It("returns an empty log for an unknown session", func() {
				msgs, err := driver.ListMessages(ctx, "nope")
				Expect(err).NotTo(HaveOccurred())
				Expect(msgs).To(BeEmpty())
			})

			It("rejects a duplicate message id", func() {
				Expect(driver.AppendMessage(ctx, NewMessage("h1", "", chat.RoleHuman, "", 0))).To(Succeed())
				err := driver.AppendMessage(ctx, NewMessage("h1", "", chat.RoleHuman, "", 1))
				Expect(err).To(MatchError(storage.ErrAlreadyExists))
			})
		})

		Describe("sessions", func() {
			It("creates and reads back a session", func() {
				workflow := "wf-1"
				Expect(driver.CreateSession(ctx, &chat.Session{
					ID:            "session-1",
					OwnerID:       "user-1",
					Title:         "Support bot",
					LastMessageAt: epoch,
					WorkflowID:    &workflow,
					AgentName:     "Support bot",
				})).To(Succeed())

				s, err := driver.GetSession(ctx, "session-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(s.OwnerID).To(Equal("user-1"))
				Expect(s.Title).To(Equal("Support bot"))
				Expect(*s.WorkflowID).To(Equal("wf-1"))
				Expect(s.LastMessageAt.Equal(epoch)).To(BeTrue())
			})

			It("returns NotFoundError for a missing session", func() {
				_, err := driver.GetSession(ctx, "missing")
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})

			It("reports a duplicate id as ErrAlreadyExists", func() {
				s := &chat.Session{ID: "session-1", OwnerID: "user-1", LastMessageAt: epoch}
				Expect(driver.CreateSession(ctx, s)).To(Succeed())
				Expect(driver.CreateSession(ctx, s)).To(MatchError(storage.ErrAlreadyExists))
			})
		})

		Describe("memory entries", func() {
			BeforeEach(func() {
				Expect(driver.AppendEntry(ctx, NewEntry("e1", "t1", memory.RoleHuman, 0))).To(Succeed())
				Expect(driver.AppendEntry(ctx, NewEntry("e2", "t1", memory.RoleAI, 1))).To(Succeed())
				Expect(driver.AppendEntry(ctx, NewEntry("e3", "t2", memory.RoleHuman, 2))).To(Succeed())
				Expect(driver.AppendEntry(ctx, NewEntry("e4", "t2", memory.RoleTool, 3))).To(Succeed())
				Expect(driver.AppendEntry(ctx, NewEntry("e5", "t3", memory.RoleHuman, 4))).To(Succeed())

				other := NewEntry("x1", "t1", memory.RoleHuman, 0)
				other.MemoryNodeID = "node-2"
				Expect(driver.AppendEntry(ctx, other)).To(Succeed())
			})

			It("lists the whole partition in creation order", func() {
				entries, err := driver.ListEntries(ctx, "session-1", "node-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(entryIDs(entries)).To(Equal([]string{"e1", "e2", "e3", "e4", "e5"}))
				Expect(entries[3].Role).To(Equal(memory.RoleTool))
				Expect(entries[0].Content).To(Equal("content e1"))
			})

			It("filters by correlation id in creation order across ids", func() {
				entries, err := driver.ListEntriesByCorrelation(ctx, "session-1", "node-1", []string{"t3", "t1"})
				Expect(err).NotTo(HaveOccurred())
				Expect(entryIDs(entries)).To(Equal([]string{"e1", "e2", "e5"}))
			})

			It("returns nothing for an empty id set", func() {
				entries, err := driver.ListEntriesByCorrelation(ctx, "session-1", "node-1", nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(BeEmpty())
			})

			It("isolates memory nodes", func() {
				entries, err := driver.ListEntries(ctx, "session-1", "node-2")
				Expect(err).NotTo(HaveOccurred())
				Expect(entryIDs(entries)).To(Equal([]string{"x1"}))
			})

			It("rejects a duplicate entry id", func() {
				err := driver.AppendEntry(ctx, NewEntry("e1", "t9", memory.RoleHuman, 9))
				Expect(err).To(MatchError(storage.ErrAlreadyExists))
			})

			It("rejects an invalid entry", func() {
				err := driver.AppendEntry(ctx, NewEntry("e9", "", memory.RoleHuman, 9))
				Expect(err).To(HaveOccurred())
			})

			It("clears one partition idempotently", func() {
				n, err := driver.ClearEntries(ctx, "session-1", "node-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(5))

				entries, err := driver.ListEntries(ctx, "session-1", "node-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(BeEmpty())

				n, err = driver.ClearEntries(ctx, "session-1", "node-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(0))

				entries, err = driver.ListEntries(ctx, "session-1", "node-2")
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
			})

			It("accepts concurrent appends to one partition", func() {
				var wg sync.WaitGroup
				errs := make(chan error, 20)
				for i := range 20 {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						defer GinkgoRecover()
						errs <- driver.AppendEntry(ctx, NewEntry(fmt.Sprintf("c%02d", i), "t4", memory.RoleTool, 10+i))
					}(i)
				}
				wg.Wait()
				close(errs)

				for err := range errs {
					Expect(err).NotTo(HaveOccurred())
				}

				entries, err := driver.ListEntriesByCorrelation(ctx, "session-1", "node-1", []string{"t4"})
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(20))
				Expect(entries[0].ID).To(Equal("c00"))
				Expect(entries[19].ID).To(Equal("c19"))
			})
		})
	})
}

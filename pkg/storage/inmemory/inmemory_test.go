package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/branchmem/pkg/chat"
	"github.com/papercomputeco/branchmem/pkg/memory"
	"github.com/papercomputeco/branchmem/pkg/storage"
	"github.com/papercomputeco/branchmem/pkg/storage/inmemory"
	"github.com/papercomputeco/branchmem/pkg/storage/storagetest"
)

var _ = storagetest.DescribeDriver("inmemory", func() storage.Driver {
	return inmemory.NewDriver()
})

var _ = Describe("Driver", func() {
	var (
		driver *inmemory.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		driver = inmemory.NewDriver()
		ctx = context.Background()
	})

	It("rejects nil messages and sessions", func() {
		Expect(driver.AppendMessage(ctx, nil)).To(MatchError(ContainSubstring("nil message")))
		Expect(driver.CreateSession(ctx, nil)).To(MatchError(ContainSubstring("nil session")))
		Expect(driver.AppendEntry(ctx, nil)).To(MatchError(memory.ErrNilEntry))
	})

	It("returns copies so callers cannot mutate stored rows", func() {
		Expect(driver.AppendMessage(ctx, storagetest.NewMessage("h1", "", chat.RoleHuman, "", 0))).To(Succeed())

		msgs, err := driver.ListMessages(ctx, "session-1")
		Expect(err).NotTo(HaveOccurred())
		msgs[0].Role = chat.RoleAI

		msgs, err = driver.ListMessages(ctx, "session-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs[0].Role).To(Equal(chat.RoleHuman))
	})

	It("frees cleared entry ids for reuse", func() {
		Expect(driver.AppendEntry(ctx, storagetest.NewEntry("e1", "t1", memory.RoleHuman, 0))).To(Succeed())
		_, err := driver.ClearEntries(ctx, "session-1", "node-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(driver.AppendEntry(ctx, storagetest.NewEntry("e1", "t1", memory.RoleHuman, 0))).To(Succeed())
	})
})

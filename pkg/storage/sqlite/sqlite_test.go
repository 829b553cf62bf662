package sqlite_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/branchmem/pkg/chat"
	"github.com/papercomputeco/branchmem/pkg/memory"
	"github.com/papercomputeco/branchmem/pkg/storage"
	"github.com/papercomputeco/branchmem/pkg/storage/sqlite"
	"github.com/papercomputeco/branchmem/pkg/storage/storagetest"
)

var _ = storagetest.DescribeDriver("sqlite", func() storage.Driver {
	d, err := sqlite.NewSQLiteDriver(context.Background(), ":memory:")
	Expect(err).NotTo(HaveOccurred())
	return d
})

var _ = storagetest.DescribeDriver("sqlite file", func() storage.Driver {
	d, err := sqlite.NewSQLiteDriver(context.Background(), filepath.Join(GinkgoT().TempDir(), "conformance.db"))
	Expect(err).NotTo(HaveOccurred())
	return d
})

var _ = Describe("SQLite Driver", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("creates a file database and keeps rows across reopen", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "branchmem.db")

		d, err := sqlite.NewSQLiteDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.AppendMessage(ctx, storagetest.NewMessage("h1", "", chat.RoleHuman, "", 0))).To(Succeed())
		Expect(d.AppendEntry(ctx, storagetest.NewEntry("e1", "t1", memory.RoleHuman, 0))).To(Succeed())
		Expect(d.Close()).To(Succeed())

		_, err = os.Stat(dbPath)
		Expect(err).NotTo(HaveOccurred())

		// Migration is re-run on open and must be a no-op for existing tables
		d, err = sqlite.NewSQLiteDriver(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		msgs, err := d.ListMessages(ctx, "session-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(1))

		entries, err := d.ListEntries(ctx, "session-1", "node-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
	})

	DescribeTable("enables foreign keys and the busy timeout on every connection",
		func(dbPath func() string) {
			d, err := sqlite.NewSQLiteDriver(ctx, dbPath())
			Expect(err).NotTo(HaveOccurred())
			defer d.Close()

			db := d.Driver.DB()
			for range 3 {
				conn, err := db.Conn(ctx)
				Expect(err).NotTo(HaveOccurred())

				var fk, timeout int
				Expect(conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk)).To(Succeed())
				Expect(conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout)).To(Succeed())
				Expect(fk).To(Equal(1))
				Expect(timeout).To(Equal(5000))
				Expect(conn.Close()).To(Succeed())
			}
		},
		Entry("in memory", func() string { return ":memory:" }),
		Entry("on disk", func() string { return filepath.Join(GinkgoT().TempDir(), "pragmas.db") }),
	)

	It("builds the DSN with the connection parameters", func() {
		Expect(sqlite.DSN(":memory:")).To(Equal(":memory:?_fk=1&_busy_timeout=5000"))
		Expect(sqlite.DSN("/tmp/b.db")).To(Equal("/tmp/b.db?_fk=1&_busy_timeout=5000&_journal_mode=WAL"))
		Expect(sqlite.DSN("file:/tmp/b.db?mode=rwc")).To(Equal("file:/tmp/b.db?mode=rwc&_fk=1&_busy_timeout=5000&_journal_mode=WAL"))
	})

	It("does not treat unrelated errors as duplicates", func() {
		Expect(sqlite.IsDuplicate(errors.New("boom"))).To(BeFalse())
	})
})

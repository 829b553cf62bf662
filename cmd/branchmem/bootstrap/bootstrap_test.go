package bootstrap_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/branchmem/cmd/branchmem/bootstrap"
	"github.com/papercomputeco/branchmem/pkg/config"
	"github.com/papercomputeco/branchmem/pkg/dotdir"
	"github.com/papercomputeco/branchmem/pkg/eventstream/kafka"
	"github.com/papercomputeco/branchmem/pkg/eventstream/nop"
	"github.com/papercomputeco/branchmem/pkg/history"
	"github.com/papercomputeco/branchmem/pkg/logger"
	"github.com/papercomputeco/branchmem/pkg/storage/inmemory"
)

var _ = Describe("Bootstrap", func() {
	var (
		cfg *config.Config
		dir string
	)

	BeforeEach(func() {
		cfg = config.NewDefaultConfig()
		dir = GinkgoT().TempDir()
	})

	Describe("ResolveSQLitePath", func() {
		It("keeps absolute paths and :memory:", func() {
			abs := filepath.Join(dir, "db.sqlite")
			Expect(bootstrap.ResolveSQLitePath(abs, dir)).To(Equal(abs))
			Expect(bootstrap.ResolveSQLitePath(":memory:", dir)).To(Equal(":memory:"))
		})

		It("places relative paths in the config dir", func() {
			path, err := bootstrap.ResolveSQLitePath("branchmem-test-missing.sqlite", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal(filepath.Join(dir, "branchmem-test-missing.sqlite")))
		})

		It("prefers an existing file in the working directory", func() {
			wd, err := os.Getwd()
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Chdir(dir)).To(Succeed())
			DeferCleanup(func() { Expect(os.Chdir(wd)).To(Succeed()) })

			Expect(os.WriteFile("local.sqlite", nil, 0o600)).To(Succeed())
			Expect(bootstrap.ResolveSQLitePath("local.sqlite", filepath.Join(dir, "conf"))).To(Equal("local.sqlite"))
		})
	})

	Describe("OpenDriver", func() {
		It("opens the in-memory driver", func() {
			cfg.Storage.Driver = config.StorageInMemory
			driver, err := bootstrap.OpenDriver(context.Background(), cfg, dir, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(driver).To(BeAssignableToTypeOf(&inmemory.Driver{}))
		})

		It("opens a SQLite database in the config dir", func() {
			cfg.Storage.SQLitePath = "memory.sqlite"
			driver, err := bootstrap.OpenDriver(context.Background(), cfg, dir, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(driver.Close)

			_, err = os.Stat(filepath.Join(dir, "memory.sqlite"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("requires a DSN for postgres", func() {
			cfg.Storage.Driver = config.StoragePostgres
			_, err := bootstrap.OpenDriver(context.Background(), cfg, dir, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("postgres_dsn")))
		})

		It("rejects unknown drivers", func() {
			cfg.Storage.Driver = "cassandra"
			_, err := bootstrap.OpenDriver(context.Background(), cfg, dir, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("unknown storage driver")))
		})
	})

	Describe("NewPublisher", func() {
		It("defaults to the nop publisher", func() {
			p, err := bootstrap.NewPublisher(cfg, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(BeAssignableToTypeOf(&nop.Publisher{}))
		})

		It("creates a kafka publisher", func() {
			cfg.EventStream.Provider = config.EventStreamKafka
			cfg.EventStream.Brokers = []string{"localhost:9092"}
			p, err := bootstrap.NewPublisher(cfg, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(p.Close)
			Expect(p.(*kafka.Publisher).Topic()).To(Equal(cfg.EventStream.Topic))
		})

		It("requires kafka brokers", func() {
			cfg.EventStream.Provider = config.EventStreamKafka
			_, err := bootstrap.NewPublisher(cfg, logger.Nop())
			Expect(err).To(MatchError(kafka.ErrNoBrokers))
		})

		It("rejects unknown providers", func() {
			cfg.EventStream.Provider = "nats"
			_, err := bootstrap.NewPublisher(cfg, logger.Nop())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("NewService", func() {
		It("applies the configured scheme and toggle", func() {
			cfg.Memory.Scheme = string(history.SchemeParentMessage)
			cfg.Memory.Enabled = false
			svc, err := bootstrap.NewService(cfg, inmemory.NewDriver(), nop.NewPublisher(), logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.Scheme()).To(Equal(history.SchemeParentMessage))
			Expect(svc.Enabled()).To(BeFalse())
		})

		It("rejects unknown schemes", func() {
			cfg.Memory.Scheme = "sibling"
			_, err := bootstrap.NewService(cfg, inmemory.NewDriver(), nop.NewPublisher(), logger.Nop())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("NewLogger", func() {
		It("follows the level var", func() {
			level := new(slog.LevelVar)
			log, f, err := bootstrap.NewLogger(cfg, level)
			Expect(err).NotTo(HaveOccurred())
			Expect(f).To(BeNil())
			Expect(log.Enabled(context.Background(), slog.LevelDebug)).To(BeFalse())

			level.Set(slog.LevelDebug)
			Expect(log.Enabled(context.Background(), slog.LevelDebug)).To(BeTrue())
		})

		It("also writes JSON to the log file", func() {
			cfg.Log.File = filepath.Join(dir, "branchmem.log")
			log, f, err := bootstrap.NewLogger(cfg, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(f).NotTo(BeNil())

			log.Info("hello file", "session_id", "s1")
			Expect(f.Close()).To(Succeed())

			data, err := os.ReadFile(cfg.Log.File)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"msg":"hello file"`))
			Expect(string(data)).To(ContainSubstring(`"session_id":"s1"`))
		})

		It("fails when the log file cannot be opened", func() {
			cfg.Log.File = filepath.Join(dir, "missing", "branchmem.log")
			_, _, err := bootstrap.NewLogger(cfg, nil)
			Expect(err).To(MatchError(ContainSubstring("opening log file")))
		})
	})
})

var _ = Describe("Open", func() {
	It("builds a runtime over the configured components", func() {
		cfg := config.NewDefaultConfig()
		cfg.Storage.Driver = config.StorageInMemory
		cfg.Log.JSON = true

		rt, err := bootstrap.Open(context.Background(), cfg, GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		Expect(rt.Service.Enabled()).To(BeTrue())
		Expect(rt.Close()).To(Succeed())
	})

	It("fails on a bad scheme", func() {
		cfg := config.NewDefaultConfig()
		cfg.Storage.Driver = config.StorageInMemory
		cfg.Memory.Scheme = "nope"

		_, err := bootstrap.Open(context.Background(), cfg, GinkgoT().TempDir())
		Expect(err).To(MatchError(ContainSubstring("creating memory service")))
	})
})

var _ = Describe("ResolveHead", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("prefers the explicit head", func() {
		Expect(bootstrap.ResolveHead("m9", "s1", dir)).To(Equal("m9"))
	})

	It("falls back to the pinned head", func() {
		Expect(dotdir.NewManager().Checkout("s1", "m3", dir)).To(Succeed())
		Expect(bootstrap.ResolveHead("", "s1", dir)).To(Equal("m3"))
		Expect(bootstrap.ResolveHead("", "s2", dir)).To(BeEmpty())
	})

	It("returns empty without checkout state", func() {
		Expect(bootstrap.ResolveHead("", "s1", dir)).To(BeEmpty())
	})
})

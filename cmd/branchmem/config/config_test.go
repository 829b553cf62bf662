package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/branchmem/cmd/branchmem/config"
	"github.com/papercomputeco/branchmem/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
		out     *bytes.Buffer
	)

	run := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		var err error
		tmpDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// Create a local .branchmem dir so the manager picks it up
		err = os.MkdirAll(filepath.Join(tmpDir, ".branchmem"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			Expect(run("set", "memory.scheme", "parent_message")).To(Succeed())

			data, err := os.ReadFile(filepath.Join(tmpDir, ".branchmem", "config.toml"))
			Expect(err).NotTo(HaveOccurred())

			cfg, err := config.ParseConfigTOML(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Memory.Scheme).To(Equal("parent_message"))
		})

		It("persists disabling the memory module", func() {
			Expect(run("set", "memory.enabled", "false")).To(Succeed())

			data, err := os.ReadFile(filepath.Join(tmpDir, ".branchmem", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("enabled = false"))
		})

		It("rejects unknown keys", func() {
			Expect(run("set", "invalid_key", "value")).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("requires exactly two arguments", func() {
			Expect(run("set", "memory.scheme")).To(HaveOccurred())
		})

		It("rejects zero arguments", func() {
			Expect(run("set")).To(HaveOccurred())
		})

		It("rejects invalid enum values", func() {
			Expect(run("set", "memory.scheme", "sibling")).To(HaveOccurred())
		})

		It("rejects invalid bool values", func() {
			Expect(run("set", "log.debug", "maybe")).To(HaveOccurred())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			Expect(run("set", "storage.driver", "postgres")).To(Succeed())

			out.Reset()
			Expect(run("get", "storage.driver")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("postgres"))
		})

		It("reports the default for an unset key", func() {
			Expect(run("get", "memory.scheme")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("turn"))
		})

		It("rejects unknown keys", func() {
			Expect(run("get", "invalid_key")).To(HaveOccurred())
		})

		It("requires exactly one argument", func() {
			Expect(run("get")).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key when no config exists", func() {
			Expect(run("list")).To(Succeed())
			for _, key := range config.ValidConfigKeys() {
				Expect(out.String()).To(ContainSubstring(key))
			}
		})

		It("shows set values", func() {
			Expect(run("set", "eventstream.brokers", "k1:9092, k2:9092")).To(Succeed())

			out.Reset()
			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring(`"k1:9092,k2:9092"`))
		})

		It("rejects any arguments", func() {
			Expect(run("list", "extra")).To(HaveOccurred())
		})
	})
})

package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/branchmem/pkg/cliui"
)

var _ = Describe("cliui", func() {
	It("formats durations", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})

	It("marks results", func() {
		Expect(cliui.Mark(nil)).To(Equal(cliui.SuccessMark))
		Expect(cliui.Mark(errors.New("x"))).To(Equal(cliui.FailMark))
	})

	It("returns the step's error and prints the final line", func() {
		var buf bytes.Buffer
		err := cliui.Step(&buf, "opening storage", func() error { return errors.New("boom") })
		Expect(err).To(MatchError("boom"))
		Expect(buf.String()).To(ContainSubstring("opening storage"))
	})

	It("renders known and unknown roles", func() {
		Expect(cliui.Role("ai")).To(ContainSubstring("ai"))
		Expect(cliui.Role("narrator")).To(ContainSubstring("narrator"))
	})

	It("renders markdown", func() {
		out, err := cliui.RenderMarkdown("# Title\n\nbody")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Title"))
	})
})

package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/branchmem/pkg/eventstream"
)

var _ = Describe("Event", func() {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))

	It("marshals an appended event with expected top-level keys", func() {
		event := eventstream.NewAppendedEvent("s1", "n1", "turn-1",
			eventstream.EntryMeta{ID: "e1", Role: "tool", Name: "search"}, now)

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKeyWithValue("event_type", eventstream.EventTypeMemoryAppended))
		Expect(got).To(HaveKeyWithValue("session_id", "s1"))
		Expect(got).To(HaveKeyWithValue("memory_node_id", "n1"))
		Expect(got).To(HaveKeyWithValue("correlation_id", "turn-1"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("entry"))
		Expect(got).NotTo(HaveKey("removed"))
	})

	It("builds cleared events without entry metadata", func() {
		event := eventstream.NewClearedEvent("s1", "n1", 3, now)
		Expect(event.EventType).To(Equal(eventstream.EventTypeMemoryCleared))
		Expect(event.Removed).To(Equal(3))
		Expect(event.Entry).To(BeNil())
		Expect(event.EmittedAt.Location()).To(Equal(time.UTC))
	})

	It("assigns unique event ids", func() {
		a := eventstream.NewClearedEvent("s1", "n1", 0, now)
		b := eventstream.NewClearedEvent("s1", "n1", 0, now)
		Expect(a.EventID).NotTo(BeEmpty())
		Expect(a.EventID).NotTo(Equal(b.EventID))
	})

	It("keys events by session and memory node", func() {
		event := eventstream.NewClearedEvent("s1", "n1", 0, now)
		Expect(event.Key()).To(Equal("s1/n1"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeMemoryAppended).To(Equal("branchmem.memory.appended"))
		Expect(eventstream.EventTypeMemoryCleared).To(Equal("branchmem.memory.cleared"))
	})

	It("provides ErrNilMemoryEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilMemoryEvent).To(MatchError("nil memory event"))
	})
})

package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/branchmem/pkg/eventstream"
	"github.com/papercomputeco/branchmem/pkg/eventstream/kafka"
)

type captureWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		writer *captureWriter
		pub    *kafka.Publisher
		now    time.Time
	)

	BeforeEach(func() {
		var err error
		writer = &captureWriter{}
		pub, err = kafka.NewPublisher(kafka.Config{Topic: "memory-events", Writer: writer})
		Expect(err).NotTo(HaveOccurred())
		now = time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	})

	It("requires brokers when no writer is supplied", func() {
		_, err := kafka.NewPublisher(kafka.Config{Brokers: []string{" ", ""}})
		Expect(err).To(MatchError(kafka.ErrNoBrokers))
	})

	It("builds a writer from brokers", func() {
		p, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Topic()).To(Equal(kafka.DefaultTopic))
		Expect(p.Close()).To(Succeed())
	})

	It("rejects nil events", func() {
		Expect(pub.PublishMemory(context.Background(), nil)).To(MatchError(eventstream.ErrNilMemoryEvent))
		Expect(writer.messages).To(BeEmpty())
	})

	It("writes JSON keyed by session and node", func() {
		event := eventstream.NewAppendedEvent("s1", "n1", "turn-1",
			eventstream.EntryMeta{ID: "e1", Role: "ai"}, now)
		Expect(pub.PublishMemory(context.Background(), event)).To(Succeed())

		Expect(writer.messages).To(HaveLen(1))
		msg := writer.messages[0]
		Expect(string(msg.Key)).To(Equal("s1/n1"))
		Expect(msg.Time).To(Equal(now))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{
			Key:   "event_type",
			Value: []byte(eventstream.EventTypeMemoryAppended),
		}))

		var decoded eventstream.MemoryEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.EventID).To(Equal(event.EventID))
		Expect(decoded.Entry.ID).To(Equal("e1"))
	})

	It("wraps writer failures", func() {
		writer.err = errors.New("leader not available")
		err := pub.PublishMemory(context.Background(), eventstream.NewClearedEvent("s1", "n1", 1, now))
		Expect(err).To(MatchError(ContainSubstring("memory-events")))
		Expect(errors.Unwrap(err)).To(MatchError("leader not available"))
	})

	It("closes the writer", func() {
		Expect(pub.Close()).To(Succeed())
		Expect(writer.closed).To(BeTrue())
	})
})

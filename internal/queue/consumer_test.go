package queue_test

import (
	"github.com/redis/go-redis/v9"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lalalland/topcoder-x-processor/internal/queue"
)

var _ = Describe("ParseMessage", func() {
	It("decodes a full message", func() {
		msg, err := queue.ParseMessage(redis.XMessage{
			ID: "1-0",
			Values: map[string]any{
				"event_type":         "issue.closed",
				"provider":           "github",
				"payload":            `{"event":"issue.closed"}`,
				"attempt":            "2",
				"payment_successful": "1",
				"trace_id":           "abc123",
			},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(msg.EventType).To(Equal("issue.closed"))
		Expect(msg.Provider).To(Equal("github"))
		Expect(msg.Attempt).To(Equal(2))
		Expect(msg.PaymentSuccessful).To(BeTrue())
		Expect(msg.TraceID).To(Equal("abc123"))
	})

	It("defaults a missing attempt to 1", func() {
		msg, err := queue.ParseMessage(redis.XMessage{
			ID: "1-0",
			Values: map[string]any{
				"event_type": "issue.created",
				"provider":   "gitlab",
				"payload":    `{}`,
			},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(msg.Attempt).To(Equal(1))
		Expect(msg.PaymentSuccessful).To(BeFalse())
	})

	It("rejects a message without a payload", func() {
		_, err := queue.ParseMessage(redis.XMessage{
			ID: "1-0",
			Values: map[string]any{
				"event_type": "issue.created",
				"provider":   "github",
			},
		})
		Expect(err).To(HaveOccurred())
	})
})

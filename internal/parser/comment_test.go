package parser_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lalalland/topcoder-x-processor/internal/parser"
)

var _ = Describe("ParseComment", func() {
	It("recognizes a bid command", func() {
		parsed, err := parser.ParseComment("/bid $150")
		Expect(err).ToNot(HaveOccurred())
		Expect(parsed.IsBid).To(BeTrue())
		Expect(*parsed.BidAmount).To(Equal(150))
		Expect(parsed.IsAcceptBid).To(BeFalse())
	})

	It("recognizes an accept_bid command", func() {
		parsed, err := parser.ParseComment("/accept_bid @alice $200")
		Expect(err).ToNot(HaveOccurred())
		Expect(parsed.IsAcceptBid).To(BeTrue())
		Expect(*parsed.AssignedUser).To(Equal("alice"))
		Expect(*parsed.AcceptedBidAmount).To(Equal(200))
		Expect(parsed.IsBid).To(BeFalse())
	})

	It("processes both commands in one comment", func() {
		parsed, err := parser.ParseComment("/accept_bid @bob $75 and I also /bid $80")
		Expect(err).ToNot(HaveOccurred())
		Expect(parsed.IsBid).To(BeTrue())
		Expect(*parsed.BidAmount).To(Equal(80))
		Expect(parsed.IsAcceptBid).To(BeTrue())
		Expect(*parsed.AssignedUser).To(Equal("bob"))
	})

	It("fails on /bid without an amount", func() {
		_, err := parser.ParseComment("/bid for me please")
		Expect(err).To(HaveOccurred())
	})

	It("fails on /accept_bid without an amount", func() {
		_, err := parser.ParseComment("/accept_bid @alice")
		Expect(err).To(HaveOccurred())
	})

	It("treats a plain comment as no command", func() {
		parsed, err := parser.ParseComment("looks good to me")
		Expect(err).ToNot(HaveOccurred())
		Expect(parsed.IsBid).To(BeFalse())
		Expect(parsed.IsAcceptBid).To(BeFalse())
	})
})

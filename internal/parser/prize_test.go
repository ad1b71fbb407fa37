package parser_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lalalland/topcoder-x-processor/internal/parser"
)

var _ = Describe("ParsePrizes", func() {
	It("extracts a single prize and strips the bracket segment", func() {
		prizes, title, err := parser.ParsePrizes("[$100] Fix typo")
		Expect(err).ToNot(HaveOccurred())
		Expect(prizes).To(Equal([]int{100}))
		Expect(title).To(Equal("Fix typo"))
	})

	It("extracts multiple prizes in left-to-right order", func() {
		prizes, title, err := parser.ParsePrizes("[$500][$300] Fix bug")
		Expect(err).ToNot(HaveOccurred())
		Expect(prizes).To(Equal([]int{500, 300}))
		Expect(title).To(Equal("Fix bug"))
	})

	It("ignores dollar tokens after the bracket region", func() {
		prizes, title, err := parser.ParsePrizes("[$250] Costs $40 to reproduce")
		Expect(err).ToNot(HaveOccurred())
		Expect(prizes).To(Equal([]int{250}))
		Expect(title).To(Equal("Costs $40 to reproduce"))
	})

	It("fails when the title carries no prize", func() {
		_, _, err := parser.ParsePrizes("Fix bug")
		var parseErr *parser.ParseError
		Expect(err).To(HaveOccurred())
		Expect(errors.As(err, &parseErr)).To(BeTrue())
	})

	It("fails when a dollar token is never closed by a bracket", func() {
		_, _, err := parser.ParsePrizes("Fix bug for $100")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("StripPrizeTag", func() {
	It("removes the leading bracket segment", func() {
		Expect(parser.StripPrizeTag("[$100] Fix typo")).To(Equal("Fix typo"))
	})

	It("leaves an untagged title alone", func() {
		Expect(parser.StripPrizeTag("Fix typo")).To(Equal("Fix typo"))
	})
})

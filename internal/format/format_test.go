package format

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

func TestFormat(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Format Suite")
}

var _ = Describe("Format", func() {
	Describe("ParseDate", func() {
		It("should parse a valid calendar date", func() {
			d, err := ParseDate("2024-02-29")
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)))
		})

		It("should reject an impossible calendar date", func() {
			_, err := ParseDate("2024-02-30")
			Expect(err).To(HaveOccurred())
		})

		It("should reject other layouts", func() {
			_, err := ParseDate("02/03/2024")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("FormatDate", func() {
		date := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)

		DescribeTable("formats per language",
			func(lang, expected string) {
				Expect(FormatDate(date, lang)).To(Equal(expected))
			},
			Entry("english", "en", "03/07/2024"),
			Entry("spanish", "es", "07/03/2024"),
			Entry("german", "de", "07.03.2024"),
			Entry("japanese", "ja", "2024/03/07"),
			Entry("unknown falls back to english", "xx", "03/07/2024"),
		)
	})

	Describe("ValidEmail", func() {
		DescribeTable("structural check",
			func(email string, valid bool) {
				Expect(ValidEmail(email)).To(Equal(valid))
			},
			Entry("plain address", "jane@example.com", true),
			Entry("subdomain", "jane.doe@mail.example.co", true),
			Entry("no at sign", "not-an-email", false),
			Entry("two at signs", "a@b@example.com", false),
			Entry("empty local part", "@example.com", false),
			Entry("domain without dot", "jane@localhost", false),
			Entry("domain starting with dot", "jane@.com", false),
			Entry("domain ending with dot", "jane@example.", false),
			Entry("whitespace", "jane doe@example.com", false),
		)
	})

	Describe("ParseCurrency", func() {
		allowed := []string{"USD", "EUR", "JPY"}

		It("should normalise an allowed code", func() {
			code, err := ParseCurrency(" eur ", allowed)
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal("EUR"))
		})

		It("should reject a valid ISO code that is not allowed", func() {
			_, err := ParseCurrency("CHF", allowed)
			Expect(err).To(MatchError(ContainSubstring("not allowed")))
		})

		It("should reject an unknown code", func() {
			_, err := ParseCurrency("ZZZ", allowed)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("CurrencyScale", func() {
		It("should know currencies without minor units", func() {
			Expect(CurrencyScale("JPY")).To(Equal(int32(0)))
			Expect(CurrencyScale("USD")).To(Equal(int32(2)))
		})
	})

	Describe("FormatCurrency", func() {
		DescribeTable("formats amounts",
			func(amount, code, expected string) {
				Expect(FormatCurrency(decimal.RequireFromString(amount), code)).To(Equal(expected))
			},
			Entry("dollars with grouping", "1234.5", "USD", "$1,234.50"),
			Entry("small dollars", "9.99", "USD", "$9.99"),
			Entry("pounds", "1000000", "GBP", "£1,000,000.00"),
			Entry("euros", "1234.5", "EUR", "€1 234,50"),
			Entry("yen rounds to whole units", "1234.5", "JPY", "¥1,235"),
			Entry("other codes use the code as prefix", "12", "CNY", "CNY 12.00"),
			Entry("negative amounts", "-42.1", "USD", "-$42.10"),
		)
	})

	Describe("MatchLanguage", func() {
		It("should match regional tags to the base language", func() {
			Expect(MatchLanguage("es-MX")).To(Equal("es"))
			Expect(MatchLanguage("en-GB")).To(Equal("en"))
		})

		It("should accept the legacy jp code", func() {
			Expect(MatchLanguage("jp")).To(Equal("ja"))
		})

		It("should reject malformed tags", func() {
			_, err := MatchLanguage("!!")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("IsRTL", func() {
		It("should detect right-to-left languages", func() {
			Expect(IsRTL("ar")).To(BeTrue())
			Expect(IsRTL("he-IL")).To(BeTrue())
			Expect(IsRTL("en")).To(BeFalse())
		})
	})
})

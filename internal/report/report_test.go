package report

import (
	"context"
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/apperr"
	"github.com/zombor/expense-tracker/internal/expense"
)

func TestReport(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Report Suite")
}

// mockLister is a mock implementation of Lister
type mockLister struct {
	reports    []*expense.Report
	err        error
	lastFilter expense.Filter
}

func (m *mockLister) List(ctx context.Context, f expense.Filter) ([]*expense.Report, error) {
	m.lastFilter = f
	return m.reports, m.err
}

func rep(date string, cat expense.Category, amount, currency string, status expense.Status) *expense.Report {
	return &expense.Report{
		ID:          date + string(cat),
		Date:        date,
		Category:    cat,
		Amount:      decimal.RequireFromString(amount),
		Currency:    currency,
		Description: "item",
		Status:      status,
	}
}

var _ = Describe("Report", func() {
	var reports []*expense.Report

	BeforeEach(func() {
		reports = []*expense.Report{
			rep("2024-03-05", expense.CategoryMeals, "12.50", "USD", expense.StatusApproved),
			rep("2024-03-02", expense.CategoryMeals, "7.25", "USD", expense.StatusPending),
			rep("2024-03-03", expense.CategoryLodging, "200", "EUR", expense.StatusPending),
			rep("2024-04-01", expense.CategoryLodging, "999", "USD", expense.StatusPending),
		}
	})

	Describe("Summarize", func() {
		It("should total per currency without converting", func() {
			s := Summarize(reports, "2024-03-01", "2024-03-31")
			Expect(s.Count).To(Equal(3))
			Expect(s.Totals["USD"].String()).To(Equal("19.75"))
			Expect(s.Totals["EUR"].String()).To(Equal("200"))
		})

		It("should break totals down by category and status", func() {
			s := Summarize(reports, "2024-03-01", "2024-03-31")
			Expect(s.ByCategory[expense.CategoryMeals]["USD"].String()).To(Equal("19.75"))
			Expect(s.ByCategory[expense.CategoryLodging]["EUR"].String()).To(Equal("200"))
			Expect(s.ByStatus[expense.StatusPending]).To(Equal(2))
			Expect(s.ByStatus[expense.StatusApproved]).To(Equal(1))
		})

		It("should order reports by date", func() {
			s := Summarize(reports, "", "")
			Expect(s.Count).To(Equal(4))
			Expect(s.Reports[0].Date).To(Equal("2024-03-02"))
			Expect(s.Reports[3].Date).To(Equal("2024-04-01"))
		})

		It("should handle no reports", func() {
			s := Summarize(nil, "2024-03-01", "2024-03-31")
			Expect(s.Count).To(Equal(0))
			Expect(s.Totals).To(BeEmpty())
		})
	})

	Describe("Lines", func() {
		It("should format dates and amounts for the language", func() {
			s := Summarize(reports, "2024-03-01", "2024-03-31")
			lines := Lines(s, "de")
			Expect(lines[0]).To(Equal("Period: 01.03.2024 - 31.03.2024"))
			Expect(lines).To(ContainElement("Total EUR: €200,00"))
			Expect(lines).To(ContainElement("Total USD: $19.75"))
			Expect(lines).To(ContainElement("  Pending: 2"))
		})
	})

	Describe("Generate", func() {
		It("should list the period and summarize it", func() {
			lister := &mockLister{reports: reports[:1]}
			s, err := Generate(context.Background(), lister, "2024-03-01", "2024-03-31")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Count).To(Equal(1))
			Expect(lister.lastFilter).To(Equal(expense.Filter{StartDate: "2024-03-01", EndDate: "2024-03-31"}))
		})

		It("should reject malformed dates before listing", func() {
			lister := &mockLister{}
			_, err := Generate(context.Background(), lister, "2024-03-01", "March")
			Expect(errors.Is(err, apperr.ErrValidation)).To(BeTrue())
			Expect(lister.lastFilter).To(Equal(expense.Filter{}))
		})

		It("should wrap listing errors", func() {
			lister := &mockLister{err: &apperr.NetworkError{Op: "GET", Err: errors.New("down")}}
			_, err := Generate(context.Background(), lister, "", "")
			Expect(errors.Is(err, apperr.ErrNetwork)).To(BeTrue())
		})
	})
})

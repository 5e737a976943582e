package report

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/format"
)

// Lister returns reports matching a filter
type Lister interface {
	List(ctx context.Context, f expense.Filter) ([]*expense.Report, error)
}

// Summary aggregates the reports of a period. Amounts are never converted
// between currencies, so every total is kept per currency.
type Summary struct {
	StartDate  string
	EndDate    string
	Count      int
	Totals     map[string]decimal.Decimal
	ByCategory map[expense.Category]map[string]decimal.Decimal
	ByStatus   map[expense.Status]int
	Reports    []*expense.Report
}

// Generate lists the reports dated within [start, end] and summarizes them
func Generate(ctx context.Context, lister Lister, start, end string) (*Summary, error) {
	f := expense.Filter{StartDate: start, EndDate: end}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	reports, err := lister.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("generating report: %w", err)
	}
	return Summarize(reports, start, end), nil
}

// Summarize aggregates the reports dated within [start, end]. Empty bounds
// are open. Reports are kept in date order.
func Summarize(reports []*expense.Report, start, end string) *Summary {
	s := &Summary{
		StartDate:  start,
		EndDate:    end,
		Totals:     make(map[string]decimal.Decimal),
		ByCategory: make(map[expense.Category]map[string]decimal.Decimal),
		ByStatus:   make(map[expense.Status]int),
	}
	f := expense.Filter{StartDate: start, EndDate: end}

	for _, r := range reports {
		if !f.Matches(r) {
			continue
		}
		s.Count++
		s.Totals[r.Currency] = s.Totals[r.Currency].Add(r.Amount)

		byCurrency, ok := s.ByCategory[r.Category]
		if !ok {
			byCurrency = make(map[string]decimal.Decimal)
			s.ByCategory[r.Category] = byCurrency
		}
		byCurrency[r.Currency] = byCurrency[r.Currency].Add(r.Amount)

		s.ByStatus[r.Status]++
		s.Reports = append(s.Reports, r)
	}

	sort.SliceStable(s.Reports, func(i, j int) bool {
		return s.Reports[i].Date < s.Reports[j].Date
	})
	return s
}

// Lines renders the summary as display rows with dates and amounts
// formatted for lang
func Lines(s *Summary, lang string) []string {
	lines := []string{fmt.Sprintf("Period: %s - %s", displayDate(s.StartDate, lang), displayDate(s.EndDate, lang))}
	lines = append(lines, fmt.Sprintf("Reports: %d", s.Count))

	for _, code := range sortedCurrencies(s.Totals) {
		lines = append(lines, fmt.Sprintf("Total %s: %s", code, format.FormatCurrency(s.Totals[code], code)))
	}

	for _, c := range expense.Categories {
		byCurrency, ok := s.ByCategory[c]
		if !ok {
			continue
		}
		for _, code := range sortedCurrencies(byCurrency) {
			lines = append(lines, fmt.Sprintf("  %s: %s", c, format.FormatCurrency(byCurrency[code], code)))
		}
	}

	statuses := make([]string, 0, len(s.ByStatus))
	for st := range s.ByStatus {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		lines = append(lines, fmt.Sprintf("  %s: %d", st, s.ByStatus[expense.Status(st)]))
	}

	for _, r := range s.Reports {
		lines = append(lines, fmt.Sprintf("%s  %-16s %12s  %-13s %s",
			displayDate(r.Date, lang), r.Category, format.FormatCurrency(r.Amount, r.Currency), r.Status, r.Description))
	}
	return lines
}

func sortedCurrencies(m map[string]decimal.Decimal) []string {
	codes := make([]string, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func displayDate(date, lang string) string {
	if date == "" {
		return "..."
	}
	t, err := format.ParseDate(date)
	if err != nil {
		return date
	}
	return format.FormatDate(t, lang)
}

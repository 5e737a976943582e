package expense

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/apperr"
	"github.com/zombor/expense-tracker/internal/format"
)

// Status is the lifecycle state of an expense report
type Status string

const (
	StatusDraft         Status = "Draft"
	StatusSubmitted     Status = "Submitted"
	StatusPending       Status = "Pending"
	StatusApproved      Status = "Approved"
	StatusRejected      Status = "Rejected"
	StatusInfoRequested Status = "InfoRequested"
)

// ParseStatus returns the status matching s, ignoring case
func ParseStatus(s string) (Status, bool) {
	for _, st := range []Status{StatusDraft, StatusSubmitted, StatusPending, StatusApproved, StatusRejected, StatusInfoRequested} {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, true
		}
	}
	return "", false
}

// Category is one of the fixed expense categories
type Category string

const (
	CategoryMeals          Category = "Meals"
	CategoryTransportation Category = "Transportation"
	CategoryLodging        Category = "Lodging"
	CategoryOfficeSupplies Category = "Office Supplies"
	CategoryEntertainment  Category = "Entertainment"
	CategoryMiscellaneous  Category = "Miscellaneous"
)

// Categories lists every known category in display order
var Categories = []Category{
	CategoryMeals,
	CategoryTransportation,
	CategoryLodging,
	CategoryOfficeSupplies,
	CategoryEntertainment,
	CategoryMiscellaneous,
}

// ParseCategory returns the canonical category matching s, ignoring case
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, true
		}
	}
	return "", false
}

// AllowedCurrencies are the currencies a report may be filed in
var AllowedCurrencies = []string{"USD", "EUR", "GBP", "JPY", "CNY"}

// DefaultCurrency is used when an input omits the currency
const DefaultCurrency = "USD"

// Report represents an expense report as seen by the current session
type Report struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	Date        string          `json:"date"` // YYYY-MM-DD
	Category    Category        `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	ReceiptRef  string          `json:"receiptRef,omitempty"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt,omitempty"`
}

// IsLocal reports whether the report only exists in the offline queue
func (r *Report) IsLocal() bool {
	return strings.HasPrefix(r.ID, LocalIDPrefix)
}

func (r *Report) clone() *Report {
	c := *r
	return &c
}

// Input holds the fields an employee fills in to create a report
type Input struct {
	Date        string          `json:"date"`
	Category    Category        `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	ReceiptRef  string          `json:"receiptRef,omitempty"`
}

// Normalize validates the input and returns it in canonical form. All failing
// fields are reported together.
func (in Input) Normalize() (Input, error) {
	verr := &apperr.ValidationError{}

	if d, err := format.ParseDate(in.Date); err != nil {
		verr.Add("date", "date must be a real calendar date in YYYY-MM-DD format")
	} else {
		in.Date = d.Format(format.DateLayout)
	}

	if c, ok := ParseCategory(string(in.Category)); ok {
		in.Category = c
	} else if strings.TrimSpace(string(in.Category)) == "" {
		verr.Add("category", "category is required")
	} else {
		verr.Add("category", "unknown category "+string(in.Category))
	}

	if strings.TrimSpace(in.Currency) == "" {
		in.Currency = DefaultCurrency
	}
	if code, err := format.ParseCurrency(in.Currency, AllowedCurrencies); err != nil {
		verr.Add("currency", "currency must be one of "+strings.Join(AllowedCurrencies, ", "))
	} else {
		in.Currency = code
	}

	if !in.Amount.IsPositive() {
		verr.Add("amount", "amount must be a positive number")
	} else if verr.Fields["currency"] == "" && !in.Amount.Equal(in.Amount.Truncate(format.CurrencyScale(in.Currency))) {
		verr.Add("amount", "amount has too many decimal places for "+in.Currency)
	}

	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		verr.Add("description", "description is required")
	}

	if err := verr.OrNil(); err != nil {
		return Input{}, err
	}
	return in, nil
}

// Patch holds optional changes for Update. Nil fields are left untouched.
type Patch struct {
	Date        *string          `json:"date,omitempty"`
	Category    *Category        `json:"category,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Currency    *string          `json:"currency,omitempty"`
	Description *string          `json:"description,omitempty"`
	ReceiptRef  *string          `json:"receiptRef,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p Patch) IsEmpty() bool {
	return p.Date == nil && p.Category == nil && p.Amount == nil &&
		p.Currency == nil && p.Description == nil && p.ReceiptRef == nil
}

// apply returns the input of r with the patch applied
func (p Patch) apply(r *Report) Input {
	in := Input{
		Date:        r.Date,
		Category:    r.Category,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Description: r.Description,
		ReceiptRef:  r.ReceiptRef,
	}
	if p.Date != nil {
		in.Date = *p.Date
	}
	if p.Category != nil {
		in.Category = *p.Category
	}
	if p.Amount != nil {
		in.Amount = *p.Amount
	}
	if p.Currency != nil {
		in.Currency = *p.Currency
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.ReceiptRef != nil {
		in.ReceiptRef = *p.ReceiptRef
	}
	return in
}

// Filter narrows a listing. Zero values match everything; dates are inclusive.
type Filter struct {
	StartDate string
	EndDate   string
	Category  Category
	Status    Status
}

// Matches applies the filter client-side
func (f Filter) Matches(r *Report) bool {
	if f.StartDate != "" && r.Date < f.StartDate {
		return false
	}
	if f.EndDate != "" && r.Date > f.EndDate {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// Validate checks the filter's date bounds, category and status
func (f Filter) Validate() error {
	_, err := f.Normalize()
	return err
}

// Normalize validates the filter and returns it with category and status in
// their canonical spelling
func (f Filter) Normalize() (Filter, error) {
	verr := &apperr.ValidationError{}
	if f.StartDate != "" {
		if _, err := format.ParseDate(f.StartDate); err != nil {
			verr.Add("startDate", "start date must be in YYYY-MM-DD format")
		}
	}
	if f.EndDate != "" {
		if _, err := format.ParseDate(f.EndDate); err != nil {
			verr.Add("endDate", "end date must be in YYYY-MM-DD format")
		}
	}
	if f.StartDate != "" && f.EndDate != "" && f.StartDate > f.EndDate && len(verr.Fields) == 0 {
		verr.Add("endDate", "end date is before start date")
	}
	if f.Category != "" {
		if c, ok := ParseCategory(string(f.Category)); ok {
			f.Category = c
		} else {
			verr.Add("category", "unknown category "+string(f.Category))
		}
	}
	if f.Status != "" {
		if st, ok := ParseStatus(string(f.Status)); ok {
			f.Status = st
		} else {
			verr.Add("status", "unknown status "+string(f.Status))
		}
	}
	if err := verr.OrNil(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

package scanning

import (
	"context"

	"github.com/shopspring/decimal"
)

// ReceiptData contains what a model could read off a receipt. Fields the
// model could not find are left empty.
type ReceiptData struct {
	Merchant string
	Date     string // YYYY-MM-DD
	Amount   decimal.Decimal
	Currency string
	Category string
}

// Scanner extracts expense details from a receipt image or PDF
type Scanner interface {
	ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error)
	// Close releases the model client
	Close() error
}

package scanning

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const dateLayout = "2006-01-02"

// fallback layouts seen in model output, tried in order
var dateLayouts = []string{
	dateLayout,
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"02.01.2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// stripFences removes a markdown code fence around a model response
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseReceiptJSON extracts receipt fields from a model response. A missing
// or unreadable date falls back to today.
func parseReceiptJSON(text string, today time.Time) (*ReceiptData, error) {
	text = stripFences(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[start : end+1]
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	fields := gjson.Parse(text)
	data := &ReceiptData{
		Merchant: strings.TrimSpace(firstString(fields, "merchant", "title", "store")),
		Currency: strings.ToUpper(strings.TrimSpace(fields.Get("currency").String())),
		Category: strings.TrimSpace(fields.Get("category").String()),
		Date:     parseDate(fields.Get("date").String(), today),
	}

	amount, err := parseAmount(fields.Get("amount"))
	if err != nil {
		return nil, err
	}
	data.Amount = amount

	return data, nil
}

func firstString(fields gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := fields.Get(k); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

func parseDate(raw string, today time.Time) string {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d.Format(dateLayout)
		}
	}
	return today.Format(dateLayout)
}

// parseAmount accepts a JSON number or a string such as "$1,234.50"
func parseAmount(v gjson.Result) (decimal.Decimal, error) {
	switch v.Type {
	case gjson.Number:
		d, err := decimal.NewFromString(v.Raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parsing amount %s: %w", v.Raw, err)
		}
		return d, nil
	case gjson.String:
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' || r == '-' {
				return r
			}
			return -1
		}, v.Str)
		if cleaned == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parsing amount %q: %w", v.Str, err)
		}
		return d, nil
	default:
		return decimal.Zero, nil
	}
}

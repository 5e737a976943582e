package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// DateLayout is the canonical wire and storage layout for calendar dates
const DateLayout = "2006-01-02"

// DefaultLanguage is used when no preference is stored or a language is unknown
const DefaultLanguage = "en"

// SupportedLanguages lists the languages the client can format for
var SupportedLanguages = []string{"en", "es", "fr", "de", "zh", "ja"}

var dateLayouts = map[string]string{
	"en": "01/02/2006",
	"es": "02/01/2006",
	"fr": "02/01/2006",
	"de": "02.01.2006",
	"zh": "2006/01/02",
	"ja": "2006/01/02",
}

var rtlLanguages = map[string]bool{"ar": true, "he": true}

var languageMatcher = func() language.Matcher {
	tags := make([]language.Tag, 0, len(SupportedLanguages))
	for _, l := range SupportedLanguages {
		tags = append(tags, language.MustParse(l))
	}
	return language.NewMatcher(tags)
}()

// ParseDate parses a YYYY-MM-DD date, rejecting impossible calendar dates
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders t using the date pattern of lang
func FormatDate(t time.Time, lang string) string {
	layout, ok := dateLayouts[lang]
	if !ok {
		layout = dateLayouts[DefaultLanguage]
	}
	return t.Format(layout)
}

// ValidEmail performs a structural check: exactly one @, a non-empty local
// part, and a domain containing a dot with text on both sides.
func ValidEmail(email string) bool {
	if strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	if strings.Count(email, "@") != 1 {
		return false
	}
	local, domain, _ := strings.Cut(email, "@")
	if local == "" {
		return false
	}
	first := strings.Index(domain, ".")
	last := strings.LastIndex(domain, ".")
	return first > 0 && last < len(domain)-1
}

// ParseCurrency normalises code and checks it is a known ISO 4217 currency
// that appears in allowed.
func ParseCurrency(code string, allowed []string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("unknown currency %q: %w", code, err)
	}
	for _, a := range allowed {
		if a == unit.String() {
			return unit.String(), nil
		}
	}
	return "", fmt.Errorf("currency %s is not allowed", unit.String())
}

// CurrencyScale returns the number of minor-unit digits for code (2 when unknown)
func CurrencyScale(code string) int32 {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

type currencyStyle struct {
	symbol  string
	group   string
	decimal string
}

var currencyStyles = map[string]currencyStyle{
	"USD": {symbol: "$", group: ",", decimal: "."},
	"GBP": {symbol: "£", group: ",", decimal: "."},
	"EUR": {symbol: "€", group: " ", decimal: ","},
	"JPY": {symbol: "¥", group: ",", decimal: "."},
}

// FormatCurrency renders amount with the symbol and grouping used for code
func FormatCurrency(amount decimal.Decimal, code string) string {
	code = strings.ToUpper(code)
	style, ok := currencyStyles[code]
	if !ok {
		style = currencyStyle{symbol: code + " ", group: ",", decimal: "."}
	}

	scale := CurrencyScale(code)
	fixed := amount.Abs().StringFixed(scale)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if amount.IsNegative() && !amount.Round(scale).IsZero() {
		b.WriteString("-")
	}
	b.WriteString(style.symbol)
	b.WriteString(group(whole, style.group))
	if frac != "" {
		b.WriteString(style.decimal)
		b.WriteString(frac)
	}
	return b.String()
}

// group inserts sep between every three digits counted from the right
func group(digits, sep string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// MatchLanguage maps a BCP 47 tag to the closest supported language
func MatchLanguage(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	// "jp" is the country code; older clients stored it as a language
	if strings.EqualFold(tag, "jp") {
		tag = "ja"
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", tag, err)
	}
	_, index, confidence := languageMatcher.Match(parsed)
	if confidence == language.No {
		return "", fmt.Errorf("unsupported language %q", tag)
	}
	return SupportedLanguages[index], nil
}

// IsRTL reports whether lang is written right to left
func IsRTL(lang string) bool {
	base, _, _ := strings.Cut(strings.ToLower(lang), "-")
	return rtlLanguages[base]
}

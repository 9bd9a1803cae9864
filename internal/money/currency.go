package money

import "strings"

// DefaultCurrency is the marketplace settlement currency (Ghana cedi).
const DefaultCurrency = "GHS"

// CurrencyInfo describes a currency for clients rendering prices.
type CurrencyInfo struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

var currencies = map[string]CurrencyInfo{
	"GHS": {Code: "GHS", Symbol: "₵", Name: "Ghana Cedi"},
	"NGN": {Code: "NGN", Symbol: "₦", Name: "Nigerian Naira"},
	"USD": {Code: "USD", Symbol: "$", Name: "US Dollar"},
	"EUR": {Code: "EUR", Symbol: "€", Name: "Euro"},
	"GBP": {Code: "GBP", Symbol: "£", Name: "Pound Sterling"},
}

// Info returns the currency description. Unknown codes use the code as symbol.
func Info(code string) CurrencyInfo {
	if code == "" {
		code = DefaultCurrency
	}
	if ci, ok := currencies[strings.ToUpper(code)]; ok {
		return ci
	}
	return CurrencyInfo{Code: code, Symbol: code, Name: code}
}

// Format renders an amount with its currency symbol and thousands separators,
// e.g. "₵1,234.50".
func Format(a Amount, code string) string {
	s := a.String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(Info(code).Symbol)
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(frac)
	return b.String()
}

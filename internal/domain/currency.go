package domain

import "strings"

// ISO 4217 minor unit exponents for the currencies the store prices in.
var currencyExponents = map[string]int32{
	"IDR": 0,
	"JPY": 0,
	"KRW": 0,
	"USD": 2,
	"EUR": 2,
	"SGD": 2,
	"MYR": 2,
}

// CurrencyExponent returns the number of minor-unit digits, defaulting to 2.
func CurrencyExponent(currency string) int32 {
	if exp, ok := currencyExponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

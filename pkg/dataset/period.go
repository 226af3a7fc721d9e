package dataset

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const periodLayout = "2006-01"

var (
	// ErrInvalidPeriod is returned for identifiers that are not YYYY-MM.
	ErrInvalidPeriod = errors.New("dataset: invalid period")
	// ErrInvalidCurrency is returned for codes that are not three ASCII letters.
	ErrInvalidCurrency = errors.New("dataset: invalid currency")
)

// SupportedCurrencies lists the fiat codes the shard producer emits.
var SupportedCurrencies = []string{
	"USD", "EUR", "BRL", "GBP", "JPY",
	"CHF", "CAD", "AUD", "NZD",
	"HKD", "SGD",
	"INR", "KRW",
	"MXN", "ARS",
	"ZAR", "TRY",
}

// ParsePeriod normalises a YYYY-MM identifier.
func ParsePeriod(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	t, err := time.Parse(periodLayout, clean)
	if err != nil {
		return "", fmt.Errorf("%w %q", ErrInvalidPeriod, raw)
	}
	return t.Format(periodLayout), nil
}

// PeriodOf returns the YYYY-MM prefix of a YYYY-MM-DD date.
func PeriodOf(date string) string {
	if len(date) < len(periodLayout) {
		return date
	}
	return date[:len(periodLayout)]
}

// CurrentPeriod is the in-progress calendar period at now (UTC).
func CurrentPeriod(now time.Time) string {
	return now.UTC().Format(periodLayout)
}

// CompletePeriods returns the valid periods strictly earlier than the period
// containing now, sorted ascending and de-duplicated.
func CompletePeriods(periods []string, now time.Time) []string {
	current := CurrentPeriod(now)
	seen := make(map[string]struct{}, len(periods))
	out := make([]string, 0, len(periods))
	for _, p := range periods {
		norm, err := ParsePeriod(p)
		if err != nil || norm >= current {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	sort.Strings(out)
	return out
}

// NormalizeCurrency upper-cases and validates a currency code.
func NormalizeCurrency(raw string) (string, error) {
	clean := strings.ToUpper(strings.TrimSpace(raw))
	if len(clean) != 3 {
		return "", fmt.Errorf("%w %q", ErrInvalidCurrency, raw)
	}
	for _, r := range clean {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w %q", ErrInvalidCurrency, raw)
		}
	}
	return clean, nil
}

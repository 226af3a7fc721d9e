// Package datasettest writes manifest and shard trees for tests.
package datasettest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"popreport/pkg/dataset"
)

// Periods returns n consecutive YYYY-MM identifiers starting at from.
func Periods(from string, n int) []string {
	start, err := time.Parse("2006-01", from)
	if err != nil {
		panic(fmt.Sprintf("datasettest: bad period %q", from))
	}
	out := make([]string, n)
	for i := range out {
		out[i] = start.AddDate(0, i, 0).Format("2006-01")
	}
	return out
}

// Record builds a valid shard whose entry is the first day of the period and
// whose exit is the 28th.
func Record(period, currency string, entry, exit float64) dataset.MonthlyRecord {
	exitDate := period + "-28"
	pct := (exit - entry) / entry * 100
	return dataset.MonthlyRecord{
		Month:                period,
		Currency:             currency,
		EntryDate:            period + "-01",
		EntryPrice:           entry,
		ExitDate:             &exitDate,
		ExitPrice:            &exit,
		PctChangeWithinMonth: &pct,
		DaysPositive:         10,
		DaysNegative:         8,
		DaysTotal:            28,
		Regime:               dataset.RegimeLateral,
	}
}

// Fixture is an on-disk shard tree.
type Fixture struct {
	Dir      string
	Manifest dataset.Manifest
}

// Write lays out manifest.v1.json and one shard per (currency, period) under
// a temp dir. Entry prices rise by 100 per period from 1000; exits are 5%
// above entry.
func Write(t testing.TB, periods []string, currencies ...string) *Fixture {
	t.Helper()
	if len(currencies) == 0 {
		currencies = []string{"USD"}
	}
	f := &Fixture{
		Dir: t.TempDir(),
		Manifest: dataset.Manifest{
			Version:         "1",
			Asset:           "BTC",
			MonthsAvailable: periods,
			Currencies:      currencies,
			Rules:           dataset.Rules{DailyPrice: "last_seen_price_utc", Entry: "first_available_day_of_month", RegimeThreshold: 0.1},
			GeneratedAt:     "2024-07-01T00:00:00Z",
		},
	}
	f.write(t, "manifest.v1.json", f.Manifest)
	for _, cur := range currencies {
		for i, p := range periods {
			entry := 1000 + float64(i)*100
			f.PutRecord(t, Record(p, cur, entry, entry*1.05))
		}
	}
	return f
}

// PutRecord writes or replaces one shard.
func (f *Fixture) PutRecord(t testing.TB, rec dataset.MonthlyRecord) {
	t.Helper()
	f.write(t, filepath.Join("monthly", rec.Currency, rec.Month+".json"), rec)
}

// Remove deletes one shard so fetching it yields a 404.
func (f *Fixture) Remove(t testing.TB, currency, period string) {
	t.Helper()
	if err := os.Remove(filepath.Join(f.Dir, "monthly", currency, period+".json")); err != nil {
		t.Fatalf("datasettest: remove shard: %v", err)
	}
}

func (f *Fixture) write(t testing.TB, rel string, v any) {
	t.Helper()
	p := filepath.Join(f.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("datasettest: mkdir: %v", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("datasettest: encode %s: %v", rel, err)
	}
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatalf("datasettest: write %s: %v", rel, err)
	}
}

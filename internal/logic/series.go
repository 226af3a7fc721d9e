package logic

import (
	"sort"

	"popreport/pkg/dataset"
	"popreport/pkg/dca"
)

// BuildSeries turns shards into a chronological price series with one point
// per shard at its entry. When includeExit is set the exit observation of each
// shard that has one is added as well.
func BuildSeries(records []dataset.MonthlyRecord, includeExit bool) []dca.PricePoint {
	series := make([]dca.PricePoint, 0, len(records)*2)
	for i := range records {
		rec := &records[i]
		series = append(series, dca.PricePoint{Date: rec.EntryDate, Price: rec.EntryPrice})
		if includeExit && rec.HasExit() {
			series = append(series, dca.PricePoint{Date: *rec.ExitDate, Price: *rec.ExitPrice})
		}
	}
	sort.SliceStable(series, func(i, j int) bool { return series[i].Date < series[j].Date })
	return series
}

package types

import (
	"popreport/pkg/dataset"
	"popreport/pkg/dca"
)

type CurrencyRequest struct {
	Currency string `form:"currency,optional"`
}

type MonthsResponse struct {
	Currency string                  `json:"currency"`
	Complete bool                    `json:"complete"`
	Latest   string                  `json:"latest,omitempty"`
	Months   []dataset.MonthlyRecord `json:"months"`
}

type SimulateRequest struct {
	Currency    string  `form:"currency,optional"`
	StartDate   string  `form:"startDate"`
	Amount      float64 `form:"amount"`
	IncludeExit bool    `form:"includeExit,optional"`
	Details     bool    `form:"details,optional"`
}

type SimulateResponse struct {
	Currency  string               `json:"currency"`
	Complete  bool                 `json:"complete"`
	Points    int                  `json:"points"`
	Result    *dca.Result          `json:"result"`
	CostBasis float64              `json:"costBasis"`
	Breakdown []dca.BreakdownEntry `json:"breakdown,omitempty"`
	Totals    *dca.BreakdownTotals `json:"totals,omitempty"`
}

type StorageResponse struct {
	Namespace    string  `json:"namespace"`
	Usage        int64   `json:"usage"`
	Quota        int64   `json:"quota"`
	UsagePercent float64 `json:"usagePercent"`
}

type ReloadResponse struct {
	Currency string `json:"currency"`
	Loaded   int    `json:"loaded"`
	Latest   string `json:"latest,omitempty"`
}

type CleanupResponse struct {
	Evicted int             `json:"evicted"`
	Storage StorageResponse `json:"storage"`
}

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

package models

import (
	"github.com/nicolastakashi/jtl-analytics/internal/compare"
	"github.com/nicolastakashi/jtl-analytics/internal/db"
	"github.com/nicolastakashi/jtl-analytics/internal/stats"
)

type RunList struct {
	Runs []db.RunSummary `json:"runs"`
}

// CompareRequest carries everything a comparison needs, so the handler
// performs no lookups.
type CompareRequest struct {
	Current   stats.RunStatistics `json:"current"`
	Baseline  stats.Baselines     `json:"baseline"`
	Tolerance stats.Tolerances    `json:"tolerance"`
}

type CompareResponse struct {
	Passed   bool              `json:"passed"`
	Failures int               `json:"failures"`
	Verdicts []compare.Verdict `json:"verdicts"`
}

func NewCompareResponse(report compare.Report) CompareResponse {
	return CompareResponse{
		Passed:   report.Passed(),
		Failures: report.Failures,
		Verdicts: report.Verdicts,
	}
}

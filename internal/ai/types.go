package ai

import "github.com/camuig/rf-history/internal/analyzer"

// ReviewRequest is the account state sent for a risk review.
type ReviewRequest struct {
	Summary analyzer.Summary
	// Grids are the riskiest grids of the window, worst first.
	Grids  []analyzer.Grid
	Params analyzer.Params
}

type Review struct {
	RiskLevel       string   `json:"risk_level"` // low, medium, high
	Comment         string   `json:"comment"`
	Recommendations []string `json:"recommendations"`
}

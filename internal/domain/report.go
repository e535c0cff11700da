package domain

import "time"

// Grade thresholds on the overall percentage.
const (
	gradeAPlus = 90.0
	gradeA     = 80.0
	gradeB     = 70.0
	gradeC     = 60.0
	gradeD     = 50.0
)

// Grade maps an overall percentage to a letter grade.
func Grade(pct float64) string {
	switch {
	case pct >= gradeAPlus:
		return "A+"
	case pct >= gradeA:
		return "A"
	case pct >= gradeB:
		return "B"
	case pct >= gradeC:
		return "C"
	case pct >= gradeD:
		return "D"
	default:
		return "F"
	}
}

// Counts breaks the results of a report down by outcome.
type Counts struct {
	Evaluated int `json:"evaluated"`
	OK        int `json:"ok"`
	Default   int `json:"default"`
	Error     int `json:"error"`
	Above80   int `json:"above_80"`
	Below50   int `json:"below_50"`
}

// Summary aggregates a report's results.
type Summary struct {
	TotalMax            int      `json:"total_max"`
	TotalObtained       float64  `json:"total_obtained"`
	OverallPercentage   float64  `json:"overall_percentage"`
	Grade               string   `json:"grade"`
	Counts              Counts   `json:"counts"`
	AverageScore        float64  `json:"average_score"`
	NormalizationTarget *float64 `json:"normalization_target,omitempty"`
	NormalizedScore     *float64 `json:"normalized_score,omitempty"`
}

// UsageStats counts model traffic. A report carries the counters of its own
// run; the orchestrator keeps process totals for monitoring.
type UsageStats struct {
	APIRequests   int64 `json:"api_requests"`
	InputTokens   int64 `json:"input_tokens"`
	OutputTokens  int64 `json:"output_tokens"`
	RunsCompleted int64 `json:"runs_completed"`
}

// Add returns the field-wise sum of u and other.
func (u UsageStats) Add(other UsageStats) UsageStats {
	return UsageStats{
		APIRequests:   u.APIRequests + other.APIRequests,
		InputTokens:   u.InputTokens + other.InputTokens,
		OutputTokens:  u.OutputTokens + other.OutputTokens,
		RunsCompleted: u.RunsCompleted + other.RunsCompleted,
	}
}

// EvaluationReport is the immutable artifact produced by one pipeline run.
type EvaluationReport struct {
	RunID           string             `json:"run_id"`
	CreatedAt       time.Time          `json:"created_at"`
	Policy          string             `json:"policy"`
	Results         []EvaluationResult `json:"results"`
	Summary         Summary            `json:"summary"`
	Usage           UsageStats         `json:"usage_stats"`
	SelectedChoices map[string]string  `json:"selected_choices,omitempty"`
	PageErrors      []PageText         `json:"page_errors,omitempty"`
}

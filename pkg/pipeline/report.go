package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Run and stage statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusSkipped   = "skipped"
)

// Stage names in execution order.
const (
	StageLoad       = "load"
	StageEmbed      = "embed"
	StageBlocking   = "blocking"
	StageScoring    = "scoring"
	StageGraph      = "graph"
	StageClustering = "clustering"
	StageGolden     = "golden"
	StageExport     = "export"
)

// StageError wraps a failure with the stage it occurred in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageReport records one stage's outcome and timing.
type StageReport struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	Stats      any    `json:"stats,omitempty"`
}

// Report is the full account of one pipeline run. A failed or cancelled run
// still produces a report covering the stages that did execute.
type Report struct {
	RunID       string    `json:"run_id"`
	Collection  string    `json:"collection"`
	ConfigHash  string    `json:"config_hash"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	Records          int `json:"records"`
	Candidates       int `json:"candidates"`
	Matches          int `json:"matches"`
	PossibleMatches  int `json:"possible_matches"`
	Clusters         int `json:"clusters"`
	ClusteredRecords int `json:"clustered_records"`
	GoldenRecords    int `json:"golden_records"`

	Metrics    Metrics       `json:"metrics"`
	Stages     []StageReport `json:"stages"`
	ExportPath string        `json:"export_path,omitempty"`
}

// Metrics holds the run-quality ratios derived from the raw counters.
type Metrics struct {
	// ReductionRatio is the fraction of the n*(n-1)/2 comparison space the
	// blocking stage pruned away.
	ReductionRatio float64 `json:"reduction_ratio"`

	// MatchRate and PossibleMatchRate are per-candidate decision fractions.
	MatchRate         float64 `json:"match_rate"`
	PossibleMatchRate float64 `json:"possible_match_rate"`

	// AvgClusterSize is the mean membership of the kept clusters.
	AvgClusterSize float64 `json:"avg_cluster_size"`
}

// deriveMetrics fills in Metrics from the raw counters. Call once after all
// stages have reported.
func (r *Report) deriveMetrics() {
	n := int64(r.Records)
	if total := n * (n - 1) / 2; total > 0 {
		r.Metrics.ReductionRatio = 1 - float64(r.Candidates)/float64(total)
	}
	if r.Candidates > 0 {
		r.Metrics.MatchRate = float64(r.Matches) / float64(r.Candidates)
		r.Metrics.PossibleMatchRate = float64(r.PossibleMatches) / float64(r.Candidates)
	}
	if r.Clusters > 0 {
		r.Metrics.AvgClusterSize = float64(r.ClusteredRecords) / float64(r.Clusters)
	}
}

// Save writes the report as JSON under dir and returns the file path.
func (r *Report) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pipeline: create report directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("pipeline: marshal report: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("run_%s.json", r.RunID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("pipeline: write report: %w", err)
	}
	return path, nil
}

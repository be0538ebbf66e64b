// Package pipeline orchestrates a full resolution run: load, optional
// embedding, blocking, scoring, graph building, clustering, golden-record
// fusion, and export. Each stage is timed and reported; cancellation or
// failure yields a partial report covering the stages that ran.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tributary-data/coalesce/pkg/blocking"
	"github.com/tributary-data/coalesce/pkg/cluster"
	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/embedder"
	"github.com/tributary-data/coalesce/pkg/golden"
	"github.com/tributary-data/coalesce/pkg/graph"
	"github.com/tributary-data/coalesce/pkg/scoring"
	"github.com/tributary-data/coalesce/pkg/store"
	"github.com/tributary-data/coalesce/pkg/telemetry"
	"github.com/tributary-data/coalesce/pkg/types"
	"github.com/tributary-data/coalesce/pkg/utils"
)

// loadChunk bounds how many records one bulk read carries during the load
// stage.
const loadChunk = 512

// Options carries the optional pipeline attachments.
type Options struct {
	// Embedder fills in missing record embeddings before blocking. Required
	// when the configuration uses vector or lsh strategies against records
	// that do not carry vectors yet.
	Embedder *embedder.CachedEmbedder

	// ExportDir enables the Parquet export stage when non-empty.
	ExportDir string

	// ReportDir persists the run report as JSON when non-empty.
	ReportDir string
}

// Pipeline wires the resolution engines over one record store.
type Pipeline struct {
	store    store.RecordStore
	cfg      *config.PipelineConfig
	opts     Options
	logger   *slog.Logger
	blocking *blocking.Engine
	scoring  *scoring.Engine
	graph    *graph.Builder
	cluster  *cluster.Engine
	golden   *golden.Builder
}

// New validates the configuration and constructs every stage engine.
func New(st store.RecordStore, cfg *config.PipelineConfig, opts Options, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	blockingEngine, err := blocking.NewEngine(cfg.Blocking, st, logger)
	if err != nil {
		return nil, err
	}
	scoringEngine, err := scoring.NewEngine(st, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		store:    st,
		cfg:      cfg,
		opts:     opts,
		logger:   logger,
		blocking: blockingEngine,
		scoring:  scoringEngine,
		graph:    graph.NewBuilder(st, cfg.Graph, logger),
		cluster:  cluster.NewEngine(st, cfg.Clustering, logger),
		golden:   golden.NewBuilder(st, cfg.Golden, logger),
	}, nil
}

// Run executes the full pipeline. The returned report is non-nil even on
// failure; its Status and per-stage entries describe how far the run got.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:      uuid.New().String(),
		Collection: p.cfg.Collection,
		ConfigHash: p.cfg.Hash(),
		StartedAt:  time.Now().UTC(),
	}
	ctx = telemetry.WithRun(ctx, report.RunID, p.cfg.Collection)
	p.logger.Info("pipeline run starting", "run_id", report.RunID, "collection", p.cfg.Collection)

	err := p.runStages(ctx, report)
	report.deriveMetrics()
	report.CompletedAt = time.Now().UTC()
	switch {
	case err == nil:
		report.Status = StatusCompleted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		report.Status = StatusCancelled
	default:
		report.Status = StatusFailed
	}

	if p.opts.ReportDir != "" {
		if path, saveErr := report.Save(p.opts.ReportDir); saveErr != nil {
			p.logger.Error("failed to persist run report", "error", saveErr)
		} else {
			p.logger.Info("run report persisted", "path", path)
		}
	}

	p.logger.Info("pipeline run finished",
		"run_id", report.RunID, "status", report.Status,
		"records", report.Records, "candidates", report.Candidates,
		"matches", report.Matches, "clusters", report.Clusters,
		"golden_records", report.GoldenRecords,
		"duration", report.CompletedAt.Sub(report.StartedAt))
	return report, err
}

func (p *Pipeline) runStages(ctx context.Context, report *Report) error {
	var (
		records  []*types.Record
		pairs    []types.CandidatePair
		scored   []types.ScoredPair
		clusters []*types.Cluster
		goldens  []*types.GoldenRecord
	)

	if err := p.stage(ctx, report, StageLoad, func(ctx context.Context) (any, error) {
		var err error
		records, err = p.loadRecords(ctx)
		report.Records = len(records)
		return map[string]int{"records": len(records)}, err
	}); err != nil {
		return err
	}

	if p.needsEmbeddings() && p.opts.Embedder != nil {
		if err := p.stage(ctx, report, StageEmbed, func(ctx context.Context) (any, error) {
			stats, err := p.opts.Embedder.EmbedRecords(ctx, records)
			if err != nil {
				return nil, err
			}
			if stats.Embedded > 0 {
				if err := p.store.UpsertRecords(ctx, records); err != nil {
					return nil, err
				}
			}
			return stats, nil
		}); err != nil {
			return err
		}
	} else {
		p.skip(report, StageEmbed)
	}

	if err := p.stage(ctx, report, StageBlocking, func(ctx context.Context) (any, error) {
		var stats *blocking.Stats
		var err error
		pairs, stats, err = p.blocking.GenerateCandidates(ctx, records)
		report.Candidates = len(pairs)
		return stats, err
	}); err != nil {
		return err
	}

	if err := p.stage(ctx, report, StageScoring, func(ctx context.Context) (any, error) {
		var stats *scoring.Stats
		var err error
		scored, stats, err = p.scoring.ScorePairs(ctx, p.cfg.Collection, pairs)
		if stats != nil {
			report.Matches = stats.Decisions[types.DecisionMatch]
			report.PossibleMatches = stats.Decisions[types.DecisionPossibleMatch]
		}
		return stats, err
	}); err != nil {
		return err
	}

	if err := p.stage(ctx, report, StageGraph, func(ctx context.Context) (any, error) {
		return p.graph.BuildEdges(ctx, scored)
	}); err != nil {
		return err
	}

	if err := p.stage(ctx, report, StageClustering, func(ctx context.Context) (any, error) {
		var stats *cluster.Stats
		var err error
		clusters, stats, err = p.cluster.BuildClusters(ctx)
		if err != nil {
			return nil, err
		}
		report.Clusters = len(clusters)
		// Mark persisted before the write so the stored representation
		// reflects the transition.
		for _, c := range clusters {
			report.ClusteredRecords += len(c.MemberIDs)
			c.Status = types.ClusterPersisted
		}
		return stats, p.store.UpsertClusters(ctx, clusters)
	}); err != nil {
		return err
	}

	if err := p.stage(ctx, report, StageGolden, func(ctx context.Context) (any, error) {
		var stats *golden.Stats
		var err error
		goldens, stats, err = p.golden.BuildGoldenRecords(ctx, p.cfg.Collection, clusters)
		if err != nil {
			return nil, err
		}
		report.GoldenRecords = len(goldens)
		if err := p.store.UpsertGoldenRecords(ctx, goldens); err != nil {
			return nil, err
		}
		remap, err := p.remapRelations(ctx, goldens)
		if err != nil {
			return nil, err
		}
		if remap == nil {
			return stats, nil
		}
		return &goldenStageStats{Fusion: stats, Remap: remap}, nil
	}); err != nil {
		return err
	}

	if p.opts.ExportDir != "" {
		if err := p.stage(ctx, report, StageExport, func(ctx context.Context) (any, error) {
			path, err := golden.ExportParquet(p.opts.ExportDir, goldens)
			report.ExportPath = path
			return map[string]string{"path": path}, err
		}); err != nil {
			return err
		}
	} else {
		p.skip(report, StageExport)
	}

	return nil
}

// stage runs one stage with timing, stage-tagged telemetry context, and
// cancellation checks between stages.
func (p *Pipeline) stage(ctx context.Context, report *Report, name string, fn func(context.Context) (any, error)) error {
	if err := ctx.Err(); err != nil {
		report.Stages = append(report.Stages, StageReport{Name: name, Status: StatusCancelled, Error: err.Error()})
		return &StageError{Stage: name, Err: err}
	}

	ctx = telemetry.WithStage(ctx, name)
	start := time.Now()
	stats, err := fn(ctx)
	entry := StageReport{
		Name:       name,
		Status:     StatusCompleted,
		DurationMS: time.Since(start).Milliseconds(),
		Stats:      stats,
	}
	if err != nil {
		entry.Status = StatusFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			entry.Status = StatusCancelled
		}
		entry.Error = err.Error()
		report.Stages = append(report.Stages, entry)
		p.logger.Error("stage failed", "stage", name, "error", err)
		return &StageError{Stage: name, Err: err}
	}
	report.Stages = append(report.Stages, entry)
	p.logger.Info("stage complete", "stage", name, "duration_ms", entry.DurationMS)
	return nil
}

func (p *Pipeline) skip(report *Report, name string) {
	report.Stages = append(report.Stages, StageReport{Name: name, Status: StatusSkipped})
}

// goldenStageStats is the golden stage report when a remap sweep ran.
type goldenStageStats struct {
	Fusion *golden.Stats                 `json:"fusion"`
	Remap  map[string]*golden.RemapStats `json:"remap"`
}

// remapRelations sweeps every configured domain relation onto golden ids and
// replaces the stored edge set, so downstream consumers see relationships
// between resolved entities rather than source duplicates.
func (p *Pipeline) remapRelations(ctx context.Context, goldens []*types.GoldenRecord) (map[string]*golden.RemapStats, error) {
	if len(p.cfg.Golden.RemapRelations) == 0 {
		return nil, nil
	}
	out := make(map[string]*golden.RemapStats, len(p.cfg.Golden.RemapRelations))
	for _, relation := range p.cfg.Golden.RemapRelations {
		edges, err := p.store.GetRelationships(ctx, relation)
		if err != nil {
			return nil, err
		}
		remapped, stats := golden.RemapRelationships(edges, goldens, p.logger)
		if err := p.store.ReplaceRelationships(ctx, relation, remapped); err != nil {
			return nil, err
		}
		out[relation] = stats
	}
	return out, nil
}

// loadRecords pulls the whole collection in chunked bulk reads.
func (p *Pipeline) loadRecords(ctx context.Context) ([]*types.Record, error) {
	ids, err := p.store.ListIDs(ctx, p.cfg.Collection)
	if err != nil {
		return nil, err
	}
	records := make([]*types.Record, 0, len(ids))
	for _, chunk := range utils.Chunk(ids, loadChunk) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := p.store.GetRecords(ctx, p.cfg.Collection, chunk)
		if err != nil {
			return nil, err
		}
		records = append(records, batch...)
	}
	return records, nil
}

// needsEmbeddings reports whether any configured strategy consumes vectors.
func (p *Pipeline) needsEmbeddings() bool {
	for _, s := range p.cfg.Blocking.Strategies {
		if s.Kind == config.StrategyVector || s.Kind == config.StrategyLSH {
			return true
		}
	}
	return false
}

// Package cluster discovers entity clusters as weakly-connected components
// of the similarity graph. The engine fetches the entire edge set in one bulk
// call, runs union-find in memory, and never issues per-node queries.
package cluster

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/store"
	"github.com/tributary-data/coalesce/pkg/types"
	"github.com/tributary-data/coalesce/pkg/utils"
)

// Quality blend weights: size adequacy, density, average edge weight.
const (
	qualitySizeWeight    = 0.3
	qualityDensityWeight = 0.4
	qualityAvgWeight     = 0.3
)

// Stats summarizes one clustering run.
type Stats struct {
	EdgesFetched    int64 `json:"edges_fetched"`
	ComponentsFound int   `json:"components_found"`
	ClustersKept    int   `json:"clusters_kept"`
	BelowMinimum    int   `json:"below_minimum"`
	OversizeFlagged int   `json:"oversize_flagged"`
	OversizeDropped int   `json:"oversize_dropped"`
	OversizeSplit   int   `json:"oversize_split"`
}

// Engine builds clusters from the similarity graph.
type Engine struct {
	edges  store.EdgeStore
	cfg    config.ClusteringConfig
	logger *slog.Logger
}

// NewEngine creates a cluster engine.
func NewEngine(edges store.EdgeStore, cfg config.ClusteringConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{edges: edges, cfg: cfg, logger: logger}
}

// BuildClusters fetches the edge set, partitions it into components, applies
// the oversize policy, and returns clusters of at least the minimum size.
// Cluster ids are deterministic functions of the membership, so identical
// graphs always yield identical cluster identities.
func (e *Engine) BuildClusters(ctx context.Context) ([]*types.Cluster, *Stats, error) {
	stats := &Stats{}

	count, err := e.edges.CountEdges(ctx, e.cfg.Relation)
	if err != nil {
		return nil, nil, fmt.Errorf("cluster: count edges: %w", err)
	}
	if count > e.cfg.MaxEdges {
		return nil, nil, fmt.Errorf("cluster: edge count %d exceeds limit %d; tighten blocking or raise max_edges", count, e.cfg.MaxEdges)
	}
	if count > e.cfg.WarnEdges {
		e.logger.Warn("large edge set", "edges", count, "warn_at", e.cfg.WarnEdges)
	}

	edges, err := e.edges.GetEdgesByRelation(ctx, e.cfg.Relation, e.cfg.MaxEdges)
	if err != nil {
		return nil, nil, fmt.Errorf("cluster: fetch edges: %w", err)
	}
	stats.EdgesFetched = int64(len(edges))

	uf := utils.NewUnionFind()
	for _, edge := range edges {
		uf.Union(edge.SourceID, edge.TargetID)
	}
	components := uf.Sets()
	stats.ComponentsFound = len(components)

	// Index edges by component root for stats and splitting.
	edgesByRoot := make(map[string][]*types.SimilarityEdge)
	for _, edge := range edges {
		root := uf.Find(edge.SourceID)
		edgesByRoot[root] = append(edgesByRoot[root], edge)
	}

	roots := make([]string, 0, len(components))
	for root := range components {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	var clusters []*types.Cluster
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		members := components[root]
		if len(members) < e.cfg.MinClusterSize {
			stats.BelowMinimum++
			continue
		}
		memberEdges := edgesByRoot[root]

		if len(members) > e.cfg.MaxClusterSize {
			switch e.cfg.OversizePolicy {
			case config.OversizeDrop:
				stats.OversizeDropped++
				e.logger.Warn("dropping oversized cluster", "size", len(members), "max", e.cfg.MaxClusterSize)
				continue
			case config.OversizeSplit:
				stats.OversizeSplit++
				for _, part := range splitComponent(memberEdges, e.cfg.MaxClusterSize) {
					if len(part.members) < e.cfg.MinClusterSize {
						stats.BelowMinimum++
						continue
					}
					clusters = append(clusters, e.newCluster(part.members, part.edges, false))
				}
				continue
			default: // flag
				stats.OversizeFlagged++
				clusters = append(clusters, e.newCluster(members, memberEdges, true))
				continue
			}
		}
		clusters = append(clusters, e.newCluster(members, memberEdges, false))
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })
	stats.ClustersKept = len(clusters)
	e.logger.Info("clustering complete",
		"edges", stats.EdgesFetched, "components", stats.ComponentsFound,
		"clusters", stats.ClustersKept, "oversize_flagged", stats.OversizeFlagged)
	return clusters, stats, nil
}

// ClusterID derives the deterministic id of a membership set.
func ClusterID(members []string) string {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "|")))
	return "cl-" + hex.EncodeToString(sum[:12])
}

func (e *Engine) newCluster(members []string, edges []*types.SimilarityEdge, oversized bool) *types.Cluster {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)

	stats := computeStats(len(sorted), edges, e.cfg.MaxClusterSize)
	return &types.Cluster{
		ID:            ClusterID(sorted),
		MemberIDs:     sorted,
		Stats:         stats,
		Status:        types.ClusterComputed,
		Oversized:     oversized,
		AvgConfidence: avgConfidence(edges),
		CreatedAt:     time.Now().UTC(),
	}
}

// avgConfidence is the mean pairwise decision confidence across the edges,
// distinct from the mean edge weight in Stats.
func avgConfidence(edges []*types.SimilarityEdge) float64 {
	if len(edges) == 0 {
		return 0
	}
	var sum float64
	for _, edge := range edges {
		sum += edge.Confidence
	}
	return sum / float64(len(edges))
}

// computeStats derives the edge-weight summary and the quality score. Quality
// blends size adequacy, density, and average weight; clusters past the size
// ceiling are penalized in proportion to the excess.
func computeStats(size int, edges []*types.SimilarityEdge, maxSize int) types.ClusterStats {
	cs := types.ClusterStats{Size: size, EdgeCount: len(edges)}
	if len(edges) > 0 {
		cs.MinWeight = edges[0].Weight
		cs.MaxWeight = edges[0].Weight
		var sum float64
		for _, edge := range edges {
			if edge.Weight < cs.MinWeight {
				cs.MinWeight = edge.Weight
			}
			if edge.Weight > cs.MaxWeight {
				cs.MaxWeight = edge.Weight
			}
			sum += edge.Weight
		}
		cs.AvgWeight = sum / float64(len(edges))
	}
	if size > 1 {
		cs.Density = 2 * float64(len(edges)) / float64(size*(size-1))
		if cs.Density > 1 {
			cs.Density = 1
		}
	}

	sizeAdequacy := 1.0
	if maxSize > 0 && size > maxSize {
		sizeAdequacy = 1 - float64(size-maxSize)/float64(maxSize)
		if sizeAdequacy < 0 {
			sizeAdequacy = 0
		}
	}
	cs.Quality = qualitySizeWeight*sizeAdequacy + qualityDensityWeight*cs.Density + qualityAvgWeight*cs.AvgWeight
	return cs
}

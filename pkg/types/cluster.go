package types

import "time"

// ClusterStatus tracks the cluster lifecycle. Terminal errors leave a
// cluster pending with no partial writes.
type ClusterStatus string

const (
	ClusterPending   ClusterStatus = "pending"
	ClusterComputed  ClusterStatus = "computed"
	ClusterPersisted ClusterStatus = "persisted"
)

// ClusterStats are derived per connected component.
type ClusterStats struct {
	Size      int     `json:"size"`
	EdgeCount int     `json:"edge_count"`
	MinWeight float64 `json:"min_weight"`
	AvgWeight float64 `json:"avg_weight"`
	MaxWeight float64 `json:"max_weight"`
	// Density is edges / (size*(size-1)/2).
	Density float64 `json:"density"`
	// Quality combines size adequacy, density and average weight.
	Quality float64 `json:"quality"`
}

// Cluster is a weakly-connected component of the similarity graph with at
// least min_cluster_size members. Members reference records by id only; the
// cluster never owns record objects.
type Cluster struct {
	ID        string        `json:"id"`
	MemberIDs []string      `json:"member_ids"`
	Stats     ClusterStats  `json:"stats"`
	Status    ClusterStatus `json:"status"`
	// Oversized flags components above max_cluster_size that were kept
	// intact under the flag policy.
	Oversized bool `json:"oversized,omitempty"`
	// AvgConfidence is the mean pairwise scoring confidence across the
	// cluster's internal edges, carried into golden records.
	AvgConfidence float64   `json:"avg_confidence"`
	CreatedAt     time.Time `json:"created_at"`
}

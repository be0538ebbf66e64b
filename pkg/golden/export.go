package golden

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/tributary-data/coalesce/pkg/types"
)

// ExportRow is the flattened Parquet representation of one golden record.
// Nested fields and provenance are JSON strings, matching how downstream
// analytics consume them.
type ExportRow struct {
	ID               string    `parquet:"id"`
	ClusterID        string    `parquet:"cluster_id"`
	MemberCount      int       `parquet:"member_count"`
	MemberIDs        string    `parquet:"member_ids"` // JSON array
	Fields           string    `parquet:"fields"`     // JSON object with provenance
	DataQualityScore float64   `parquet:"data_quality_score"`
	ConfidenceScore  float64   `parquet:"confidence_score"`
	EntityType       string    `parquet:"entity_type"`
	CreatedAt        time.Time `parquet:"created_at"`
}

// ExportParquet writes golden records to a timestamped Parquet file under
// dir and returns the file path.
func ExportParquet(dir string, records []*types.GoldenRecord) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("golden: create export directory: %w", err)
	}

	rows := make([]ExportRow, 0, len(records))
	for _, g := range records {
		members, err := json.Marshal(g.MemberIDs)
		if err != nil {
			return "", fmt.Errorf("golden: marshal members of %s: %w", g.ID, err)
		}
		fields, err := json.Marshal(g.Fields)
		if err != nil {
			return "", fmt.Errorf("golden: marshal fields of %s: %w", g.ID, err)
		}
		rows = append(rows, ExportRow{
			ID:               g.ID,
			ClusterID:        g.ClusterID,
			MemberCount:      len(g.MemberIDs),
			MemberIDs:        string(members),
			Fields:           string(fields),
			DataQualityScore: g.DataQualityScore,
			ConfidenceScore:  g.ConfidenceScore,
			EntityType:       g.EntityType,
			CreatedAt:        g.CreatedAt,
		})
	}

	path := filepath.Join(dir, fmt.Sprintf("golden_records_%s.parquet", time.Now().UTC().Format("20060102_150405")))
	if err := parquet.WriteFile(path, rows); err != nil {
		return "", fmt.Errorf("golden: write parquet: %w", err)
	}
	return path, nil
}

package embedder

import (
	"sort"
	"strings"

	"github.com/tributary-data/coalesce/pkg/types"
)

// SerializeRecord renders a record into the canonical text the embedding
// model sees. Field paths are sorted and empty fields omitted, so two records
// with identical content always serialize identically regardless of map
// iteration order.
func SerializeRecord(rec *types.Record) string {
	paths := rec.FieldPaths()
	sort.Strings(paths)

	var sb strings.Builder
	for _, path := range paths {
		text := rec.Text(path)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(path)
		sb.WriteString(": ")
		sb.WriteString(text)
	}
	return sb.String()
}

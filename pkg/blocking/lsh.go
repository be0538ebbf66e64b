package blocking

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"

	"github.com/tributary-data/coalesce/pkg/types"
	"github.com/tributary-data/coalesce/pkg/utils"
)

// LSHStrategy buckets embeddings by random-hyperplane signatures. Each of L
// tables holds k hyperplanes; a record's signature in a table is the k-bit
// sign pattern of its dot products. Records sharing a signature in any table
// become candidates. Hyperplanes are drawn from a fixed seed, so the same
// configuration always produces the same buckets.
type LSHStrategy struct {
	tables       int
	hyperplanes  int
	dimensions   int
	seed         int64
	maxBlockSize int

	// planes[t][h] is hyperplane h of table t, unit length.
	planes [][][]float32

	logger  *slog.Logger
	skipped int
}

// NewLSHStrategy builds the hyperplane tables up front.
func NewLSHStrategy(tables, hyperplanes, dimensions int, seed int64, maxBlockSize int, logger *slog.Logger) (*LSHStrategy, error) {
	if tables <= 0 || hyperplanes <= 0 || dimensions <= 0 {
		return nil, fmt.Errorf("blocking: lsh needs positive tables, hyperplanes, and dimensions")
	}
	if logger == nil {
		logger = slog.Default()
	}
	rng := rand.New(rand.NewSource(seed))
	planes := make([][][]float32, tables)
	for t := range planes {
		planes[t] = make([][]float32, hyperplanes)
		for h := range planes[t] {
			v := make([]float32, dimensions)
			for d := range v {
				v[d] = float32(rng.NormFloat64())
			}
			planes[t][h] = utils.Normalize(v)
		}
	}
	return &LSHStrategy{
		tables:       tables,
		hyperplanes:  hyperplanes,
		dimensions:   dimensions,
		seed:         seed,
		maxBlockSize: maxBlockSize,
		planes:       planes,
		logger:       logger,
	}, nil
}

func (s *LSHStrategy) Name() string {
	return fmt.Sprintf("lsh:L%d_k%d", s.tables, s.hyperplanes)
}

// signature computes the k-bit bucket key of an embedding in one table.
func (s *LSHStrategy) signature(table int, embedding []float32) string {
	var sb strings.Builder
	for _, plane := range s.planes[table] {
		if utils.DotProduct(plane, embedding) >= 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

func (s *LSHStrategy) Candidates(ctx context.Context, records []*types.Record) ([]types.CandidatePair, error) {
	s.skipped = 0
	merged := make(map[string]types.CandidatePair)
	for t := 0; t < s.tables; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kb := &keyedBlocks{maxBlockSize: s.maxBlockSize, logger: s.logger}
		blockKeyPrefix := "t" + strconv.Itoa(t) + ":"
		pairs := kb.pairs(records, s.Name(), func(rec *types.Record) (string, bool) {
			if len(rec.Embedding) != s.dimensions {
				return "", false
			}
			return blockKeyPrefix + s.signature(t, rec.Embedding), true
		})
		s.skipped += kb.skipped
		// Within-strategy dedup: the same pair often collides in several
		// tables.
		for _, p := range pairs {
			if _, ok := merged[p.Key()]; !ok {
				merged[p.Key()] = p
			}
		}
	}

	out := make([]types.CandidatePair, 0, len(merged))
	for _, p := range merged {
		out = append(out, p)
	}
	return out, nil
}

func (s *LSHStrategy) SkippedBlocks() int { return s.skipped }

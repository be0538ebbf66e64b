package blocking

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/tributary-data/coalesce/pkg/similarity"
	"github.com/tributary-data/coalesce/pkg/types"
)

// keyedBlocks buckets records by a key function, drops oversized blocks, and
// expands the rest into pairs. Records for which the key function returns
// false are skipped entirely.
type keyedBlocks struct {
	maxBlockSize int
	skipped      int
	logger       *slog.Logger
}

func (k *keyedBlocks) pairs(records []*types.Record, strategy string, keyOf func(*types.Record) (string, bool)) []types.CandidatePair {
	if k.logger == nil {
		k.logger = slog.Default()
	}
	blocks := make(map[string][]string)
	for _, rec := range records {
		key, ok := keyOf(rec)
		if !ok {
			continue
		}
		blocks[key] = append(blocks[key], rec.ID)
	}

	keys := make([]string, 0, len(blocks))
	for key := range blocks {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	k.skipped = 0
	var out []types.CandidatePair
	for _, key := range keys {
		ids := blocks[key]
		if len(ids) < 2 {
			continue
		}
		if k.maxBlockSize > 0 && len(ids) > k.maxBlockSize {
			k.skipped++
			k.logger.Warn("skipping oversized block",
				"strategy", strategy, "block_key", key, "size", len(ids), "max", k.maxBlockSize)
			continue
		}
		sort.Strings(ids)
		out = append(out, blockPairs(ids, strategy, key)...)
	}
	return out
}

// CompositeKeyStrategy blocks on the concatenation of several normalized
// field values. Records missing any component are skipped.
type CompositeKeyStrategy struct {
	Fields       []string
	MaxBlockSize int

	logger  *slog.Logger
	skipped int
}

func (s *CompositeKeyStrategy) Name() string {
	return "composite:" + strings.Join(s.Fields, "+")
}

func (s *CompositeKeyStrategy) Candidates(ctx context.Context, records []*types.Record) ([]types.CandidatePair, error) {
	kb := &keyedBlocks{maxBlockSize: s.MaxBlockSize, logger: s.logger}
	pairs := kb.pairs(records, s.Name(), func(rec *types.Record) (string, bool) {
		parts := make([]string, 0, len(s.Fields))
		for _, field := range s.Fields {
			text := normalizeKey(rec.Text(field))
			if text == "" {
				return "", false
			}
			parts = append(parts, text)
		}
		return strings.Join(parts, "|"), true
	})
	s.skipped = kb.skipped
	return pairs, nil
}

func (s *CompositeKeyStrategy) SkippedBlocks() int { return s.skipped }

// ExactFieldStrategy blocks on one normalized field value.
type ExactFieldStrategy struct {
	Field        string
	MaxBlockSize int

	logger  *slog.Logger
	skipped int
}

func (s *ExactFieldStrategy) Name() string { return "exact:" + s.Field }

func (s *ExactFieldStrategy) Candidates(ctx context.Context, records []*types.Record) ([]types.CandidatePair, error) {
	kb := &keyedBlocks{maxBlockSize: s.MaxBlockSize, logger: s.logger}
	pairs := kb.pairs(records, s.Name(), func(rec *types.Record) (string, bool) {
		text := normalizeKey(rec.Text(s.Field))
		return text, text != ""
	})
	s.skipped = kb.skipped
	return pairs, nil
}

func (s *ExactFieldStrategy) SkippedBlocks() int { return s.skipped }

// PhoneticStrategy blocks on the Soundex code of one field, so spelling
// variants of the same name land in one block.
type PhoneticStrategy struct {
	Field        string
	MaxBlockSize int

	logger  *slog.Logger
	skipped int
}

func (s *PhoneticStrategy) Name() string { return "phonetic:" + s.Field }

func (s *PhoneticStrategy) Candidates(ctx context.Context, records []*types.Record) ([]types.CandidatePair, error) {
	kb := &keyedBlocks{maxBlockSize: s.MaxBlockSize, logger: s.logger}
	pairs := kb.pairs(records, s.Name(), func(rec *types.Record) (string, bool) {
		code := similarity.Soundex(rec.Text(s.Field))
		return code, code != ""
	})
	s.skipped = kb.skipped
	return pairs, nil
}

func (s *PhoneticStrategy) SkippedBlocks() int { return s.skipped }

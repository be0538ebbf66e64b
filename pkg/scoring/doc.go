// Package scoring turns candidate pairs into scored pairs. Pairs are
// processed in batches: each batch costs exactly one bulk record fetch, then
// comparison runs CPU-bound across a worker pool. Hooks can filter pairs,
// rewrite field text before comparison, and adjust aggregated outcomes.
package scoring

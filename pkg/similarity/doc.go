// Package similarity provides the stateless field comparators and the
// Fellegi-Sunter aggregator used to score candidate pairs.
//
// Every comparator yields a similarity in [0,1]. Empty or null inputs score
// 0.0 even when both sides are empty: missing data must never count as
// agreement. The aggregator is pure; identical inputs always produce
// bit-identical scores.
package similarity

// Package blocking generates candidate pairs without comparing every record
// against every other. Strategies bucket records by key (composite fields,
// exact values, phonetic codes, LSH signatures) or query the store's text and
// vector indexes; the engine merges their output into one deduplicated pair
// set carrying per-strategy provenance.
package blocking

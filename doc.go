// Package coalesce resolves duplicate records across data sources into
// canonical golden records.
//
// A resolution run flows through five phases over a pluggable record store:
//
//  1. Blocking generates candidate pairs with composite keys, phonetic
//     codes, text search, vector k-NN, or LSH, without comparing every
//     record against every other.
//  2. Scoring evaluates each candidate pair field by field and aggregates
//     the similarities into a probabilistic match decision.
//  3. Graph building persists match decisions as weighted edges.
//  4. Clustering finds connected components in the similarity graph.
//  5. Fusion merges each cluster into one golden record with per-field
//     provenance.
//
// The top-level Client wires these phases over one store:
//
//	cfg, _ := config.Load()
//	client, _ := coalesce.NewClient(cfg, logger)
//	defer client.Close()
//
//	report, _ := client.Run(ctx, &cfg.Pipeline, pipeline.Options{})
//
// Stores are interchangeable: Badger for embedded single-node use, Neo4j
// for shared graph-backed deployments, and an in-memory store for tests.
package coalesce

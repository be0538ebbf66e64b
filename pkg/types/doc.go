// Package types defines the data model shared by every stage of the
// resolution pipeline: records, candidate pairs, scored pairs, similarity
// edges, clusters and golden records.
//
// Records are immutable inputs. Candidate pairs exist only while a pipeline
// is streaming; scored pairs may be persisted as similarity edges. Clusters
// and golden records are durable outputs, recomputable from the inputs and
// the configuration.
package types

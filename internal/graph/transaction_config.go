package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Operation names used as transaction metadata
const (
	OpNodeBatch  = "node_batch"
	OpEdgeBatch  = "edge_batch"
	OpNodeMerge  = "node_merge"
	OpEdgeMerge  = "edge_merge"
	OpConstraint = "constraint"
)

// TransactionConfig defines timeout and metadata for one kind of write.
// Metadata shows up in Neo4j's query.log, which makes slow batches easy to
// attribute to a label or relationship type.
type TransactionConfig struct {
	Timeout  time.Duration
	Metadata map[string]any
}

// DefaultTransactionConfigs returns the configs used per operation
func DefaultTransactionConfigs() map[string]TransactionConfig {
	return map[string]TransactionConfig{
		OpNodeBatch: {
			Timeout: 3 * time.Minute,
			Metadata: map[string]any{
				"operation": OpNodeBatch,
				"type":      "write",
			},
		},
		OpEdgeBatch: {
			Timeout: 3 * time.Minute,
			Metadata: map[string]any{
				"operation": OpEdgeBatch,
				"type":      "write",
			},
		},
		OpNodeMerge: {
			Timeout: 30 * time.Second,
			Metadata: map[string]any{
				"operation": OpNodeMerge,
				"type":      "write",
			},
		},
		OpEdgeMerge: {
			Timeout: 30 * time.Second,
			Metadata: map[string]any{
				"operation": OpEdgeMerge,
				"type":      "write",
			},
		},
		// Constraint creation builds an index and can be slow on a loaded graph
		OpConstraint: {
			Timeout: 5 * time.Minute,
			Metadata: map[string]any{
				"operation": OpConstraint,
				"type":      "schema",
			},
		},
	}
}

// GetConfigForOperation returns the config for an operation, or a 60s
// fallback tagged with the operation name
func GetConfigForOperation(operation string) TransactionConfig {
	if config, ok := DefaultTransactionConfigs()[operation]; ok {
		return config
	}

	return TransactionConfig{
		Timeout: 60 * time.Second,
		Metadata: map[string]any{
			"operation": operation,
			"type":      "unknown",
		},
	}
}

// WithCustomMetadata returns a copy with one extra metadata entry
func (tc TransactionConfig) WithCustomMetadata(key string, value any) TransactionConfig {
	newConfig := TransactionConfig{
		Timeout:  tc.Timeout,
		Metadata: make(map[string]any, len(tc.Metadata)+1),
	}
	for k, v := range tc.Metadata {
		newConfig.Metadata[k] = v
	}
	newConfig.Metadata[key] = value
	return newConfig
}

// AsNeo4jConfig converts to driver transaction configurers for ExecuteWrite
func (tc TransactionConfig) AsNeo4jConfig() []func(*neo4j.TransactionConfig) {
	configs := []func(*neo4j.TransactionConfig){}
	if tc.Timeout > 0 {
		configs = append(configs, neo4j.WithTxTimeout(tc.Timeout))
	}
	if len(tc.Metadata) > 0 {
		configs = append(configs, neo4j.WithTxMetadata(tc.Metadata))
	}
	return configs
}

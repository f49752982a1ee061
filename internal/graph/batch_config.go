package graph

// BatchConfig defines UNWIND batch sizes for the Neo4j backend.
//
// Germplasm nodes carry ~17 properties and studies carry list properties, so
// they get smaller batches than edges, which carry none.
type BatchConfig struct {
	NodeBatchSize int            // Default for labels without an override
	EdgeBatchSize int            // All relationship types
	LabelSizes    map[string]int // Per-label overrides
}

// DefaultBatchConfig returns batch sizes suited to a full BrAPI export
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		NodeBatchSize: 500,
		EdgeBatchSize: 5000,
		LabelSizes: map[string]int{
			"germplasm": 200,
			"study":     200,
		},
	}
}

// SmallBatchConfig uses smaller batches to reduce transaction memory
func SmallBatchConfig() BatchConfig {
	return BatchConfig{
		NodeBatchSize: 100,
		EdgeBatchSize: 1000,
	}
}

// GetBatchSizeForLabel returns the batch size for a node label
func (bc BatchConfig) GetBatchSizeForLabel(label string) int {
	if size, ok := bc.LabelSizes[label]; ok && size > 0 {
		return size
	}
	if bc.NodeBatchSize > 0 {
		return bc.NodeBatchSize
	}
	return 500
}

// GetEdgeBatchSize returns the edge batch size, falling back to the default
func (bc BatchConfig) GetEdgeBatchSize() int {
	if bc.EdgeBatchSize > 0 {
		return bc.EdgeBatchSize
	}
	return 5000
}

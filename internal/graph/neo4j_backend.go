package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/brapikg/internal/errors"
	"github.com/rohankatakam/brapikg/internal/logging"
)

// EdgeEndpoints names the node labels a relationship type connects
type EdgeEndpoints struct {
	From string
	To   string
}

// EdgeSchema maps relationship types to their endpoint labels. Edge records
// only carry ids, so the backend needs it to MATCH endpoints by label.
type EdgeSchema map[string]EdgeEndpoints

// queryRunner executes a write query in its own transaction and returns the
// "created" count of the first record
type queryRunner func(ctx context.Context, tc TransactionConfig, query string, params map[string]any) (int64, error)

// Neo4jBackend writes node and edge sequences into Neo4j with UNWIND batches
type Neo4jBackend struct {
	driver   neo4j.DriverWithContext
	database string
	batch    BatchConfig
	schema   EdgeSchema
	limiter  *rate.Limiter
	run      queryRunner
}

// Neo4jOption configures a Neo4jBackend
type Neo4jOption func(*Neo4jBackend)

// WithBatchConfig overrides the default batch sizes
func WithBatchConfig(cfg BatchConfig) Neo4jOption {
	return func(n *Neo4jBackend) { n.batch = cfg }
}

// WithEdgeSchema sets endpoint labels used when matching edge endpoints
func WithEdgeSchema(schema EdgeSchema) Neo4jOption {
	return func(n *Neo4jBackend) { n.schema = schema }
}

// WithRateLimit caps batch queries per second; zero or less means unlimited
func WithRateLimit(batchesPerSecond float64) Neo4jOption {
	return func(n *Neo4jBackend) {
		if batchesPerSecond > 0 {
			n.limiter = rate.NewLimiter(rate.Limit(batchesPerSecond), 1)
		}
	}
}

// NewNeo4jBackend creates a Neo4j backend and verifies connectivity
func NewNeo4jBackend(ctx context.Context, uri, username, password, database string, opts ...Neo4jOption) (*Neo4jBackend, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, errors.DatabaseError(err, "failed to create Neo4j driver")
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, errors.DatabaseErrorf(err, "failed to connect to Neo4j at %s", uri)
	}

	n := newBackend(database, opts...)
	n.driver = driver
	n.run = n.executeWrite
	return n, nil
}

func newBackend(database string, opts ...Neo4jOption) *Neo4jBackend {
	n := &Neo4jBackend{
		database: database,
		batch:    DefaultBatchConfig(),
		schema:   EdgeSchema{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Neo4jBackend) executeWrite(ctx context.Context, tc TransactionConfig, query string, params map[string]any) (int64, error) {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: n.database,
	})
	defer session.Close(ctx)

	created, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return int64(0), err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return int64(0), err
		}
		if len(records) > 0 {
			if c, ok := records[0].Get("created"); ok {
				if count, ok := c.(int64); ok {
					return count, nil
				}
			}
		}
		return int64(0), nil
	}, tc.AsNeo4jConfig()...)
	if err != nil {
		return 0, err
	}
	return created.(int64), nil
}

func (n *Neo4jBackend) wait(ctx context.Context) error {
	if n.limiter == nil {
		return nil
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// EnsureConstraints creates a uniqueness constraint on the id key of each label
func (n *Neo4jBackend) EnsureConstraints(ctx context.Context, labels []string) error {
	for _, label := range labels {
		query, err := BuildUniqueConstraint(label, NodeKey)
		if err != nil {
			return errors.ValidationError(err, "invalid constraint")
		}
		tc := GetConfigForOperation(OpConstraint).WithCustomMetadata("label", label)
		if _, err := n.run(ctx, tc, query, nil); err != nil {
			return errors.DatabaseErrorf(err, "failed to create constraint for %s", label)
		}
	}
	return nil
}

// CreateNode merges a single node
func (n *Neo4jBackend) CreateNode(ctx context.Context, node GraphNode) error {
	builder := NewCypherBuilder()
	cypher, err := builder.BuildMergeNode(node.Label, NodeKey, node.ID, node.Properties)
	if err != nil {
		return errors.ValidationError(err, "failed to build node query")
	}

	tc := GetConfigForOperation(OpNodeMerge).WithCustomMetadata("label", node.Label)
	if _, err := n.run(ctx, tc, cypher, builder.Params()); err != nil {
		return errors.DatabaseErrorf(err, "failed to create %s node %s", node.Label, node.ID)
	}
	return nil
}

// CreateEdge merges a single edge. The relationship type must be in the edge
// schema. It reports false when an endpoint does not exist.
func (n *Neo4jBackend) CreateEdge(ctx context.Context, edge GraphEdge) (bool, error) {
	endpoints, ok := n.schema[edge.Label]
	if !ok {
		return false, errors.ValidationErrorf("no endpoint labels for relationship type %q", edge.Label)
	}

	builder := NewCypherBuilder()
	cypher, err := builder.BuildMergeEdge(
		endpoints.From, NodeKey, edge.From,
		endpoints.To, NodeKey, edge.To,
		edge.Label, edge.Properties)
	if err != nil {
		return false, errors.ValidationError(err, "failed to build edge query")
	}

	tc := GetConfigForOperation(OpEdgeMerge).WithCustomMetadata("type", edge.Label)
	created, err := n.run(ctx, tc, cypher, builder.Params())
	if err != nil {
		return false, errors.DatabaseErrorf(err, "failed to create %s edge %s->%s", edge.Label, edge.From, edge.To)
	}
	return created > 0, nil
}

// WriteNodes buffers nodes per label and flushes each buffer as one UNWIND batch
// when it reaches the label's batch size. Remaining buffers flush in first-seen
// label order once the sequence ends.
func (n *Neo4jBackend) WriteNodes(ctx context.Context, nodes NodeSeq) (int, error) {
	buffers := make(map[string][]map[string]any)
	var order []string
	written := 0

	flush := func(label string) error {
		batch := buffers[label]
		if len(batch) == 0 {
			return nil
		}
		query, err := buildNodeBatchQuery(label)
		if err != nil {
			return errors.ValidationError(err, "failed to build node batch query")
		}
		if err := n.wait(ctx); err != nil {
			return err
		}
		tc := GetConfigForOperation(OpNodeBatch).WithCustomMetadata("label", label)
		if _, err := n.run(ctx, tc, query, map[string]any{"nodes": batch}); err != nil {
			return errors.DatabaseErrorf(err, "batch %s creation failed (%d nodes)", label, len(batch))
		}
		written += len(batch)
		buffers[label] = nil
		return nil
	}

	for node, err := range nodes {
		if err != nil {
			return written, err
		}
		if _, seen := buffers[node.Label]; !seen {
			order = append(order, node.Label)
		}
		buffers[node.Label] = append(buffers[node.Label], map[string]any{
			"id":         node.ID,
			"properties": node.Properties,
		})
		if len(buffers[node.Label]) >= n.batch.GetBatchSizeForLabel(node.Label) {
			if err := flush(node.Label); err != nil {
				return written, err
			}
		}
	}

	for _, label := range order {
		if err := flush(label); err != nil {
			return written, err
		}
	}

	logging.Info("wrote nodes to neo4j", "count", written, "database", n.database)
	return written, nil
}

// WriteEdges buffers edges per relationship type and flushes them in UNWIND
// batches. Edges whose endpoints do not exist match nothing and are dropped by
// Neo4j; the shortfall is logged, not returned.
func (n *Neo4jBackend) WriteEdges(ctx context.Context, edges EdgeSeq) (int, error) {
	buffers := make(map[string][]map[string]any)
	var order []string
	written := 0
	batchSize := n.batch.GetEdgeBatchSize()

	flush := func(label string) error {
		batch := buffers[label]
		if len(batch) == 0 {
			return nil
		}
		query, err := buildEdgeBatchQuery(label, n.schema[label])
		if err != nil {
			return errors.ValidationError(err, "failed to build edge batch query")
		}
		if err := n.wait(ctx); err != nil {
			return err
		}
		tc := GetConfigForOperation(OpEdgeBatch).WithCustomMetadata("type", label)
		created, err := n.run(ctx, tc, query, map[string]any{"edges": batch})
		if err != nil {
			return errors.DatabaseErrorf(err, "batch edge creation failed for %s (%d edges)", label, len(batch))
		}
		if created < int64(len(batch)) {
			logging.Warn("some edges were not created, endpoints may be missing",
				"type", label, "created", created, "batch", len(batch))
		}
		written += len(batch)
		buffers[label] = nil
		return nil
	}

	for edge, err := range edges {
		if err != nil {
			return written, err
		}
		if _, seen := buffers[edge.Label]; !seen {
			order = append(order, edge.Label)
		}
		buffers[edge.Label] = append(buffers[edge.Label], map[string]any{
			"from":       edge.From,
			"to":         edge.To,
			"properties": edge.Properties,
		})
		if len(buffers[edge.Label]) >= batchSize {
			if err := flush(edge.Label); err != nil {
				return written, err
			}
		}
	}

	for _, label := range order {
		if err := flush(label); err != nil {
			return written, err
		}
	}

	logging.Info("wrote edges to neo4j", "count", written, "database", n.database)
	return written, nil
}

// Close closes the Neo4j driver connection
func (n *Neo4jBackend) Close(ctx context.Context) error {
	if n.driver == nil {
		return nil
	}
	if err := n.driver.Close(ctx); err != nil {
		return fmt.Errorf("close neo4j driver: %w", err)
	}
	return nil
}

package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// NodeKey is the property every node is merged on.
const NodeKey = "id"

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// CypherBuilder builds parameterized Cypher queries.
// Every value goes through a parameter; labels and keys are validated identifiers.
type CypherBuilder struct {
	params  map[string]any
	counter int
}

// NewCypherBuilder creates a query builder
func NewCypherBuilder() *CypherBuilder {
	return &CypherBuilder{
		params: make(map[string]any),
	}
}

// AddParam adds a parameter and returns its placeholder
func (b *CypherBuilder) AddParam(value any) string {
	paramName := fmt.Sprintf("p%d", b.counter)
	b.counter++
	b.params[paramName] = value
	return "$" + paramName
}

// Params returns all parameters for the query
func (b *CypherBuilder) Params() map[string]any {
	return b.params
}

// BuildMergeNode creates a MERGE query for a single node.
// Properties are emitted in key order so the query text is stable.
func (b *CypherBuilder) BuildMergeNode(label string, uniqueKey string, uniqueValue any, properties map[string]any) (string, error) {
	if !isValidIdentifier(label) {
		return "", fmt.Errorf("invalid node label: %s (must be alphanumeric + underscore)", label)
	}
	if !isValidIdentifier(uniqueKey) {
		return "", fmt.Errorf("invalid unique key: %s (must be alphanumeric + underscore)", uniqueKey)
	}

	uniqueParam := b.AddParam(uniqueValue)

	setClauses := []string{}
	for _, key := range sortedKeys(properties) {
		if !isValidIdentifier(key) {
			return "", fmt.Errorf("invalid property key: %s (must be alphanumeric + underscore)", key)
		}
		paramName := b.AddParam(properties[key])
		setClauses = append(setClauses, fmt.Sprintf("n.%s = %s", key, paramName))
	}

	query := fmt.Sprintf("MERGE (n:%s {%s: %s})", label, uniqueKey, uniqueParam)
	if len(setClauses) > 0 {
		query += " SET " + strings.Join(setClauses, ", ")
	}
	return query + " RETURN elementId(n) AS id", nil
}

// BuildMergeEdge creates a MATCH/MATCH/MERGE query for a single edge
func (b *CypherBuilder) BuildMergeEdge(
	fromLabel, fromKey string, fromValue any,
	toLabel, toKey string, toValue any,
	edgeLabel string,
	properties map[string]any,
) (string, error) {
	for _, id := range []string{fromLabel, fromKey, toLabel, toKey, edgeLabel} {
		if !isValidIdentifier(id) {
			return "", fmt.Errorf("invalid identifier in edge query: %q", id)
		}
	}

	fromParam := b.AddParam(fromValue)
	toParam := b.AddParam(toValue)

	var propsStr string
	if len(properties) > 0 {
		propClauses := []string{}
		for _, key := range sortedKeys(properties) {
			if !isValidIdentifier(key) {
				return "", fmt.Errorf("invalid edge property key: %s", key)
			}
			paramName := b.AddParam(properties[key])
			propClauses = append(propClauses, fmt.Sprintf("r.%s = %s", key, paramName))
		}
		propsStr = " SET " + strings.Join(propClauses, ", ")
	}

	return fmt.Sprintf(
		"MATCH (from:%s {%s: %s}) MATCH (to:%s {%s: %s}) MERGE (from)-[r:%s]->(to)%s RETURN count(r) AS created",
		fromLabel, fromKey, fromParam,
		toLabel, toKey, toParam,
		edgeLabel,
		propsStr,
	), nil
}

// BuildUniqueConstraint returns the idempotent uniqueness constraint for a label
func BuildUniqueConstraint(label, key string) (string, error) {
	if !isValidIdentifier(label) || !isValidIdentifier(key) {
		return "", fmt.Errorf("invalid constraint target: %s.%s", label, key)
	}
	return fmt.Sprintf(
		"CREATE CONSTRAINT %s_%s_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		strings.ToLower(label), key, label, key,
	), nil
}

// buildNodeBatchQuery returns the UNWIND query for one node label.
// Expects $nodes as a list of {id, properties} maps.
func buildNodeBatchQuery(label string) (string, error) {
	if !isValidIdentifier(label) {
		return "", fmt.Errorf("invalid node label: %s", label)
	}
	return fmt.Sprintf(
		"UNWIND $nodes AS node MERGE (n:%s {%s: node.id}) SET n += node.properties RETURN count(n) AS created",
		label, NodeKey,
	), nil
}

// buildEdgeBatchQuery returns the UNWIND query for one relationship type.
// Empty endpoint labels match any node carrying the id.
func buildEdgeBatchQuery(edgeLabel string, endpoints EdgeEndpoints) (string, error) {
	if !isValidIdentifier(edgeLabel) {
		return "", fmt.Errorf("invalid edge label: %s", edgeLabel)
	}
	from, err := matchPattern("from", endpoints.From)
	if err != nil {
		return "", err
	}
	to, err := matchPattern("to", endpoints.To)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"UNWIND $edges AS edge MATCH (%s {%s: edge.from}) MATCH (%s {%s: edge.to}) MERGE (from)-[r:%s]->(to) SET r += edge.properties RETURN count(r) AS created",
		from, NodeKey, to, NodeKey, edgeLabel,
	), nil
}

func matchPattern(variable, label string) (string, error) {
	if label == "" {
		return variable, nil
	}
	if !isValidIdentifier(label) {
		return "", fmt.Errorf("invalid endpoint label: %s", label)
	}
	return variable + ":" + label, nil
}

// isValidIdentifier reports whether s can be used as a Cypher label or key
func isValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package memconn implements the in-memory connector: a single-process
// table_name -> tabular data map, intended for tests only. Per spec §4.6 it
// is explicitly not thread-safe; callers must serialise access (the
// executor's single-threaded cooperative scheduler already does).
package memconn

import (
	"context"
	"fmt"

	"github.com/giaosudau/sqlflow-sub007/internal/connector"
)

// Store is process-wide shared state: one *Store instance backs every
// memconn.Connector configured with the same table_name within a process,
// per §9's "global state" guidance of isolating it behind a single owner.
type Store struct {
	tables map[string]connector.DataChunk
}

// NewStore constructs an empty Store. Tests typically construct one Store
// per test to avoid cross-test leakage.
func NewStore() *Store {
	return &Store{tables: map[string]connector.DataChunk{}}
}

// Connector implements connector.Source and connector.Destination against a
// single table_name within a shared *Store.
type Connector struct {
	store     *Store
	tableName string
}

// New binds a Connector to store; Configure still selects the table_name.
func New(store *Store) *Connector {
	return &Connector{store: store}
}

func (c *Connector) Configure(params map[string]any) error {
	name, ok := params["table_name"].(string)
	if !ok || name == "" {
		return &connector.ConnectorConfig{Connector: "memory", Reason: "table_name is required"}
	}
	c.tableName = name
	return nil
}

func (c *Connector) TestConnection(ctx context.Context) (connector.ConnectionTest, error) {
	return connector.ConnectionTest{OK: true}, nil
}

func (c *Connector) Read(ctx context.Context, object string, options map[string]any) (<-chan connector.DataChunk, <-chan error) {
	chunks := make(chan connector.DataChunk, 1)
	errs := make(chan error, 1)
	chunk, ok := c.store.tables[c.tableName]
	if !ok {
		errs <- fmt.Errorf("memconn: table %q has no data", c.tableName)
		close(chunks)
		close(errs)
		return chunks, errs
	}
	chunks <- chunk
	close(chunks)
	close(errs)
	return chunks, errs
}

// ReadIncremental filters rows whose cursorField value exceeds cursorValue,
// per §4.6's "rows whose cursor_field > cursor_value".
func (c *Connector) ReadIncremental(ctx context.Context, object, cursorField, cursorValue string) (<-chan connector.DataChunk, <-chan error) {
	chunks := make(chan connector.DataChunk, 1)
	errs := make(chan error, 1)
	defer close(chunks)
	defer close(errs)

	chunk, ok := c.store.tables[c.tableName]
	if !ok {
		errs <- fmt.Errorf("memconn: table %q has no data", c.tableName)
		return chunks, errs
	}

	colIdx := -1
	for i, col := range chunk.Schema {
		if col.Name == cursorField {
			colIdx = i
			break
		}
	}
	if colIdx == -1 {
		errs <- fmt.Errorf("memconn: cursor field %q not present in table %q", cursorField, c.tableName)
		return chunks, errs
	}

	var filtered [][]any
	for _, row := range chunk.Rows {
		if fmt.Sprintf("%v", row[colIdx]) > cursorValue {
			filtered = append(filtered, row)
		}
	}
	chunks <- connector.DataChunk{Schema: chunk.Schema, Rows: filtered}
	return chunks, errs
}

func (c *Connector) Describe(ctx context.Context, object string) (connector.Schema, error) {
	chunk, ok := c.store.tables[c.tableName]
	if !ok {
		return nil, fmt.Errorf("memconn: table %q has no data", c.tableName)
	}
	return chunk.Schema, nil
}

func (c *Connector) Write(ctx context.Context, object string, chunks []connector.DataChunk, mode connector.LoadMode, mergeKeys []string) (connector.WriteResult, error) {
	existing := c.store.tables[c.tableName]

	switch mode {
	case connector.ModeReplace:
		var merged connector.DataChunk
		for _, ch := range chunks {
			merged.Schema = ch.Schema
			merged.Rows = append(merged.Rows, ch.Rows...)
		}
		c.store.tables[c.tableName] = merged
		return connector.WriteResult{RowsWritten: int64(len(merged.Rows))}, nil

	case connector.ModeAppend:
		merged := existing
		for _, ch := range chunks {
			if merged.Schema == nil {
				merged.Schema = ch.Schema
			}
			merged.Rows = append(merged.Rows, ch.Rows...)
		}
		c.store.tables[c.tableName] = merged
		return connector.WriteResult{RowsWritten: int64(len(merged.Rows))}, nil

	case connector.ModeUpsert, connector.ModeMerge:
		merged, written := upsert(existing, chunks, mergeKeys)
		c.store.tables[c.tableName] = merged
		return connector.WriteResult{RowsWritten: written}, nil

	default:
		return connector.WriteResult{}, fmt.Errorf("memconn: unknown load mode %q", mode)
	}
}

func upsert(existing connector.DataChunk, incoming []connector.DataChunk, mergeKeys []string) (connector.DataChunk, int64) {
	merged := existing
	index := map[string]int{}
	keyIdx := columnIndexes(merged.Schema, mergeKeys)
	for i, row := range merged.Rows {
		index[rowKey(row, keyIdx)] = i
	}

	var written int64
	for _, ch := range incoming {
		if merged.Schema == nil {
			merged.Schema = ch.Schema
			keyIdx = columnIndexes(merged.Schema, mergeKeys)
		}
		for _, row := range ch.Rows {
			k := rowKey(row, keyIdx)
			if i, ok := index[k]; ok {
				merged.Rows[i] = row
			} else {
				merged.Rows = append(merged.Rows, row)
				index[k] = len(merged.Rows) - 1
			}
			written++
		}
	}
	return merged, written
}

func columnIndexes(schema connector.Schema, names []string) []int {
	idx := make([]int, len(names))
	for i, name := range names {
		idx[i] = -1
		for j, col := range schema {
			if col.Name == name {
				idx[i] = j
				break
			}
		}
	}
	return idx
}

func rowKey(row []any, idx []int) string {
	key := ""
	for _, i := range idx {
		if i >= 0 && i < len(row) {
			key += fmt.Sprintf("%v\x00", row[i])
		}
	}
	return key
}

// Package parquetconn implements the Parquet source connector variant:
// {path, columns?, combine_files?, batch_size?}, via parquet-go/parquet-go.
// SQLFlow only needs Parquet as a source (no destination keys are defined
// in spec §6's connector parameter surface).
package parquetconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/giaosudau/sqlflow-sub007/internal/connector"
)

const defaultBatchSize = 1024

// Connector implements connector.Source for one or more local Parquet
// files.
type Connector struct {
	paths        []string
	columns      []string
	combineFiles bool
	batchSize    int
}

// New returns an unconfigured Connector.
func New() *Connector {
	return &Connector{batchSize: defaultBatchSize}
}

func (c *Connector) Configure(params map[string]any) error {
	path, ok := params["path"].(string)
	if !ok || path == "" {
		return &connector.ConnectorConfig{Connector: "parquet", Reason: "path is required"}
	}
	c.paths = []string{path}

	if cols, ok := params["columns"].([]any); ok {
		for _, v := range cols {
			if s, ok := v.(string); ok {
				c.columns = append(c.columns, s)
			}
		}
	}
	if v, ok := params["combine_files"].(bool); ok {
		c.combineFiles = v
	}
	c.batchSize = defaultBatchSize
	if v, ok := params["batch_size"].(int); ok && v > 0 {
		c.batchSize = v
	}
	return nil
}

func (c *Connector) TestConnection(ctx context.Context) (connector.ConnectionTest, error) {
	for _, p := range c.paths {
		if _, err := os.Stat(p); err != nil {
			return connector.ConnectionTest{OK: false, Message: err.Error()}, nil
		}
	}
	return connector.ConnectionTest{OK: true}, nil
}

func (c *Connector) Read(ctx context.Context, object string, options map[string]any) (<-chan connector.DataChunk, <-chan error) {
	chunks := make(chan connector.DataChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for _, path := range c.paths {
			if err := c.readFile(ctx, path, chunks); err != nil {
				errs <- err
				return
			}
		}
	}()
	return chunks, errs
}

func (c *Connector) ReadIncremental(ctx context.Context, object, cursorField, cursorValue string) (<-chan connector.DataChunk, <-chan error) {
	errs := make(chan error, 1)
	errs <- connector.ErrIncrementalUnsupported
	close(errs)
	chunks := make(chan connector.DataChunk)
	close(chunks)
	return chunks, errs
}

func (c *Connector) Describe(ctx context.Context, object string) (connector.Schema, error) {
	if len(c.paths) == 0 {
		return nil, &connector.ConnectorConfig{Connector: "parquet", Reason: "not configured"}
	}
	f, err := os.Open(c.paths[0])
	if err != nil {
		return nil, &connector.ConnectionFailed{Connector: "parquet", Cause: err}
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, &connector.ConnectionFailed{Connector: "parquet", Cause: err}
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, &connector.ConnectionFailed{Connector: "parquet", Cause: err}
	}
	return schemaOf(pf.Schema(), c.columns), nil
}

func (c *Connector) readFile(ctx context.Context, path string, chunks chan<- connector.DataChunk) error {
	f, err := os.Open(path)
	if err != nil {
		return &connector.ConnectionFailed{Connector: "parquet", Cause: err}
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return &connector.ConnectionFailed{Connector: "parquet", Cause: err}
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return &connector.ConnectionFailed{Connector: "parquet", Cause: err}
	}

	schema := schemaOf(pf.Schema(), c.columns)
	fieldIdx := fieldIndexes(pf.Schema(), c.columns)

	reader := parquet.NewReader(f, pf.Schema())
	defer reader.Close()

	buf := make([]parquet.Row, c.batchSize)
	for {
		n, readErr := reader.ReadRows(buf)
		if n > 0 {
			rows := make([][]any, n)
			for i := 0; i < n; i++ {
				rows[i] = projectRow(buf[i], fieldIdx)
			}
			select {
			case chunks <- connector.DataChunk{Schema: schema, Rows: rows}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return &connector.ConnectionFailed{Connector: "parquet", Cause: readErr}
		}
	}
}

func schemaOf(s *parquet.Schema, columns []string) connector.Schema {
	fields := s.Fields()
	var out connector.Schema
	for _, f := range fields {
		if len(columns) > 0 && !contains(columns, f.Name()) {
			continue
		}
		out = append(out, connector.Column{Name: f.Name(), Type: parquetTypeName(f)})
	}
	return out
}

func fieldIndexes(s *parquet.Schema, columns []string) []int {
	fields := s.Fields()
	var idx []int
	for i, f := range fields {
		if len(columns) == 0 || contains(columns, f.Name()) {
			idx = append(idx, i)
		}
	}
	return idx
}

func projectRow(row parquet.Row, idx []int) []any {
	out := make([]any, len(idx))
	for i, fieldIdx := range idx {
		out[i] = valueOf(row, fieldIdx)
	}
	return out
}

// valueOf extracts the leaf value for fieldIdx out of row. SQLFlow's
// Parquet support targets flat (non-nested) schemas; row[fieldIdx] holds
// that column's value directly for such schemas.
func valueOf(row parquet.Row, fieldIdx int) any {
	if fieldIdx >= len(row) {
		return nil
	}
	v := row[fieldIdx]
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return fmt.Sprintf("%v", v)
	}
}

func parquetTypeName(f parquet.Field) string {
	switch f.Type().Kind() {
	case parquet.Boolean:
		return "boolean"
	case parquet.Int32:
		return "integer"
	case parquet.Int64:
		return "bigint"
	case parquet.Float, parquet.Double:
		return "decimal"
	default:
		return "text"
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

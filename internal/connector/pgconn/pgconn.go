// Package pgconn implements the PostgreSQL connector variant:
// {host, port, dbname, user, password, table?|query?, schema?}, via pgx/v5
// (the teacher's own Postgres driver choice).
package pgconn

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/giaosudau/sqlflow-sub007/internal/connector"
	"github.com/giaosudau/sqlflow-sub007/internal/sqlsafe"
)

// Connector implements connector.Source and connector.Destination against a
// PostgreSQL database.
type Connector struct {
	connString string
	table      string
	query      string
	schema     string

	connect func(ctx context.Context, connString string) (*pgx.Conn, error)
}

// New returns an unconfigured Connector.
func New() *Connector {
	return &Connector{connect: pgx.Connect}
}

func (c *Connector) Configure(params map[string]any) error {
	host, _ := params["host"].(string)
	dbname, _ := params["dbname"].(string)
	user, _ := params["user"].(string)
	if host == "" || dbname == "" || user == "" {
		return &connector.ConnectorConfig{Connector: "postgres", Reason: "host, dbname, and user are required"}
	}
	port := 5432
	if p, ok := params["port"]; ok {
		switch v := p.(type) {
		case int:
			port = v
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				port = n
			}
		}
	}
	password, _ := params["password"].(string)

	table, _ := params["table"].(string)
	query, _ := params["query"].(string)
	if table == "" && query == "" {
		return &connector.ConnectorConfig{Connector: "postgres", Reason: "one of table or query is required"}
	}
	schema, _ := params["schema"].(string)
	if table != "" {
		if err := sqlsafe.CheckIdentifier(table); err != nil {
			return err
		}
	}
	if schema != "" {
		if err := sqlsafe.CheckIdentifier(schema); err != nil {
			return err
		}
	}
	c.table = table
	c.query = query
	c.schema = schema

	c.connString = fmt.Sprintf("postgres://%s:%s@%s:%d/%s", user, password, host, port, dbname)
	return nil
}

func (c *Connector) TestConnection(ctx context.Context) (connector.ConnectionTest, error) {
	conn, err := c.connect(ctx, c.connString)
	if err != nil {
		return connector.ConnectionTest{OK: false, Message: err.Error()}, classify(err)
	}
	defer conn.Close(ctx)
	return connector.ConnectionTest{OK: true}, nil
}

func (c *Connector) selectSQL() string {
	if c.query != "" {
		return c.query
	}
	return fmt.Sprintf("SELECT * FROM %s", sqlsafe.QuoteSchemaTable(c.schema, c.table))
}

func (c *Connector) Read(ctx context.Context, object string, options map[string]any) (<-chan connector.DataChunk, <-chan error) {
	chunks := make(chan connector.DataChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		chunk, err := c.query0(ctx, c.selectSQL())
		if err != nil {
			errs <- err
			return
		}
		chunks <- chunk
	}()
	return chunks, errs
}

func (c *Connector) ReadIncremental(ctx context.Context, object, cursorField, cursorValue string) (<-chan connector.DataChunk, <-chan error) {
	chunks := make(chan connector.DataChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		if err := sqlsafe.CheckIdentifier(cursorField); err != nil {
			errs <- err
			return
		}
		sql := fmt.Sprintf("%s WHERE %s > $1", c.selectSQL(), sqlsafe.QuoteIdentifier(cursorField))
		chunk, err := c.query0(ctx, sql, cursorValue)
		if err != nil {
			errs <- err
			return
		}
		chunks <- chunk
	}()
	return chunks, errs
}

func (c *Connector) Describe(ctx context.Context, object string) (connector.Schema, error) {
	conn, err := c.connect(ctx, c.connString)
	if err != nil {
		return nil, classify(err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, fmt.Sprintf("%s LIMIT 0", c.selectSQL()))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	schema := make(connector.Schema, len(fields))
	for i, f := range fields {
		schema[i] = connector.Column{Name: f.Name, Type: pgTypeName(f.DataTypeOID)}
	}
	return schema, nil
}

func (c *Connector) query0(ctx context.Context, sql string, args ...any) (connector.DataChunk, error) {
	conn, err := c.connect(ctx, c.connString)
	if err != nil {
		return connector.DataChunk{}, classify(err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return connector.DataChunk{}, classify(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	schema := make(connector.Schema, len(fields))
	for i, f := range fields {
		schema[i] = connector.Column{Name: f.Name, Type: pgTypeName(f.DataTypeOID)}
	}

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return connector.DataChunk{}, classify(err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return connector.DataChunk{}, classify(err)
	}
	return connector.DataChunk{Schema: schema, Rows: out}, nil
}

// Write inserts chunks into the target table. APPEND inserts; REPLACE
// truncates first; UPSERT/MERGE uses ON CONFLICT DO UPDATE against
// mergeKeys. Every identifier (table, schema, column names, merge keys) is
// checked with sqlsafe.CheckIdentifier and rendered with sqlsafe's quoting
// helpers before it reaches a SQL string; nothing is interpolated raw.
func (c *Connector) Write(ctx context.Context, object string, chunks []connector.DataChunk, mode connector.LoadMode, mergeKeys []string) (connector.WriteResult, error) {
	table := sqlsafe.QuoteSchemaTable(c.schema, c.table)

	for _, k := range mergeKeys {
		if err := sqlsafe.CheckIdentifier(k); err != nil {
			return connector.WriteResult{}, err
		}
	}

	conn, err := c.connect(ctx, c.connString)
	if err != nil {
		return connector.WriteResult{}, classify(err)
	}
	defer conn.Close(ctx)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return connector.WriteResult{}, classify(err)
	}
	defer tx.Rollback(ctx)

	if mode == connector.ModeReplace {
		if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
			return connector.WriteResult{}, classify(err)
		}
	}

	var written int64
	for _, chunk := range chunks {
		cols := make([]string, len(chunk.Schema))
		for i, col := range chunk.Schema {
			if err := sqlsafe.CheckIdentifier(col.Name); err != nil {
				return connector.WriteResult{}, err
			}
			cols[i] = col.Name
		}
		qCols := make([]string, len(cols))
		for i, name := range cols {
			qCols[i] = sqlsafe.QuoteIdentifier(name)
		}
		for _, row := range chunk.Rows {
			placeholders := make([]string, len(row))
			for i := range row {
				placeholders[i] = fmt.Sprintf("$%d", i+1)
			}
			sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, joinIdents(qCols), joinIdents(placeholders))
			if mode == connector.ModeUpsert || mode == connector.ModeMerge {
				qKeys := make([]string, len(mergeKeys))
				for i, k := range mergeKeys {
					qKeys[i] = sqlsafe.QuoteIdentifier(k)
				}
				sql += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", joinIdents(qKeys), updateSet(cols, mergeKeys))
			}
			if _, err := tx.Exec(ctx, sql, row...); err != nil {
				return connector.WriteResult{}, classify(err)
			}
			written++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return connector.WriteResult{}, classify(err)
	}
	return connector.WriteResult{RowsWritten: written}, nil
}

func joinIdents(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

func updateSet(cols, mergeKeys []string) string {
	keySet := map[string]bool{}
	for _, k := range mergeKeys {
		keySet[k] = true
	}
	out := ""
	first := true
	for _, c := range cols {
		if keySet[c] {
			continue
		}
		if !first {
			out += ", "
		}
		qc := sqlsafe.QuoteIdentifier(c)
		out += fmt.Sprintf("%s = EXCLUDED.%s", qc, qc)
		first = false
	}
	return out
}

// pgTypeName maps a handful of common pgx OIDs to the promotion-table type
// names internal/schema understands; unrecognized OIDs fall back to "text".
func pgTypeName(oid uint32) string {
	switch oid {
	case 23: // int4
		return "integer"
	case 20: // int8
		return "bigint"
	case 1700: // numeric
		return "decimal"
	case 1082: // date
		return "date"
	case 1114, 1184: // timestamp, timestamptz
		return "timestamp"
	case 16: // bool
		return "boolean"
	default:
		return "text"
	}
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := err.(*pgconn.PgError); ok {
		switch pgErr.Code {
		case "28P01", "28000": // invalid_password, invalid_authorization_specification
			return &connector.AuthFailed{Connector: "postgres", Cause: err}
		}
	}
	return &connector.ConnectionFailed{Connector: "postgres", Cause: err}
}

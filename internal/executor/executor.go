// Package executor runs a compiled plan.Plan against the embedded engine
// (C7): it steps through the DAG in topological order, executing each
// operation's transaction and streaming data between connectors and the
// engine per spec §4.7.
package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/giaosudau/sqlflow-sub007/internal/connector"
	"github.com/giaosudau/sqlflow-sub007/internal/connector/memconn"
	"github.com/giaosudau/sqlflow-sub007/internal/engine"
	"github.com/giaosudau/sqlflow-sub007/internal/ops"
	"github.com/giaosudau/sqlflow-sub007/internal/plan"
	"github.com/giaosudau/sqlflow-sub007/internal/resilience"
	"github.com/giaosudau/sqlflow-sub007/internal/schema"
	"github.com/giaosudau/sqlflow-sub007/internal/sqlsafe"
)

// Executor runs one plan against one Engine. It is not safe for concurrent
// use — only one plan runs on a given Executor's engine handle at a time,
// per §5's single-writer requirement.
type Executor struct {
	eng      *engine.Engine
	log      ops.Logger
	memStore *memconn.Store

	sources      map[string]connector.Source
	sourceDests  map[string]connector.Destination
	sourceType   map[string]string
	cursorFields map[string]string

	// profileConnectors resolves a SourceDef declared via "FROM <name>"
	// shorthand to the named profile connector's type and params. Nil until
	// WithProfileConnectors is called (e.g. by cmd/sqlflow wiring a loaded
	// profile.Profile).
	profileConnectors map[string]ProfileConnector

	// breakers holds one circuit breaker per networked connector type,
	// shared across every instance of that type this Executor builds.
	breakers map[string]*resilience.Breaker
	// limiter rate-limits every networked connector call this Executor
	// makes, per spec §4.6's connector-wide rate limit.
	limiter *resilience.RateLimiter

	// retryConfig and breakerConfig are spec §4.6's defaults; tests shrink
	// retryConfig's delays to keep retry/breaker tests fast (the same
	// pattern internal/resilience's own tests use).
	retryConfig   resilience.RetryConfig
	breakerConfig resilience.BreakerConfig
}

// ProfileConnector is the subset of a profile.ConnectorSection the executor
// needs to resolve a "FROM <name>" source declaration, kept independent of
// the profile package to avoid an import cycle risk as that package grows.
type ProfileConnector struct {
	Type   string
	Params map[string]any
}

// WithProfileConnectors registers the named connectors a loaded profile
// declares, so SourceDefs using "FROM <name>" shorthand resolve against
// them.
func (e *Executor) WithProfileConnectors(named map[string]ProfileConnector) {
	e.profileConnectors = named
}

// New constructs an Executor against eng. log may be nil (ops.Discard is
// used).
func New(eng *engine.Engine, log ops.Logger) *Executor {
	if log == nil {
		log = ops.Discard
	}
	return &Executor{
		eng:           eng,
		log:           log,
		memStore:      memconn.NewStore(),
		sources:       map[string]connector.Source{},
		sourceDests:   map[string]connector.Destination{},
		sourceType:    map[string]string{},
		cursorFields:  map[string]string{},
		breakers:      map[string]*resilience.Breaker{},
		limiter:       resilience.NewRateLimiter(resilience.DefaultRateLimitConfig),
		retryConfig:   resilience.DefaultRetryConfig,
		breakerConfig: resilience.DefaultBreakerConfig,
	}
}

const cursorsTable = "__sqlflow_cursors"

func (e *Executor) ensureCursorsTable(ctx context.Context) error {
	_, err := e.eng.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q (op_id TEXT PRIMARY KEY, cursor_value TEXT NOT NULL)`, cursorsTable))
	return err
}

func (e *Executor) loadCursor(ctx context.Context, opID string) (string, bool, error) {
	rows, err := e.eng.Query(ctx, fmt.Sprintf(`SELECT cursor_value FROM %q WHERE op_id = ?`, cursorsTable), opID)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", false, nil
	}
	var v string
	if err := rows.Scan(&v); err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (e *Executor) saveCursor(ctx context.Context, opID, value string) error {
	_, err := e.eng.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %q (op_id, cursor_value) VALUES (?, ?) ON CONFLICT(op_id) DO UPDATE SET cursor_value = excluded.cursor_value`,
		cursorsTable), opID, value)
	return err
}

// Run executes every operation of p in order, returning a RunResult that
// records every operation's outcome. Run itself never returns an error for
// an individual operation's failure — failures are reported per-operation
// in the result, per §6's RunResult shape; Run only returns a top-level
// error for conditions that prevent it from proceeding at all (e.g. the
// cursors table can't be created).
func (e *Executor) Run(ctx context.Context, p *plan.Plan) (*RunResult, error) {
	result := &RunResult{}
	failed := map[string]bool{}

	if ctx.Err() != nil {
		for _, op := range p.Operations {
			result.Operations = append(result.Operations, OperationResult{ID: op.ID, Status: StatusCanceled, Err: &Canceled{OperationID: op.ID}})
		}
		return result, nil
	}

	if err := e.ensureCursorsTable(ctx); err != nil {
		return nil, err
	}

	for _, op := range p.Operations {
		if ctx.Err() != nil {
			result.Operations = append(result.Operations, OperationResult{ID: op.ID, Status: StatusCanceled, Err: &Canceled{OperationID: op.ID}})
			failed[op.ID] = true
			continue
		}

		if dependsOnFailed(op, failed) {
			result.Operations = append(result.Operations, OperationResult{ID: op.ID, Status: StatusSkipped})
			failed[op.ID] = true
			continue
		}

		rows, err := e.runOperation(ctx, op)
		if err != nil {
			e.log.Log(logrus.ErrorLevel, logrus.Fields{"operation": op.ID}, err.Error())
			result.Operations = append(result.Operations, OperationResult{ID: op.ID, Status: StatusFailed, Err: err})
			failed[op.ID] = true
			continue
		}
		result.Operations = append(result.Operations, OperationResult{ID: op.ID, Status: StatusSucceeded, Rows: rows})
	}

	return result, nil
}

func dependsOnFailed(op *plan.Operation, failed map[string]bool) bool {
	for _, dep := range op.DependsOn {
		if failed[dep] {
			return true
		}
	}
	return false
}

func (e *Executor) runOperation(ctx context.Context, op *plan.Operation) (int64, error) {
	switch op.Kind {
	case plan.KindSourceDef:
		return 0, e.runSourceDef(ctx, op.Payload.(*plan.SourceDefPayload))
	case plan.KindLoad:
		return e.runLoad(ctx, op)
	case plan.KindTransform:
		return e.runTransform(ctx, op.Payload.(*plan.TransformPayload))
	case plan.KindExport:
		return e.runExport(ctx, op.Payload.(*plan.ExportPayload))
	default:
		return 0, fmt.Errorf("executor: unknown operation kind %q", op.Kind)
	}
}

func (e *Executor) runSourceDef(ctx context.Context, p *plan.SourceDefPayload) error {
	var params map[string]any
	if p.Params != "" {
		if err := json.Unmarshal([]byte(p.Params), &params); err != nil {
			return &connector.ConnectorConfig{Connector: p.Name, Reason: fmt.Sprintf("invalid PARAMS JSON: %v", err)}
		}
	}

	typeTag := p.TypeTag
	if typeTag == "" {
		// Declared via "FROM <name>": resolve against the profile's
		// connectors map rather than an inline TYPE/PARAMS pair.
		named, ok := e.profileConnectors[p.FromRef]
		if !ok {
			return &connector.ConnectorConfig{Connector: p.Name, Reason: fmt.Sprintf("profile declares no connector named %q", p.FromRef)}
		}
		typeTag = named.Type
		params = mergeParams(named.Params, params)
		if p.Options != "" {
			var opts map[string]any
			if err := json.Unmarshal([]byte(p.Options), &opts); err != nil {
				return &connector.ConnectorConfig{Connector: p.Name, Reason: fmt.Sprintf("invalid OPTIONS JSON: %v", err)}
			}
			params = mergeParams(params, opts)
		}
	}

	built, err := newConnector(typeTag, params, e.memStore)
	if err != nil {
		return err
	}
	c := e.wrapResilient(typeTag, built)
	e.sources[p.Name] = c
	e.sourceDests[p.Name] = c
	e.sourceType[p.Name] = typeTag
	if cf, ok := params["cursor_field"].(string); ok && cf != "" {
		e.cursorFields[p.Name] = cf
	}
	return nil
}

// mergeParams overlays override onto base, returning a new map; override
// wins on key collisions.
func mergeParams(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// EnsureSchema creates table with the columns of src if it does not already
// exist, per §4.7's "the first load against an undeclared target table
// creates it from the source schema". Existing tables are left untouched —
// subsequent loads are checked for compatibility by CheckCompatible, not
// re-created.
func (e *Executor) EnsureSchema(ctx context.Context, table string, src connector.Schema) error {
	cols := make([]engine.ColumnDef, 0, len(src))
	for _, c := range src {
		cols = append(cols, engine.ColumnDef{Name: c.Name, SQLType: sqlTypeFor(c.Type)})
	}
	return e.eng.EnsureTable(ctx, table, cols)
}

// sqlTypeFor maps a connector-reported logical type to the SQLite storage
// class closest to it; SQLite's type affinity rules mean any of these
// accepts the corresponding Go value without truncation.
func sqlTypeFor(logical string) string {
	switch logical {
	case "integer", "bigint":
		return "INTEGER"
	case "decimal", "float", "double":
		return "REAL"
	case "date", "timestamp":
		return "TEXT"
	default:
		return "TEXT"
	}
}

// materializeChunk creates a fresh staging table named table holding chunk's
// rows, replacing any prior contents. Staging tables exist only within one
// load operation's lifetime.
func (e *Executor) materializeChunk(ctx context.Context, table string, chunk connector.DataChunk) error {
	// Staging tables are recreated on every load, so they bypass
	// engine.EnsureTable's once-per-process registry rather than going
	// through it.
	if err := sqlsafe.CheckIdentifier(table); err != nil {
		return err
	}
	if _, err := e.eng.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", sqlsafe.QuoteIdentifier(table))); err != nil {
		return err
	}
	colDefs := make([]string, 0, len(chunk.Schema))
	for _, c := range chunk.Schema {
		if err := sqlsafe.CheckIdentifier(c.Name); err != nil {
			return err
		}
		colDefs = append(colDefs, sqlsafe.QuoteIdentifier(c.Name)+" "+sqlTypeFor(c.Type))
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", sqlsafe.QuoteIdentifier(table), joinCommas(colDefs))
	if _, err := e.eng.Exec(ctx, ddl); err != nil {
		return err
	}
	if len(chunk.Rows) == 0 {
		return nil
	}

	placeholders := make([]string, len(chunk.Schema))
	names := make([]string, len(chunk.Schema))
	for i, c := range chunk.Schema {
		placeholders[i] = "?"
		names[i] = sqlsafe.QuoteIdentifier(c.Name)
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", sqlsafe.QuoteIdentifier(table), joinCommas(names), joinCommas(placeholders))

	tx, err := e.eng.Begin(ctx)
	if err != nil {
		return err
	}
	for _, row := range chunk.Rows {
		if _, err := tx.ExecContext(ctx, insertSQL, row...); err != nil {
			tx.Rollback()
			return &engine.TransactionAborted{Cause: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &engine.TransactionAborted{Cause: err}
	}
	return nil
}

func joinCommas(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// describeTable reports table's current column set by querying SQLite's
// table_info pragma, or an empty schema if the table does not exist yet
// (runLoad passes the result to GenerateLoadSQL, whose REPLACE branch does
// not use it).
func (e *Executor) describeTable(ctx context.Context, table string) (schema.Schema, error) {
	if err := sqlsafe.CheckIdentifier(table); err != nil {
		return nil, err
	}
	rows, err := e.eng.Query(ctx, fmt.Sprintf("PRAGMA table_info(%s)", sqlsafe.QuoteIdentifier(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out schema.Schema
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		out = append(out, schema.Column{Name: name, Type: sqlAffinityToLogical(ctype)})
	}
	return out, rows.Err()
}

func sqlAffinityToLogical(sqlType string) string {
	switch sqlType {
	case "INTEGER":
		return "integer"
	case "REAL":
		return "decimal"
	default:
		return "text"
	}
}

func toSchemaPkg(s connector.Schema) schema.Schema {
	out := make(schema.Schema, len(s))
	for i, c := range s {
		out[i] = schema.Column{Name: c.Name, Type: c.Type}
	}
	return out
}

// runLoad implements §4.7's load semantics: read, check schema
// compatibility, write via C8's generated SQL, commit; roll back on any
// failure.
func (e *Executor) runLoad(ctx context.Context, op *plan.Operation) (int64, error) {
	p := op.Payload.(*plan.LoadPayload)

	src, ok := e.sources[p.SourceRef]
	if !ok {
		return 0, fmt.Errorf("executor: source %q was never registered", p.SourceRef)
	}

	chunk, cursorField, _, err := e.readSource(ctx, p.SourceRef, src)
	if err != nil {
		return 0, err
	}

	if err := e.EnsureSchema(ctx, p.TargetTable, chunk.Schema); err != nil {
		return 0, err
	}
	stagingTable := "__sqlflow_stage_" + p.TargetTable
	if err := e.materializeChunk(ctx, stagingTable, chunk); err != nil {
		return 0, err
	}

	srcSchema := toSchemaPkg(chunk.Schema)
	tgtSchema, err := e.describeTable(ctx, p.TargetTable)
	if err != nil {
		return 0, err
	}

	sql, args, err := schema.GenerateLoadSQL(p.Mode, p.TargetTable, stagingTable, p.MergeKeys, srcSchema, tgtSchema, schema.DefaultPromotions)
	if err != nil {
		return 0, err
	}

	tx, err := e.eng.Begin(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, sql, args...); err != nil {
		tx.Rollback()
		return 0, &engine.TransactionAborted{Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &engine.TransactionAborted{Cause: err}
	}
	if err := e.eng.Checkpoint(ctx); err != nil {
		return 0, err
	}

	if cursorField != "" && len(chunk.Rows) > 0 {
		if newWatermark := maxCursorValue(chunk, cursorField); newWatermark != "" {
			if err := e.saveCursor(ctx, "source:"+p.SourceRef, newWatermark); err != nil {
				return 0, err
			}
		}
	}

	return int64(len(chunk.Rows)), nil
}

func (e *Executor) readSource(ctx context.Context, sourceName string, src connector.Source) (connector.DataChunk, string, string, error) {
	cursorField, hasCursor := e.cursorFieldOf(sourceName)
	if !hasCursor {
		chunks, errs := src.Read(ctx, "", nil)
		chunk, err := collect(chunks, errs)
		return chunk, "", "", err
	}

	cursorValue, _, err := e.loadCursor(ctx, "source:"+sourceName)
	if err != nil {
		return connector.DataChunk{}, "", "", err
	}
	chunks, errs := src.ReadIncremental(ctx, "", cursorField, cursorValue)
	chunk, err := collect(chunks, errs)
	return chunk, cursorField, cursorValue, err
}

// cursorFieldOf reports the cursor_field a source_def's PARAMS declared, if
// any. ast.LoadStmt has no cursor syntax of its own, so incremental reads
// are driven entirely by this per-source declaration (SPEC_FULL.md's
// watermark supplement).
func (e *Executor) cursorFieldOf(sourceName string) (string, bool) {
	cf, ok := e.cursorFields[sourceName]
	return cf, ok
}

func collect(chunks <-chan connector.DataChunk, errs <-chan error) (connector.DataChunk, error) {
	var merged connector.DataChunk
	for ch := range chunks {
		if merged.Schema == nil {
			merged.Schema = ch.Schema
		}
		merged.Rows = append(merged.Rows, ch.Rows...)
	}
	for err := range errs {
		if err != nil {
			return connector.DataChunk{}, err
		}
	}
	return merged, nil
}

func maxCursorValue(chunk connector.DataChunk, field string) string {
	idx := -1
	for i, c := range chunk.Schema {
		if c.Name == field {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ""
	}
	max := ""
	for _, row := range chunk.Rows {
		v := fmt.Sprintf("%v", row[idx])
		if v > max {
			max = v
		}
	}
	return max
}

// runTransform hands raw SQL directly to the engine as a parameterless
// statement, per §4.7.
func (e *Executor) runTransform(ctx context.Context, p *plan.TransformPayload) (int64, error) {
	tx, err := e.eng.Begin(ctx)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, p.SQL)
	if err != nil {
		tx.Rollback()
		return 0, &engine.TransactionAborted{Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &engine.TransactionAborted{Cause: err}
	}
	if err := e.eng.Checkpoint(ctx); err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DescribeSourceType builds a throwaway connector of typeTag against params
// and reports object's schema, without registering it as a plan source. It
// backs internal/driver's DescribeConnector entry point.
func (e *Executor) DescribeSourceType(ctx context.Context, typeTag string, params map[string]any, object string) (connector.Schema, error) {
	built, err := newConnector(typeTag, params, e.memStore)
	if err != nil {
		return nil, err
	}
	return e.wrapResilient(typeTag, built).Describe(ctx, object)
}

// runExport runs the SELECT and streams results into the destination
// connector's Write. An EXPORT statement declares no mode, so the write is
// always made in REPLACE mode.
func (e *Executor) runExport(ctx context.Context, p *plan.ExportPayload) (int64, error) {
	rows, err := e.eng.Query(ctx, p.SelectSQL)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	sch := make(connector.Schema, len(cols))
	for i, c := range cols {
		sch[i] = connector.Column{Name: c, Type: "text"}
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return 0, err
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var params map[string]any
	if p.Options != "" {
		if err := json.Unmarshal([]byte(p.Options), &params); err != nil {
			return 0, &connector.ConnectorConfig{Connector: "export", Reason: fmt.Sprintf("invalid OPTIONS JSON: %v", err)}
		}
	}
	if params == nil {
		params = map[string]any{}
	}
	// DestinationURI fills whichever identifying key the chosen connector
	// type expects; an explicit OPTIONS entry always wins.
	for _, key := range []string{"path", "key", "table_name", "url"} {
		if _, ok := params[key]; !ok {
			params[key] = p.DestinationURI
		}
	}

	built, err := newConnector(p.TypeTag, params, e.memStore)
	if err != nil {
		return 0, err
	}
	dest := e.wrapResilient(p.TypeTag, built)

	chunk := connector.DataChunk{Schema: sch, Rows: out}
	res, err := dest.Write(ctx, p.DestinationURI, []connector.DataChunk{chunk}, connector.ModeReplace, nil)
	if err != nil {
		return 0, err
	}
	return res.RowsWritten, nil
}

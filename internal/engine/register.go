package engine

import (
	"context"

	"github.com/giaosudau/sqlflow-sub007/internal/sqlsafe"
)

// registered tracks table/view names already materialised in this Engine's
// session, so EnsureTable is idempotent per spec §4.7 ("This is
// idempotent").
type registered map[string]bool

// EnsureTable registers name as an empty table with the given columns if it
// has not already been registered in this process. It is called before any
// transform or export references an in-memory-sourced table.
func (e *Engine) EnsureTable(ctx context.Context, name string, columns []ColumnDef) error {
	if e.tables == nil {
		e.tables = registered{}
	}
	if e.tables[name] {
		return nil
	}
	if err := sqlsafe.CheckIdentifier(name); err != nil {
		return err
	}
	cols := make([]string, 0, len(columns))
	for _, c := range columns {
		if err := sqlsafe.CheckIdentifier(c.Name); err != nil {
			return err
		}
		cols = append(cols, sqlsafe.QuoteIdentifier(c.Name)+" "+c.SQLType)
	}
	ddl := "CREATE TABLE IF NOT EXISTS " + sqlsafe.QuoteIdentifier(name) + " (" + joinCols(cols) + ")"
	if _, err := e.Exec(ctx, ddl); err != nil {
		return err
	}
	e.tables[name] = true
	return nil
}

// ColumnDef names one column of a table the executor registers ahead of a
// transform or export.
type ColumnDef struct {
	Name    string
	SQLType string
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

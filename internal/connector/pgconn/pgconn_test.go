package pgconn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/giaosudau/sqlflow-sub007/internal/connector"
	"github.com/giaosudau/sqlflow-sub007/internal/sqlsafe"
)

func TestConfigureRequiresHostDbnameUser(t *testing.T) {
	c := New()
	err := c.Configure(map[string]any{})
	require.Error(t, err)
	var cc *connector.ConnectorConfig
	require.ErrorAs(t, err, &cc)
}

func TestConfigureRequiresTableOrQuery(t *testing.T) {
	c := New()
	err := c.Configure(map[string]any{"host": "db", "dbname": "d", "user": "u"})
	require.Error(t, err)
}

func TestConfigureBuildsConnString(t *testing.T) {
	c := New()
	err := c.Configure(map[string]any{
		"host": "db", "port": 5433, "dbname": "d", "user": "u", "password": "p", "table": "items",
	})
	require.NoError(t, err)
	require.Equal(t, "postgres://u:p@db:5433/d", c.connString)
}

func TestSelectSQLPrefersQueryOverTable(t *testing.T) {
	c := New()
	require.NoError(t, c.Configure(map[string]any{
		"host": "db", "dbname": "d", "user": "u", "table": "items", "query": "SELECT 1",
	}))
	require.Equal(t, "SELECT 1", c.selectSQL())
}

func TestSelectSQLQualifiesTableWithSchema(t *testing.T) {
	c := New()
	require.NoError(t, c.Configure(map[string]any{
		"host": "db", "dbname": "d", "user": "u", "table": "items", "schema": "public",
	}))
	require.Equal(t, `SELECT * FROM "public"."items"`, c.selectSQL())
}

func TestConfigureRejectsInjectedTableIdentifier(t *testing.T) {
	c := New()
	err := c.Configure(map[string]any{
		"host": "db", "dbname": "d", "user": "u", "table": "users; DROP TABLE t",
	})
	require.Error(t, err)
	var invalid *sqlsafe.InvalidIdentifier
	require.ErrorAs(t, err, &invalid)
}

func TestConfigureRejectsInjectedSchemaIdentifier(t *testing.T) {
	c := New()
	err := c.Configure(map[string]any{
		"host": "db", "dbname": "d", "user": "u", "table": "items", "schema": `public"; DROP TABLE t; --`,
	})
	require.Error(t, err)
	var invalid *sqlsafe.InvalidIdentifier
	require.ErrorAs(t, err, &invalid)
}

func TestPgTypeNameMapsKnownOIDs(t *testing.T) {
	require.Equal(t, "integer", pgTypeName(23))
	require.Equal(t, "bigint", pgTypeName(20))
	require.Equal(t, "date", pgTypeName(1082))
	require.Equal(t, "text", pgTypeName(999999))
}

func TestUpdateSetExcludesMergeKeys(t *testing.T) {
	got := updateSet([]string{"id", "name", "qty"}, []string{"id"})
	require.Equal(t, `"name" = EXCLUDED."name", "qty" = EXCLUDED."qty"`, got)
}

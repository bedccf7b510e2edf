package schema

import (
	"testing"

	"github.com/giaosudau/sqlflow-sub007/internal/ast"
	"github.com/stretchr/testify/require"
)

func TestCompatibleExactMatch(t *testing.T) {
	require.True(t, Compatible("integer", "integer", DefaultPromotions))
}

func TestCompatibleCaseInsensitive(t *testing.T) {
	require.True(t, Compatible("INTEGER", "Integer", DefaultPromotions))
}

func TestCompatibleWidensIntegerToBigint(t *testing.T) {
	require.True(t, Compatible("integer", "bigint", DefaultPromotions))
}

func TestCompatibleWidensTransitivelyViaTable(t *testing.T) {
	require.True(t, Compatible("bigint", "decimal", DefaultPromotions))
	require.True(t, Compatible("integer", "decimal", DefaultPromotions))
}

func TestCompatibleWidensDateToTimestamp(t *testing.T) {
	require.True(t, Compatible("date", "timestamp", DefaultPromotions))
}

func TestCompatibleAnyWidensToText(t *testing.T) {
	require.True(t, Compatible("integer", "text", DefaultPromotions))
	require.True(t, Compatible("date", "text", DefaultPromotions))
}

func TestCompatibleRejectsNarrowing(t *testing.T) {
	require.False(t, Compatible("bigint", "integer", DefaultPromotions))
	require.False(t, Compatible("timestamp", "date", DefaultPromotions))
}

func TestCompatibleRejectsUnrelatedTypes(t *testing.T) {
	require.False(t, Compatible("boolean", "integer", DefaultPromotions))
}

func TestCheckCompatibleDetectsMissingColumn(t *testing.T) {
	src := Schema{{Name: "id", Type: "integer"}, {Name: "extra", Type: "text"}}
	tgt := Schema{{Name: "id", Type: "integer"}}

	err := CheckCompatible(src, tgt, DefaultPromotions)
	require.Error(t, err)
	var si *SchemaIncompatible
	require.ErrorAs(t, err, &si)
	require.Equal(t, "extra", si.Column)
}

func TestCheckCompatibleDetectsIncompatibleType(t *testing.T) {
	src := Schema{{Name: "id", Type: "text"}}
	tgt := Schema{{Name: "id", Type: "integer"}}

	err := CheckCompatible(src, tgt, DefaultPromotions)
	require.Error(t, err)
	var si *SchemaIncompatible
	require.ErrorAs(t, err, &si)
	require.Equal(t, "id", si.Column)
	require.Equal(t, "text", si.TSrc)
	require.Equal(t, "integer", si.TTgt)
}

func TestCheckCompatibleAllowsSubsetOfTargetColumns(t *testing.T) {
	src := Schema{{Name: "id", Type: "integer"}}
	tgt := Schema{{Name: "id", Type: "bigint"}, {Name: "unrelated", Type: "text"}}
	require.NoError(t, CheckCompatible(src, tgt, DefaultPromotions))
}

func TestCheckMergeKeysRejectsEmpty(t *testing.T) {
	src := Schema{{Name: "id", Type: "integer"}}
	err := CheckMergeKeys(nil, src, src)
	require.Error(t, err)
	var mk *MissingMergeKey
	require.ErrorAs(t, err, &mk)
}

func TestCheckMergeKeysRejectsKeyMissingFromSource(t *testing.T) {
	src := Schema{{Name: "id", Type: "integer"}}
	tgt := Schema{{Name: "id", Type: "integer"}, {Name: "sku", Type: "text"}}
	err := CheckMergeKeys([]string{"sku"}, src, tgt)
	require.Error(t, err)
}

func TestCheckMergeKeysRejectsKeyMissingFromTarget(t *testing.T) {
	src := Schema{{Name: "id", Type: "integer"}, {Name: "sku", Type: "text"}}
	tgt := Schema{{Name: "id", Type: "integer"}}
	err := CheckMergeKeys([]string{"sku"}, src, tgt)
	require.Error(t, err)
}

func TestCheckMergeKeysAcceptsValidKeys(t *testing.T) {
	src := Schema{{Name: "id", Type: "integer"}}
	tgt := Schema{{Name: "id", Type: "integer"}}
	require.NoError(t, CheckMergeKeys([]string{"id"}, src, tgt))
}

func TestGenerateLoadSQLReplace(t *testing.T) {
	sql, params, err := GenerateLoadSQL(ast.ModeReplace, "tgt", "src", nil, nil, nil, nil)
	require.NoError(t, err)
	require.Nil(t, params)
	require.Contains(t, sql, `DROP TABLE IF EXISTS "tgt"`)
	require.Contains(t, sql, `CREATE TABLE "tgt" AS SELECT * FROM "src"`)
}

func TestGenerateLoadSQLAppend(t *testing.T) {
	src := Schema{{Name: "id", Type: "integer"}, {Name: "name", Type: "text"}}
	tgt := Schema{{Name: "id", Type: "bigint"}, {Name: "name", Type: "text"}}
	sql, params, err := GenerateLoadSQL(ast.ModeAppend, "tgt", "src", nil, src, tgt, DefaultPromotions)
	require.NoError(t, err)
	require.Nil(t, params)
	require.Contains(t, sql, `INSERT INTO "tgt"`)
	require.Contains(t, sql, `"id", "name"`)
	require.Contains(t, sql, `FROM "src"`)
}

func TestGenerateLoadSQLAppendRejectsIncompatibleSchema(t *testing.T) {
	src := Schema{{Name: "id", Type: "integer"}, {Name: "extra", Type: "text"}}
	tgt := Schema{{Name: "id", Type: "integer"}}
	_, _, err := GenerateLoadSQL(ast.ModeAppend, "tgt", "src", nil, src, tgt, DefaultPromotions)
	require.Error(t, err)
	var si *SchemaIncompatible
	require.ErrorAs(t, err, &si)
}

func TestGenerateLoadSQLUpsertRejectsMissingMergeKeys(t *testing.T) {
	src := Schema{{Name: "id", Type: "integer"}}
	tgt := Schema{{Name: "id", Type: "integer"}}
	_, _, err := GenerateLoadSQL(ast.ModeUpsert, "tgt", "src", nil, src, tgt, DefaultPromotions)
	require.Error(t, err)
	var mk *MissingMergeKey
	require.ErrorAs(t, err, &mk)
}

func TestGenerateLoadSQLUpsertGeneratesUpdateAndInsert(t *testing.T) {
	src := Schema{{Name: "id", Type: "integer"}, {Name: "sku", Type: "text"}, {Name: "qty", Type: "integer"}}
	tgt := Schema{{Name: "id", Type: "integer"}, {Name: "sku", Type: "text"}, {Name: "qty", Type: "integer"}}
	sql, params, err := GenerateLoadSQL(ast.ModeUpsert, "tgt", "src", []string{"id"}, src, tgt, DefaultPromotions)
	require.NoError(t, err)
	require.Nil(t, params)
	require.Contains(t, sql, `UPDATE "tgt" SET`)
	require.Contains(t, sql, `"qty" = "src"."qty"`)
	require.NotContains(t, sql, `"id" = "src"."id"`)
	require.Contains(t, sql, `"tgt"."id" = "src"."id"`)
	require.Contains(t, sql, `INSERT INTO "tgt"`)
	require.Contains(t, sql, `WHERE NOT EXISTS`)
}

func TestGenerateLoadSQLMergeRejectsIncompatibleSchemaBeforeAnyWrite(t *testing.T) {
	src := Schema{{Name: "id", Type: "integer"}, {Name: "qty", Type: "boolean"}}
	tgt := Schema{{Name: "id", Type: "integer"}, {Name: "qty", Type: "integer"}}
	sql, _, err := GenerateLoadSQL(ast.ModeMerge, "tgt", "src", []string{"id"}, src, tgt, DefaultPromotions)
	require.Error(t, err)
	require.Empty(t, sql)
}

func TestGenerateLoadSQLRejectsInvalidTargetIdentifier(t *testing.T) {
	_, _, err := GenerateLoadSQL(ast.ModeReplace, "select", "src", nil, nil, nil, nil)
	require.Error(t, err)
}

func TestGenerateLoadSQLRejectsInvalidMergeKeyIdentifier(t *testing.T) {
	src := Schema{{Name: "id; DROP TABLE tgt; --", Type: "integer"}}
	_, _, err := GenerateLoadSQL(ast.ModeUpsert, "tgt", "src", []string{"id; DROP TABLE tgt; --"}, src, src, DefaultPromotions)
	require.Error(t, err)
}

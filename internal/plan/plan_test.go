package plan

import (
	"testing"

	"github.com/giaosudau/sqlflow-sub007/internal/parser"
	"github.com/giaosudau/sqlflow-sub007/internal/variables"
	"github.com/stretchr/testify/require"
)

func compileSrc(t *testing.T, src string, cli map[string]string) (*Plan, error) {
	t.Helper()
	prog, err := parser.Parse(src)
	require.NoError(t, err)
	rv := variables.NewResolvedVariables(variables.Scopes{CLI: cli})
	return Compile(prog, rv)
}

func TestCompileSimpleSourceLoadTransformExport(t *testing.T) {
	src := `
SOURCE s TYPE CSV PARAMS {"path":"in.csv"};
LOAD t FROM s;
CREATE TABLE u AS SELECT * FROM t;
EXPORT SELECT * FROM u TO "out.csv" TYPE CSV;
`
	p, err := compileSrc(t, src, nil)
	require.NoError(t, err)
	require.Len(t, p.Operations, 4)

	kinds := make([]Kind, len(p.Operations))
	for i, op := range p.Operations {
		kinds[i] = op.Kind
	}
	require.Equal(t, []Kind{KindSourceDef, KindLoad, KindTransform, KindExport}, kinds)

	load := p.Operations[1]
	require.Equal(t, []string{"source:s"}, load.DependsOn)

	transform := p.Operations[2]
	require.Equal(t, []string{"load:t"}, transform.DependsOn)

	export := p.Operations[3]
	require.Equal(t, []string{"transform:2"}, export.DependsOn)
}

func TestCompileConditionalSelectionProd(t *testing.T) {
	src := `
IF ${env}=='prod' THEN CREATE TABLE x AS SELECT 1 a;
ELSE CREATE TABLE x AS SELECT 2 a;
END IF;
`
	p, err := compileSrc(t, src, map[string]string{"env": "prod"})
	require.NoError(t, err)
	require.Len(t, p.Operations, 1)
	payload := p.Operations[0].Payload.(*TransformPayload)
	require.Contains(t, payload.SQL, "SELECT 1 a")
}

func TestCompileConditionalSelectionDev(t *testing.T) {
	src := `
IF ${env}=='prod' THEN CREATE TABLE x AS SELECT 1 a;
ELSE CREATE TABLE x AS SELECT 2 a;
END IF;
`
	p, err := compileSrc(t, src, map[string]string{"env": "dev"})
	require.NoError(t, err)
	payload := p.Operations[0].Payload.(*TransformPayload)
	require.Contains(t, payload.SQL, "SELECT 2 a")
}

func TestCompileConditionalUnresolvedVariable(t *testing.T) {
	src := `IF ${env}=='prod' THEN CREATE TABLE x AS SELECT 1 a; END IF;`
	_, err := compileSrc(t, src, nil)
	require.Error(t, err)
	var uv *variables.UnresolvedVariable
	require.ErrorAs(t, err, &uv)
}

func TestCompileNoPlanContainsIfKindOperation(t *testing.T) {
	src := `
IF ${env}=='prod' THEN CREATE TABLE x AS SELECT 1 a; END IF;
CREATE TABLE y AS SELECT 2 b;
`
	p, err := compileSrc(t, src, map[string]string{"env": "dev"})
	require.NoError(t, err)
	// env=dev selects no branch and there is no ELSE, so only the second
	// statement survives flattening.
	require.Len(t, p.Operations, 1)
	for _, op := range p.Operations {
		require.NotEqual(t, Kind("if"), op.Kind)
	}
}

func TestCompileSetStmtAffectsLaterCondition(t *testing.T) {
	src := `
SET stage = 'prod';
IF ${stage}=='prod' THEN CREATE TABLE x AS SELECT 1 a; END IF;
`
	p, err := compileSrc(t, src, nil)
	require.NoError(t, err)
	require.Len(t, p.Operations, 1)
}

func TestCompileUnknownSourceReference(t *testing.T) {
	src := `LOAD t FROM missing_source;`
	_, err := compileSrc(t, src, nil)
	require.Error(t, err)
	var ur *UnknownReference
	require.ErrorAs(t, err, &ur)
}

func TestCompileLoadDependsOnNamedSource(t *testing.T) {
	src := `
SOURCE a TYPE CSV PARAMS {"path":"a.csv"};
SOURCE b TYPE CSV PARAMS {"path":"b.csv"};
LOAD t FROM b;
`
	p, err := compileSrc(t, src, nil)
	require.NoError(t, err)
	load := p.Operations[2]
	require.Equal(t, []string{"source:b"}, load.DependsOn)
}

func TestCompileTransformChainDependsOnPriorTransform(t *testing.T) {
	src := `
CREATE TABLE a AS SELECT 1 x;
CREATE TABLE b AS SELECT * FROM a;
`
	p, err := compileSrc(t, src, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"transform:0"}, p.Operations[1].DependsOn)
}

func TestCompileExportDependsOnReferencedTable(t *testing.T) {
	src := `
CREATE TABLE a AS SELECT 1 x;
EXPORT SELECT * FROM a TO "out.csv" TYPE CSV;
`
	p, err := compileSrc(t, src, nil)
	require.NoError(t, err)
	export := p.Operations[len(p.Operations)-1]
	require.Equal(t, []string{"transform:0"}, export.DependsOn)
}

func TestCompileInvalidIdentifierRejected(t *testing.T) {
	src := `SOURCE select TYPE CSV PARAMS {};`
	_, err := compileSrc(t, src, nil)
	require.Error(t, err)
}

func TestCompileDeterministic(t *testing.T) {
	src := `
SOURCE s TYPE CSV PARAMS {"path":"in.csv"};
LOAD t FROM s;
CREATE TABLE u AS SELECT * FROM t;
`
	p1, err := compileSrc(t, src, map[string]string{"x": "1"})
	require.NoError(t, err)
	p2, err := compileSrc(t, src, map[string]string{"x": "1"})
	require.NoError(t, err)
	require.Equal(t, len(p1.Operations), len(p2.Operations))
	for i := range p1.Operations {
		require.Equal(t, p1.Operations[i].ID, p2.Operations[i].ID)
		require.Equal(t, p1.Operations[i].DependsOn, p2.Operations[i].DependsOn)
	}
}

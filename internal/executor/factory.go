package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/giaosudau/sqlflow-sub007/internal/connector"
	"github.com/giaosudau/sqlflow-sub007/internal/connector/csvconn"
	"github.com/giaosudau/sqlflow-sub007/internal/connector/memconn"
	"github.com/giaosudau/sqlflow-sub007/internal/connector/parquetconn"
	"github.com/giaosudau/sqlflow-sub007/internal/connector/pgconn"
	"github.com/giaosudau/sqlflow-sub007/internal/connector/restconn"
	"github.com/giaosudau/sqlflow-sub007/internal/connector/s3conn"
)

// connectorVariant bundles the behaviors a factory-built instance exposes;
// every concrete connector type implements both halves of this, even if a
// given pipeline only exercises one.
type connectorVariant interface {
	connector.Source
	connector.Destination
}

// newConnector builds a connectorVariant for typeTag ("CSV", "PARQUET",
// "POSTGRES", "S3", "REST", "MEMORY"), configures it with params, and
// returns it. memStore backs every MEMORY-typed connector within one
// Executor, per memconn's single-process-store model.
func newConnector(typeTag string, params map[string]any, memStore *memconn.Store) (connectorVariant, error) {
	var c connectorVariant
	switch strings.ToUpper(typeTag) {
	case "CSV":
		c = csvconn.New()
	case "PARQUET":
		c = &sourceOnly{parquetconn.New()}
	case "POSTGRES", "POSTGRESQL":
		c = pgconn.New()
	case "S3":
		c = s3conn.New()
	case "REST":
		c = restconn.New()
	case "MEMORY":
		c = memconn.New(memStore)
	default:
		return nil, fmt.Errorf("executor: unknown connector type %q", typeTag)
	}
	if err := c.Configure(params); err != nil {
		return nil, err
	}
	return c, nil
}

// sourceOnly adapts a connector.Source-only implementation (parquetconn has
// no Destination, since spec §6 defines no Parquet destination parameter
// surface) to connectorVariant by rejecting Write.
type sourceOnly struct {
	*parquetconn.Connector
}

func (s *sourceOnly) Write(ctx context.Context, object string, chunks []connector.DataChunk, mode connector.LoadMode, mergeKeys []string) (connector.WriteResult, error) {
	return connector.WriteResult{}, fmt.Errorf("executor: parquet connector does not support write")
}

// Package connector defines the capability contracts every SQLFlow
// connector variant implements, plus the shared DataChunk/Schema wire
// shapes the executor moves between connectors and the engine.
package connector

import (
	"context"
	"fmt"
)

// Column names one column of a Schema, mirroring internal/schema.Column so
// connectors don't need to import the planner's schema package directly.
type Column struct {
	Name string
	Type string
}

// Schema is an ordered column list, as returned by describe().
type Schema []Column

// DataChunk is one columnar batch: Schema describes Rows' shape, Rows is a
// slice of row-major values (one []any per row, ordered per Schema).
type DataChunk struct {
	Schema Schema
	Rows   [][]any
}

// WriteResult reports how many rows a Destination.Write call wrote.
type WriteResult struct {
	RowsWritten int64
}

// LoadMode mirrors ast.LoadMode without importing the planner package, so
// connectors stay independent of the compiler's AST.
type LoadMode string

const (
	ModeReplace LoadMode = "REPLACE"
	ModeAppend  LoadMode = "APPEND"
	ModeUpsert  LoadMode = "UPSERT"
	ModeMerge   LoadMode = "MERGE"
)

// ConnectionTest is test_connection()'s result.
type ConnectionTest struct {
	OK      bool
	Message string
}

// Source is the read-side capability contract (§4.6).
type Source interface {
	// Configure validates params and prepares the connector for use.
	Configure(params map[string]any) error
	// TestConnection verifies connectivity without reading data.
	TestConnection(ctx context.Context) (ConnectionTest, error)
	// Read streams object's contents as DataChunks onto the returned
	// channel. The channel is closed when the read completes or ctx is
	// canceled; a non-nil error is sent as the final value read from errCh.
	Read(ctx context.Context, object string, options map[string]any) (<-chan DataChunk, <-chan error)
	// ReadIncremental is an optional capability: connectors that don't
	// support it return ErrIncrementalUnsupported.
	ReadIncremental(ctx context.Context, object, cursorField, cursorValue string) (<-chan DataChunk, <-chan error)
	// Describe reports object's schema without reading its rows.
	Describe(ctx context.Context, object string) (Schema, error)
}

// Destination is the write-side capability contract (§4.6).
type Destination interface {
	Configure(params map[string]any) error
	// Write applies chunks to object under mode, using mergeKeys when mode
	// is UPSERT or MERGE.
	Write(ctx context.Context, object string, chunks []DataChunk, mode LoadMode, mergeKeys []string) (WriteResult, error)
}

// ErrIncrementalUnsupported is returned by ReadIncremental on connectors
// that don't implement it.
var ErrIncrementalUnsupported = fmt.Errorf("connector: read_incremental is not supported by this connector")

// ConnectorConfig is raised by Configure when required parameters are
// missing or malformed.
type ConnectorConfig struct {
	Connector string
	Reason    string
}

func (e *ConnectorConfig) Error() string {
	return fmt.Sprintf("%s: invalid configuration: %s", e.Connector, e.Reason)
}

// ConnectionFailed is a retryable error raised by TestConnection, Read, or
// Write on a transient network/IO failure.
type ConnectionFailed struct {
	Connector string
	Cause     error
}

func (e *ConnectionFailed) Error() string {
	return fmt.Sprintf("%s: connection failed: %v", e.Connector, e.Cause)
}

func (e *ConnectionFailed) Unwrap() error { return e.Cause }

// AuthFailed is a non-retryable error raised when credentials are rejected.
type AuthFailed struct {
	Connector string
	Cause     error
}

func (e *AuthFailed) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Connector, e.Cause)
}

func (e *AuthFailed) Unwrap() error { return e.Cause }

// Timeout is a retryable error raised when a connector call exceeds its
// configured deadline.
type Timeout struct {
	Connector string
	Cause     error
}

func (e *Timeout) Error() string {
	return fmt.Sprintf("%s: timed out: %v", e.Connector, e.Cause)
}

func (e *Timeout) Unwrap() error { return e.Cause }

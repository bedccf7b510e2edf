// Package s3conn implements the S3 connector variant:
// {bucket, path|key, endpoint_url?, region?, access_key, secret_key}, via
// aws-sdk-go — the teacher's own AWS stack (estuary-flow's Kinesis capture
// uses the same SDK generation).
package s3conn

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/giaosudau/sqlflow-sub007/internal/connector"
)

// s3API is the subset of the S3 SDK client this connector calls, so tests
// can substitute a fake. *s3.S3 satisfies it.
type s3API interface {
	GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// Connector implements connector.Source and connector.Destination against
// an S3-compatible object store. Objects are read and written as CSV,
// matching SQLFlow's only other flat-file connector.
type Connector struct {
	bucket string
	key    string

	newClient func() (s3API, error)
	client    s3API
}

// New returns an unconfigured Connector.
func New() *Connector {
	return &Connector{}
}

func (c *Connector) Configure(params map[string]any) error {
	bucket, _ := params["bucket"].(string)
	if bucket == "" {
		return &connector.ConnectorConfig{Connector: "s3", Reason: "bucket is required"}
	}
	key, _ := params["path"].(string)
	if key == "" {
		key, _ = params["key"].(string)
	}
	if key == "" {
		return &connector.ConnectorConfig{Connector: "s3", Reason: "one of path or key is required"}
	}
	accessKey, _ := params["access_key"].(string)
	secretKey, _ := params["secret_key"].(string)
	if accessKey == "" || secretKey == "" {
		return &connector.ConnectorConfig{Connector: "s3", Reason: "access_key and secret_key are required"}
	}
	region, _ := params["region"].(string)
	if region == "" {
		region = "us-east-1"
	}
	endpoint, _ := params["endpoint_url"].(string)

	c.bucket = bucket
	c.key = key
	c.newClient = func() (s3API, error) {
		cfg := aws.NewConfig().
			WithRegion(region).
			WithCredentials(credentials.NewStaticCredentials(accessKey, secretKey, ""))
		if endpoint != "" {
			cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
		}
		sess, err := session.NewSession(cfg)
		if err != nil {
			return nil, err
		}
		return s3.New(sess), nil
	}
	return nil
}

func (c *Connector) client0() (s3API, error) {
	if c.client != nil {
		return c.client, nil
	}
	return c.newClient()
}

func (c *Connector) TestConnection(ctx context.Context) (connector.ConnectionTest, error) {
	cl, err := c.client0()
	if err != nil {
		return connector.ConnectionTest{OK: false, Message: err.Error()}, &connector.ConnectorConfig{Connector: "s3", Reason: err.Error()}
	}
	_, err = cl.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket), Key: aws.String(c.key),
	})
	if err != nil {
		return connector.ConnectionTest{OK: false, Message: err.Error()}, nil
	}
	return connector.ConnectionTest{OK: true}, nil
}

func (c *Connector) Read(ctx context.Context, object string, options map[string]any) (<-chan connector.DataChunk, <-chan error) {
	chunks := make(chan connector.DataChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		chunk, err := c.readAll(ctx)
		if err != nil {
			errs <- err
			return
		}
		chunks <- chunk
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
	chunk, err := c.readAll(ctx)
	if err != nil {
		return nil, err
	}
	return chunk.Schema, nil
}

func (c *Connector) readAll(ctx context.Context) (connector.DataChunk, error) {
	cl, err := c.client0()
	if err != nil {
		return connector.DataChunk{}, &connector.ConnectorConfig{Connector: "s3", Reason: err.Error()}
	}
	out, err := cl.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket), Key: aws.String(c.key),
	})
	if err != nil {
		return connector.DataChunk{}, &connector.ConnectionFailed{Connector: "s3", Cause: err}
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return connector.DataChunk{}, &connector.ConnectionFailed{Connector: "s3", Cause: err}
	}

	r := csv.NewReader(bytes.NewReader(body))
	records, err := r.ReadAll()
	if err != nil {
		return connector.DataChunk{}, &connector.ConnectionFailed{Connector: "s3", Cause: err}
	}
	if len(records) == 0 {
		return connector.DataChunk{}, nil
	}

	header := records[0]
	schema := make(connector.Schema, len(header))
	for i, name := range header {
		schema[i] = connector.Column{Name: name, Type: "text"}
	}
	rows := make([][]any, len(records)-1)
	for i, rec := range records[1:] {
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		rows[i] = row
	}
	return connector.DataChunk{Schema: schema, Rows: rows}, nil
}

// Write serialises chunks as a single CSV object, replacing whatever the
// object held before. mode and mergeKeys are not consulted: every mode
// overwrites the object, and the existing content is never read back or
// merged (unlike csvconn's local-file Write, which merges APPEND and UPSERT
// itself).
func (c *Connector) Write(ctx context.Context, object string, chunks []connector.DataChunk, mode connector.LoadMode, mergeKeys []string) (connector.WriteResult, error) {
	var schema connector.Schema
	var rows [][]any
	for _, chunk := range chunks {
		if schema == nil {
			schema = chunk.Schema
		}
		rows = append(rows, chunk.Rows...)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := make([]string, len(schema))
	for i, col := range schema {
		header[i] = col.Name
	}
	if err := w.Write(header); err != nil {
		return connector.WriteResult{}, &connector.ConnectionFailed{Connector: "s3", Cause: err}
	}
	for _, row := range rows {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = fmt.Sprintf("%v", v)
		}
		if err := w.Write(rec); err != nil {
			return connector.WriteResult{}, &connector.ConnectionFailed{Connector: "s3", Cause: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return connector.WriteResult{}, &connector.ConnectionFailed{Connector: "s3", Cause: err}
	}

	cl, err := c.client0()
	if err != nil {
		return connector.WriteResult{}, &connector.ConnectorConfig{Connector: "s3", Reason: err.Error()}
	}
	_, err = cl.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket), Key: aws.String(c.key), Body: bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return connector.WriteResult{}, &connector.ConnectionFailed{Connector: "s3", Cause: err}
	}
	return connector.WriteResult{RowsWritten: int64(len(rows))}, nil
}

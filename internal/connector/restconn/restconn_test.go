package restconn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/giaosudau/sqlflow-sub007/internal/connector"
)

func TestConfigureRequiresURL(t *testing.T) {
	c := New()
	err := c.Configure(map[string]any{})
	require.Error(t, err)
	var cc *connector.ConnectorConfig
	require.ErrorAs(t, err, &cc)
}

func TestReadDecodesJSONArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{"id": float64(1), "name": "alice"}})
	}))
	defer srv.Close()

	c := New()
	require.NoError(t, c.Configure(map[string]any{"url": srv.URL}))

	chunks, errs := c.Read(context.Background(), "", nil)
	var got connector.DataChunk
	for ch := range chunks {
		got = ch
	}
	require.NoError(t, drain(errs))
	require.Len(t, got.Rows, 1)
}

func TestFetchClassifiesUnauthorizedAsAuthFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New()
	require.NoError(t, c.Configure(map[string]any{"url": srv.URL}))

	_, errs := c.Read(context.Background(), "", nil)
	err := drain(errs)
	require.Error(t, err)
	var af *connector.AuthFailed
	require.ErrorAs(t, err, &af)
}

func TestFetchClassifies5xxAsConnectionFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New()
	require.NoError(t, c.Configure(map[string]any{"url": srv.URL}))

	_, errs := c.Read(context.Background(), "", nil)
	err := drain(errs)
	require.Error(t, err)
	var cf *connector.ConnectionFailed
	require.ErrorAs(t, err, &cf)
}

func TestWritePostsEachRow(t *testing.T) {
	var received []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var obj map[string]any
		json.NewDecoder(r.Body).Decode(&obj)
		received = append(received, obj)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New()
	require.NoError(t, c.Configure(map[string]any{"url": srv.URL}))

	chunk := connector.DataChunk{
		Schema: connector.Schema{{Name: "id", Type: "text"}},
		Rows:   [][]any{{"1"}, {"2"}},
	}
	res, err := c.Write(context.Background(), "", []connector.DataChunk{chunk}, connector.ModeAppend, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), res.RowsWritten)
	require.Len(t, received, 2)
}

func TestAuthHeaderAddsJWTBearerWhenConfigured(t *testing.T) {
	c := New()
	require.NoError(t, c.Configure(map[string]any{
		"url": "http://example.invalid", "jwt_signing_key": "secret", "jwt_claims": map[string]any{"sub": "svc"},
	}))
	header, err := c.authHeader()
	require.NoError(t, err)
	require.Contains(t, header, "Bearer ")
}

func TestAuthHeaderEmptyWithoutJWTConfig(t *testing.T) {
	c := New()
	require.NoError(t, c.Configure(map[string]any{"url": "http://example.invalid"}))
	header, err := c.authHeader()
	require.NoError(t, err)
	require.Empty(t, header)
}

func drain(errs <-chan error) error {
	var last error
	for e := range errs {
		last = e
	}
	return last
}

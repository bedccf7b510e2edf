package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/giaosudau/sqlflow-sub007/internal/connector"
	"github.com/giaosudau/sqlflow-sub007/internal/resilience"
)

func TestNetworkedClassifiesConnectorTypes(t *testing.T) {
	require.True(t, networked("POSTGRES"))
	require.True(t, networked("postgres"))
	require.True(t, networked("S3"))
	require.True(t, networked("REST"))
	require.False(t, networked("CSV"))
	require.False(t, networked("PARQUET"))
	require.False(t, networked("MEMORY"))
}

// fakeNetworkConnector fails its first N TestConnection calls with a
// retryable ConnectionFailed, then succeeds, so tests can assert Retry
// actually issues more than one attempt through the resilientConnector
// wrapper.
type fakeNetworkConnector struct {
	failuresLeft int
	calls        int
}

func (f *fakeNetworkConnector) Configure(map[string]any) error { return nil }

func (f *fakeNetworkConnector) TestConnection(ctx context.Context) (connector.ConnectionTest, error) {
	f.calls++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return connector.ConnectionTest{}, &connector.ConnectionFailed{Connector: "fake", Cause: context.DeadlineExceeded}
	}
	return connector.ConnectionTest{OK: true}, nil
}

func (f *fakeNetworkConnector) Read(ctx context.Context, object string, options map[string]any) (<-chan connector.DataChunk, <-chan error) {
	ch := make(chan connector.DataChunk)
	errs := make(chan error)
	close(ch)
	close(errs)
	return ch, errs
}

func (f *fakeNetworkConnector) ReadIncremental(ctx context.Context, object, cursorField, cursorValue string) (<-chan connector.DataChunk, <-chan error) {
	return f.Read(ctx, object, nil)
}

func (f *fakeNetworkConnector) Describe(ctx context.Context, object string) (connector.Schema, error) {
	return nil, nil
}

func (f *fakeNetworkConnector) Write(ctx context.Context, object string, chunks []connector.DataChunk, mode connector.LoadMode, mergeKeys []string) (connector.WriteResult, error) {
	return connector.WriteResult{}, nil
}

func TestResilientConnectorRetriesTransientFailures(t *testing.T) {
	eng := newTestEngine(t)
	exec := New(eng, nil)
	exec.retryConfig = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 1}

	fake := &fakeNetworkConnector{failuresLeft: 2}
	wrapped := exec.wrapResilient("POSTGRES", fake)

	_, err := wrapped.TestConnection(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, fake.calls, "should retry past two transient failures before succeeding")
}

func TestResilientConnectorOpensBreakerAfterRepeatedFailures(t *testing.T) {
	eng := newTestEngine(t)
	exec := New(eng, nil)
	exec.retryConfig = resilience.RetryConfig{MaxAttempts: 2, InitialDelay: 1}
	exec.breakerConfig = resilience.BreakerConfig{FailureThreshold: 3, RecoverAfter: time.Hour, SuccessThreshold: 1}

	// failuresLeft comfortably exceeds both the retry budget and the
	// breaker's failure threshold, so the breaker trips before the fake
	// ever returns success.
	fake := &fakeNetworkConnector{failuresLeft: 100}
	wrapped := exec.wrapResilient("POSTGRES", fake)

	for i := 0; i < 10; i++ {
		_, _ = wrapped.TestConnection(context.Background())
	}

	_, err := wrapped.TestConnection(context.Background())
	require.Error(t, err)
}

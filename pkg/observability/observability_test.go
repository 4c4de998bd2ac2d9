package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "trustcore", config.ServiceName)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.True(t, config.Enabled)
	require.False(t, config.Insecure)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())
}

func TestTrackOperation(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, finish := p.TrackOperation(context.Background(), "executor.execute",
		AttrCommandType.String("price_update"),
	)
	require.NotNil(t, ctx)

	time.Sleep(time.Millisecond)
	finish(nil)
}

func TestTrackOperationWithError(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	_, finish := p.TrackOperation(context.Background(), "executor.execute")
	finish(errors.New("gateway timeout"))
}

func TestRecordMetricsDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	p.RecordRequest(ctx, attribute.String("test", "value"))
	p.RecordError(ctx, errors.New("test"), attribute.String("test", "value"))
	p.RecordDuration(ctx, 100*time.Millisecond, attribute.String("test", "value"))
}

func TestShutdownDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestHTTPMiddleware(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	handler := p.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/proposals/execute", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
}

func TestGuardrailOperation(t *testing.T) {
	attrs := GuardrailOperation("prop-1", "price_update", "PASS")
	require.Len(t, attrs, 3)
	require.Equal(t, "trustcore.proposal.id", string(attrs[0].Key))
	require.Equal(t, "PASS", attrs[2].Value.AsString())
}

func TestExecutionOperation(t *testing.T) {
	attrs := ExecutionOperation("exec-1", "refund_issue", "APPROVE", "u-1")
	require.Len(t, attrs, 4)
	require.Equal(t, "trustcore.command.trust_level", string(attrs[2].Key))
	require.Equal(t, "APPROVE", attrs[2].Value.AsString())
}

func TestDecisionOperation(t *testing.T) {
	attrs := DecisionOperation("dec-1", "APPROVED", "mgr-1")
	require.Len(t, attrs, 3)
	require.Equal(t, "trustcore.decision.status", string(attrs[1].Key))
}

func TestActionOperation(t *testing.T) {
	attrs := ActionOperation("act-1", "ESCALATED", "P1")
	require.Len(t, attrs, 3)
	require.Equal(t, "P1", attrs[2].Value.AsString())
}

func TestSpanHelpers(t *testing.T) {
	ctx := context.Background()
	require.NotNil(t, SpanFromContext(ctx))
	AddSpanEvent(ctx, "decision.approved", AttrDecisionID.String("dec-1"))
	SetSpanStatus(ctx, errors.New("test error"))
	SetSpanStatus(ctx, nil)
}

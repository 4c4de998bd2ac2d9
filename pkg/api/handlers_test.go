package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Storemind-AI/trustcore/pkg/approval"
	"github.com/Storemind-AI/trustcore/pkg/auth"
	"github.com/Storemind-AI/trustcore/pkg/contracts"
	"github.com/Storemind-AI/trustcore/pkg/dispatch"
	"github.com/Storemind-AI/trustcore/pkg/executor"
	"github.com/Storemind-AI/trustcore/pkg/guardrail"
	"github.com/Storemind-AI/trustcore/pkg/notify"
	"github.com/Storemind-AI/trustcore/pkg/store"
	"github.com/Storemind-AI/trustcore/pkg/webhook"
)

const (
	testJWTSecret    = "api-test-secret"
	testWebhookToken = "webhook-secret"
)

type testEnv struct {
	server  *httptest.Server
	mem     *store.Memory
	outbox  *notify.Recorder
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mem := store.NewMemory()
	engine := guardrail.NewEngine(guardrail.DefaultCatalog())

	matrix := executor.NewPermissionMatrix(map[string][]string{
		"store_manager": {"price_update", "discount_apply"},
	})
	levels := map[string]contracts.TrustLevel{
		"price_update":   contracts.TrustAuto,
		"discount_apply": contracts.TrustApprove,
	}
	exec := executor.New(matrix, levels, mem)
	exec.RegisterHandler("price_update", func(ctx context.Context, payload map[string]any) (string, error) {
		return "ok", nil
	})

	recorder := notify.NewRecorder()
	sink := &directDispatcher{rec: recorder}
	approvals := approval.New(mem, sink)
	approvals.BindRunner(exec)
	exec.BindApprovals(approvals)

	d := dispatch.New(mem, sink, nil)
	wh := webhook.NewProcessor(testWebhookToken, webhook.NewMemoryReplayCache(), d, 5*time.Minute)

	validator := auth.NewJWTValidator([]byte(testJWTSecret))
	s := NewServer(engine, exec, approvals, d, wh, mem, validator, nil)

	handler := s.Handler()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, mem: mem, outbox: recorder, handler: handler}
}

type directDispatcher struct{ rec *notify.Recorder }

func (d *directDispatcher) Enqueue(msg *notify.Message) {
	_ = d.rec.Push(context.Background(), msg)
}

func bearerToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:    role,
		StoreID: "store-1",
	})
	s, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return s
}

func (e *testEnv) request(t *testing.T, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken(t, role))
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func TestHealthUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	rr := env.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	rr := env.request(t, http.MethodGet, "/v1/decisions/pending", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestEvaluateProposal(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{
		"proposal": map[string]any{
			"proposal_id":   "p-1",
			"proposal_type": "discount_apply",
			"content":       map[string]any{"amount": 5000.0, "cost_price": 4000.0},
			"confidence":    0.9,
		},
		"context": map[string]any{},
	}
	rr := env.request(t, http.MethodPost, "/v1/proposals/evaluate", "store_manager", body)
	require.Equal(t, http.StatusOK, rr.Code)

	result := decode[contracts.GuardrailResult](t, rr)
	assert.Equal(t, "p-1", result.ProposalID)
	assert.NotEmpty(t, result.Violations)
}

func TestEvaluateRejectsSchemaViolation(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{
		"proposal": map[string]any{"proposal_type": "discount_apply"},
	}
	rr := env.request(t, http.MethodPost, "/v1/proposals/evaluate", "store_manager", body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExecuteAutoPath(t *testing.T) {
	env := newTestEnv(t)
	rr := env.request(t, http.MethodPost, "/v1/execute", "store_manager", map[string]any{
		"command_type": "price_update",
		"payload":      map[string]any{"sku": "A-1", "amount": 9.9},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	receipt := decode[contracts.ExecutionReceipt](t, rr)
	assert.Equal(t, contracts.ExecStatusExecuted, receipt.Status)
}

func TestExecuteDeferredReturns202(t *testing.T) {
	env := newTestEnv(t)
	rr := env.request(t, http.MethodPost, "/v1/execute", "store_manager", map[string]any{
		"command_type": "discount_apply",
		"payload":      map[string]any{"amount": 500.0},
	})
	require.Equal(t, http.StatusAccepted, rr.Code)

	resp := decode[map[string]string](t, rr)
	assert.Equal(t, contracts.ExecStatusPendingApproval, resp["status"])
	assert.NotEmpty(t, resp["decision_id"])
	assert.NotEmpty(t, resp["execution_id"])
}

func TestExecutePermissionDeniedReturns403(t *testing.T) {
	env := newTestEnv(t)
	rr := env.request(t, http.MethodPost, "/v1/execute", "cashier", map[string]any{
		"command_type": "price_update",
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestApproveFlowAndConflict(t *testing.T) {
	env := newTestEnv(t)

	rr := env.request(t, http.MethodPost, "/v1/execute", "store_manager", map[string]any{
		"command_type": "discount_apply",
		"payload":      map[string]any{"amount": 500.0},
	})
	require.Equal(t, http.StatusAccepted, rr.Code)
	decisionID := decode[map[string]string](t, rr)["decision_id"]

	// Approval executes the deferred command. discount_apply has no
	// handler registered, so the approved run fails downstream, but the
	// decision transition itself has already happened.
	rr = env.request(t, http.MethodPost, "/v1/decisions/"+decisionID+"/approve", "store_manager",
		map[string]any{"note": "ok"})
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	rr = env.request(t, http.MethodPost, "/v1/decisions/"+decisionID+"/approve", "store_manager",
		map[string]any{"note": "again"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestModifyWithoutPayloadReturns400(t *testing.T) {
	env := newTestEnv(t)

	rr := env.request(t, http.MethodPost, "/v1/execute", "store_manager", map[string]any{
		"command_type": "discount_apply",
		"payload":      map[string]any{"amount": 500.0},
	})
	require.Equal(t, http.StatusAccepted, rr.Code)
	decisionID := decode[map[string]string](t, rr)["decision_id"]

	rr = env.request(t, http.MethodPost, "/v1/decisions/"+decisionID+"/modify", "store_manager",
		map[string]any{"note": "missing the payload"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// The decision is untouched and still pending.
	rr = env.request(t, http.MethodGet, "/v1/decisions/pending?store_id=store-1", "store_manager", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]contracts.DecisionLog](t, rr), 1)
}

func TestPendingDecisions(t *testing.T) {
	env := newTestEnv(t)
	rr := env.request(t, http.MethodPost, "/v1/execute", "store_manager", map[string]any{
		"command_type": "discount_apply",
		"payload":      map[string]any{"amount": 100.0},
	})
	require.Equal(t, http.StatusAccepted, rr.Code)

	rr = env.request(t, http.MethodGet, "/v1/decisions/pending?store_id=store-1", "store_manager", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	pending := decode[[]contracts.DecisionLog](t, rr)
	assert.Len(t, pending, 1)
}

func TestActionLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	rr := env.request(t, http.MethodPost, "/v1/actions", "store_manager", map[string]any{
		"store_id":           "store-1",
		"priority":           "P2",
		"title":              "Check freezer",
		"receiver_id":        "staff-1",
		"escalation_user_id": "mgr-1",
		"push":               true,
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decode[contracts.ActionRecord](t, rr)
	assert.Equal(t, contracts.ActionPushed, created.State)

	rr = env.request(t, http.MethodPost, "/v1/actions/"+created.ActionID+"/acknowledge", "store_manager", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.request(t, http.MethodPost, "/v1/actions/"+created.ActionID+"/resolve", "store_manager",
		map[string]any{"notes": "fixed"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[map[string]bool](t, rr)["resolved"])

	// Second resolve is idempotent-false, not an error.
	rr = env.request(t, http.MethodPost, "/v1/actions/"+created.ActionID+"/resolve", "store_manager", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[map[string]bool](t, rr)["resolved"])
}

func TestActionInvalidTransitionReturns409(t *testing.T) {
	env := newTestEnv(t)
	rr := env.request(t, http.MethodPost, "/v1/actions", "store_manager", map[string]any{
		"store_id": "store-1", "receiver_id": "staff-1",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decode[contracts.ActionRecord](t, rr)

	rr = env.request(t, http.MethodPost, "/v1/actions/"+created.ActionID+"/acknowledge", "store_manager", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestWebhookCallbackNoBearerNeeded(t *testing.T) {
	env := newTestEnv(t)

	rr := env.request(t, http.MethodPost, "/v1/actions", "store_manager", map[string]any{
		"store_id": "store-1", "receiver_id": "staff-1", "push": true,
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decode[contracts.ActionRecord](t, rr)

	ts := fmt.Sprintf("%d", time.Now().Unix())
	cb := map[string]string{
		"action_id": created.ActionID,
		"timestamp": ts,
		"nonce":     "n-1",
		"signature": webhook.Signature(testWebhookToken, ts, "n-1"),
		"text":      "confirm",
	}
	rr = env.request(t, http.MethodPost, "/v1/webhook/callback", "", cb)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "acknowledged", decode[map[string]string](t, rr)["disposition"])
}

func TestWebhookBadSignatureReturns401(t *testing.T) {
	env := newTestEnv(t)
	cb := map[string]string{
		"action_id": "a-1", "timestamp": "0", "nonce": "n-1", "signature": "bad", "text": "confirm",
	}
	rr := env.request(t, http.MethodPost, "/v1/webhook/callback", "", cb)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuditVerifyEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rr := env.request(t, http.MethodPost, "/v1/execute", "store_manager", map[string]any{
		"command_type": "price_update",
		"payload":      map[string]any{"amount": 1.0},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.request(t, http.MethodGet, "/v1/audit/verify", "store_manager", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[map[string]bool](t, rr)["valid"])
}

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Storemind-AI/trustcore/pkg/config"
)

func TestPolicyCommandTypes(t *testing.T) {
	policy := &config.Policy{
		TrustLevels: map[string]string{
			"price_update": "AUTO",
			"refund_issue": "APPROVE",
		},
		Permissions: map[string][]string{
			"store_manager": {"price_update", "discount_apply"},
			"admin":         {"*"},
		},
	}

	types := policyCommandTypes(policy)
	assert.Equal(t, []string{"discount_apply", "price_update", "refund_issue"}, types)
}

func TestGatewayClientRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/commands/price_update", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"updated":1}`))
	}))
	defer srv.Close()

	gw := newGatewayClient(srv.URL)
	result, err := gw.run(context.Background(), "price_update", map[string]any{"sku": "A-1", "price": 9.9})
	require.NoError(t, err)
	assert.Equal(t, `{"updated":1}`, result)
}

func TestGatewayClientRunSurfacesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sku not found", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	gw := newGatewayClient(srv.URL)
	_, err := gw.run(context.Background(), "price_update", map[string]any{"sku": "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
	assert.Contains(t, err.Error(), "sku not found")
}

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPNotifierPush(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL)
	err := n.Push(context.Background(), &Message{
		ReceiverID: "mgr-1",
		Title:      "[P1] Approval needed: refund_issue",
		Body:       "refund over limit",
		Priority:   "P1",
	})
	require.NoError(t, err)
	assert.Equal(t, "mgr-1", got.ReceiverID)
	assert.Equal(t, "P1", got.Priority)
}

func TestHTTPNotifierFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL)
	err := n.Push(context.Background(), &Message{ReceiverID: "mgr-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

package webhook

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
	"github.com/Storemind-AI/trustcore/pkg/dispatch"
	"github.com/Storemind-AI/trustcore/pkg/store"
)

const testToken = "shared-secret"

func newTestProcessor(t *testing.T) (*Processor, *dispatch.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	d := dispatch.New(mem, nil, nil)
	p := NewProcessor(testToken, NewMemoryReplayCache(), d, 5*time.Minute)
	return p, d, mem
}

func pushedAction(t *testing.T, d *dispatch.Service) string {
	t.Helper()
	ctx := context.Background()
	a, err := d.CreateAction(ctx, dispatch.CreateActionRequest{
		StoreID: "store-1", Priority: contracts.PriorityP2,
		Title: "Check freezer", ReceiverID: "staff-1", EscalationUserID: "mgr-1",
	})
	require.NoError(t, err)
	_, err = d.Push(ctx, a.ActionID)
	require.NoError(t, err)
	return a.ActionID
}

func signedCallback(actionID, nonce, text string) Callback {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	return Callback{
		ActionID:  actionID,
		Timestamp: ts,
		Nonce:     nonce,
		Signature: Signature(testToken, ts, nonce),
		SenderID:  "staff-1",
		Text:      text,
	}
}

func TestSignatureIsOrderInsensitive(t *testing.T) {
	// The tuple is sorted before hashing, so argument order between the
	// token, timestamp and nonce positions cannot change the digest.
	assert.Equal(t, Signature("a", "b", "c"), Signature("c", "a", "b"))
	assert.NotEqual(t, Signature("a", "b", "c"), Signature("a", "b", "d"))
}

func TestHandleRejectsBadSignature(t *testing.T) {
	p, d, mem := newTestProcessor(t)
	id := pushedAction(t, d)

	cb := signedCallback(id, "n-1", "confirm")
	cb.Signature = "forged"
	_, err := p.Handle(context.Background(), cb)
	assert.ErrorIs(t, err, contracts.ErrSignatureInvalid)

	a, err := mem.GetAction(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionPushed, a.State, "rejected callback must not touch the action")
}

func TestHandleRejectsStaleTimestamp(t *testing.T) {
	p, d, _ := newTestProcessor(t)
	id := pushedAction(t, d)

	old := fmt.Sprintf("%d", time.Now().Add(-time.Hour).Unix())
	cb := Callback{
		ActionID:  id,
		Timestamp: old,
		Nonce:     "n-1",
		Signature: Signature(testToken, old, "n-1"),
		Text:      "confirm",
	}
	_, err := p.Handle(context.Background(), cb)
	assert.ErrorIs(t, err, contracts.ErrSignatureInvalid)
}

func TestHandleRejectsReplayedNonce(t *testing.T) {
	p, d, _ := newTestProcessor(t)
	id := pushedAction(t, d)
	ctx := context.Background()

	_, err := p.Handle(ctx, signedCallback(id, "n-1", "confirm"))
	require.NoError(t, err)

	_, err = p.Handle(ctx, signedCallback(id, "n-1", "confirm"))
	assert.ErrorIs(t, err, contracts.ErrNonceReplayed)
}

func TestHandleConfirmationAcknowledges(t *testing.T) {
	p, d, mem := newTestProcessor(t)
	id := pushedAction(t, d)

	disp, err := p.Handle(context.Background(), signedCallback(id, "n-1", "Received, on my way"))
	require.NoError(t, err)
	assert.Equal(t, DispositionAcknowledged, disp)

	a, err := mem.GetAction(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionAcknowledged, a.State)
}

func TestHandleCompletionResolves(t *testing.T) {
	p, d, mem := newTestProcessor(t)
	id := pushedAction(t, d)

	disp, err := p.Handle(context.Background(), signedCallback(id, "n-1", "All DONE, freezer back to temp"))
	require.NoError(t, err)
	assert.Equal(t, DispositionResolved, disp)

	a, err := mem.GetAction(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionResolved, a.State)
}

func TestHandleUnicodeKeywords(t *testing.T) {
	p, d, mem := newTestProcessor(t)
	id := pushedAction(t, d)

	disp, err := p.Handle(context.Background(), signedCallback(id, "n-1", "已处理，货架补满"))
	require.NoError(t, err)
	assert.Equal(t, DispositionResolved, disp)

	a, err := mem.GetAction(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionResolved, a.State)
}

func TestHandleIrrelevantTextIgnored(t *testing.T) {
	p, d, mem := newTestProcessor(t)
	id := pushedAction(t, d)

	disp, err := p.Handle(context.Background(), signedCallback(id, "n-1", "who is this?"))
	require.NoError(t, err)
	assert.Equal(t, DispositionIgnored, disp)

	a, err := mem.GetAction(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionPushed, a.State)
}

func TestMemoryReplayCacheExpiry(t *testing.T) {
	c := NewMemoryReplayCache()
	base := time.Now()
	c.now = func() time.Time { return base }
	ctx := context.Background()

	fresh, err := c.MarkSeen(ctx, "n-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = c.MarkSeen(ctx, "n-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	fresh, err = c.MarkSeen(ctx, "n-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh, "expired nonce may be reused")
}

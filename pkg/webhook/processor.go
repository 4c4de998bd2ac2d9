package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
	"github.com/Storemind-AI/trustcore/pkg/dispatch"
)

// Callback is one inbound reply from the push channel.
type Callback struct {
	ActionID  string `json:"action_id"`
	Timestamp string `json:"timestamp"` // unix seconds as sent by the channel
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
	SenderID  string `json:"sender_id"`
	Text      string `json:"text"`
}

// Disposition is what the processor did with a callback.
type Disposition string

const (
	DispositionAcknowledged Disposition = "acknowledged"
	DispositionResolved     Disposition = "resolved"
	DispositionIgnored      Disposition = "ignored"
)

var (
	confirmKeywords  = []string{"confirm", "received", "ack", "on it", "收到", "确认"}
	completeKeywords = []string{"done", "resolved", "completed", "fixed", "完成", "已处理", "已解决"}
)

// Processor authenticates callbacks and routes their text to the dispatch
// service. Unverified requests are rejected before any side effect.
type Processor struct {
	token    string
	cache    ReplayCache
	dispatch *dispatch.Service
	window   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewProcessor builds a processor. window bounds both timestamp skew and the
// nonce retention TTL.
func NewProcessor(token string, cache ReplayCache, d *dispatch.Service, window time.Duration) *Processor {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Processor{
		token:    token,
		cache:    cache,
		dispatch: d,
		window:   window,
		logger:   slog.Default().With("component", "webhook"),
		now:      time.Now,
	}
}

// Handle verifies and applies one callback. The order matters: signature
// first, then timestamp, then nonce, so an attacker cannot burn nonces with
// unsigned requests.
func (p *Processor) Handle(ctx context.Context, cb Callback) (Disposition, error) {
	if !VerifySignature(p.token, cb.Timestamp, cb.Nonce, cb.Signature) {
		p.logger.Warn("callback rejected", "action_id", cb.ActionID, "reason", "bad signature")
		return "", contracts.ErrSignatureInvalid
	}

	ts, err := strconv.ParseInt(cb.Timestamp, 10, 64)
	if err != nil {
		return "", fmt.Errorf("parse timestamp: %w", contracts.ErrSignatureInvalid)
	}
	sent := time.Unix(ts, 0)
	if skew := p.now().Sub(sent); skew > p.window || skew < -p.window {
		p.logger.Warn("callback rejected", "action_id", cb.ActionID, "reason", "timestamp outside window")
		return "", fmt.Errorf("timestamp outside window: %w", contracts.ErrSignatureInvalid)
	}

	fresh, err := p.cache.MarkSeen(ctx, cb.Nonce, p.window)
	if err != nil {
		return "", err
	}
	if !fresh {
		return "", contracts.ErrNonceReplayed
	}

	switch classify(cb.Text) {
	case DispositionAcknowledged:
		if _, err := p.dispatch.Acknowledge(ctx, cb.ActionID); err != nil {
			return "", err
		}
		return DispositionAcknowledged, nil
	case DispositionResolved:
		done, err := p.dispatch.Resolve(ctx, cb.ActionID, cb.Text)
		if err != nil {
			return "", err
		}
		if !done {
			return DispositionIgnored, nil
		}
		return DispositionResolved, nil
	default:
		p.logger.Info("callback text not actionable", "action_id", cb.ActionID)
		return DispositionIgnored, nil
	}
}

// classify maps reply text to a lifecycle intent. Matching runs on
// NFC-normalized, case-folded text so composed and decomposed Unicode forms
// and any letter casing compare equal.
func classify(text string) Disposition {
	folded := cases.Fold().String(norm.NFC.String(text))
	for _, kw := range completeKeywords {
		if strings.Contains(folded, kw) {
			return DispositionResolved
		}
	}
	for _, kw := range confirmKeywords {
		if strings.Contains(folded, kw) {
			return DispositionAcknowledged
		}
	}
	return DispositionIgnored
}

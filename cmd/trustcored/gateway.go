package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/Storemind-AI/trustcore/pkg/config"
	"github.com/Storemind-AI/trustcore/pkg/executor"
)

// gatewayClient forwards executed commands to the store-platform gateway.
// One endpoint per command type: POST {base}/commands/{type}.
type gatewayClient struct {
	base   string
	client *http.Client
}

func newGatewayClient(base string) *gatewayClient {
	return &gatewayClient{
		base:   base,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *gatewayClient) run(ctx context.Context, commandType string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode command payload: %w", err)
	}

	url := fmt.Sprintf("%s/commands/%s", g.base, commandType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway call %s: %w", commandType, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("gateway response %s: %w", commandType, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("gateway call %s: status %d: %s", commandType, resp.StatusCode, out)
	}
	return string(out), nil
}

// registerGatewayHandlers wires every command type named by the policy to
// the gateway. Without a gateway URL no handlers are registered and
// executions fail closed with an audited error.
func registerGatewayHandlers(exec *executor.Executor, policy *config.Policy, gatewayURL string, logger *slog.Logger) {
	types := policyCommandTypes(policy)
	if gatewayURL == "" {
		logger.Warn("GATEWAY_URL not set, no command handlers registered", "command_types", len(types))
		return
	}

	gw := newGatewayClient(gatewayURL)
	for _, ct := range types {
		commandType := ct
		exec.RegisterHandler(commandType, func(ctx context.Context, payload map[string]any) (string, error) {
			return gw.run(ctx, commandType, payload)
		})
	}
	logger.Info("gateway handlers registered", "gateway", gatewayURL, "command_types", len(types))
}

// policyCommandTypes collects every command type the policy mentions, from
// both the trust level table and the permission grants.
func policyCommandTypes(policy *config.Policy) []string {
	seen := map[string]bool{}
	for ct := range policy.TrustLevels {
		seen[ct] = true
	}
	for _, grants := range policy.Permissions {
		for _, ct := range grants {
			if ct != "*" {
				seen[ct] = true
			}
		}
	}
	types := make([]string, 0, len(seen))
	for ct := range seen {
		types = append(types, ct)
	}
	sort.Strings(types)
	return types
}

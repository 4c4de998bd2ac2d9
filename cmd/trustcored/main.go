// trustcored serves the proposal governance pipeline: guardrail evaluation,
// trusted execution, human approval, and action dispatch, over HTTP.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Storemind-AI/trustcore/pkg/api"
	"github.com/Storemind-AI/trustcore/pkg/approval"
	"github.com/Storemind-AI/trustcore/pkg/auth"
	"github.com/Storemind-AI/trustcore/pkg/config"
	"github.com/Storemind-AI/trustcore/pkg/dispatch"
	"github.com/Storemind-AI/trustcore/pkg/executor"
	"github.com/Storemind-AI/trustcore/pkg/guardrail"
	"github.com/Storemind-AI/trustcore/pkg/notify"
	"github.com/Storemind-AI/trustcore/pkg/observability"
	"github.com/Storemind-AI/trustcore/pkg/store"
	"github.com/Storemind-AI/trustcore/pkg/webhook"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver
)

const escalationPollInterval = time.Minute

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	logger := slog.Default().With("component", "trustcored")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy, err := loadPolicy(cfg.PolicyPath, logger)
	if err != nil {
		logger.Error("invalid policy", "path", cfg.PolicyPath, "error", err)
		os.Exit(1)
	}

	decisions, audit, actions, closeStores, err := openStores(cfg)
	if err != nil {
		logger.Error("store init failed", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer closeStores()

	engine := guardrail.NewEngine(guardrail.DefaultCatalog())
	for _, spec := range policy.Rules {
		rule, err := guardrail.CompileCELRule(spec)
		if err != nil {
			logger.Error("bad policy rule", "rule", spec.Code, "error", err)
			os.Exit(1)
		}
		engine.Register(rule)
	}

	outbox := notify.NewOutbox(buildNotifier(cfg, logger), notifyRate(policy), notifyBurst(policy))
	outbox.Start(ctx)

	approvals := approval.New(decisions, outbox)
	exec := executor.New(executor.NewPermissionMatrix(policy.Permissions), policy.TrustLevelMap(), audit)
	exec.BindApprovals(approvals)
	approvals.BindRunner(exec)
	registerGatewayHandlers(exec, policy, cfg.GatewayURL, logger)

	dispatchSvc := dispatch.New(actions, outbox, policy.TimeoutMap())
	go runEscalationPoller(ctx, dispatchSvc, logger)

	processor := webhook.NewProcessor(cfg.WebhookToken, buildReplayCache(cfg), dispatchSvc, 5*time.Minute)

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET is empty, all bearer tokens will be rejected")
	}
	validator := auth.NewJWTValidator([]byte(cfg.JWTSecret))
	limiter := auth.NewActorLimiter(10, 20)

	provider, err := observability.New(ctx, &observability.Config{
		ServiceName:    "trustcore",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.OTelEnabled,
		Insecure:       cfg.OTelInsecure,
	})
	if err != nil {
		logger.Error("observability init failed", "error", err)
		os.Exit(1)
	}

	server := api.NewServer(engine, exec, approvals, dispatchSvc, processor, audit, validator, limiter)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           provider.HTTPMiddleware(server.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "port", cfg.Port, "db_driver", cfg.DBDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	<-outbox.Done()
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("observability shutdown", "error", err)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// loadPolicy falls back to built-in defaults when the policy file does not
// exist. A present-but-invalid file is a hard error.
func loadPolicy(path string, logger *slog.Logger) (*config.Policy, error) {
	policy, err := config.LoadPolicy(path)
	if err == nil {
		return policy, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("policy file not found, using built-in defaults", "path", path)
		return &config.Policy{CatalogVersion: "1.0.0"}, nil
	}
	return nil, err
}

// openStores returns the three pipeline stores plus a close function. The
// memory driver backs all three with a single in-process store.
func openStores(cfg *config.Config) (store.DecisionStore, store.AuditStore, store.ActionStore, func(), error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		pg, err := store.NewPostgres(db)
		if err != nil {
			db.Close()
			return nil, nil, nil, nil, err
		}
		return pg, pg, pg, func() { db.Close() }, nil
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		st, err := store.NewSQLite(db)
		if err != nil {
			db.Close()
			return nil, nil, nil, nil, err
		}
		return st, st, st, func() { db.Close() }, nil
	default:
		m := store.NewMemory()
		return m, m, m, func() {}, nil
	}
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	if cfg.NotifyWebhookURL != "" {
		return notify.NewHTTPNotifier(cfg.NotifyWebhookURL)
	}
	logger.Warn("NOTIFY_WEBHOOK_URL not set, notifications stay in memory")
	return notify.NewRecorder()
}

func buildReplayCache(cfg *config.Config) webhook.ReplayCache {
	if cfg.RedisAddr != "" {
		return webhook.NewRedisReplayCache(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}
	return webhook.NewMemoryReplayCache()
}

func notifyRate(p *config.Policy) float64 {
	if p.Notify.RatePerSecond > 0 {
		return p.Notify.RatePerSecond
	}
	return 5
}

func notifyBurst(p *config.Policy) int {
	if p.Notify.Burst > 0 {
		return p.Notify.Burst
	}
	return 10
}

// runEscalationPoller periodically escalates actions whose acknowledgement
// deadline has passed.
func runEscalationPoller(ctx context.Context, d *dispatch.Service, logger *slog.Logger) {
	ticker := time.NewTicker(escalationPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired, err := d.ExpiredActions(ctx, now)
			if err != nil {
				logger.Error("expired action scan failed", "error", err)
				continue
			}
			for _, a := range expired {
				if _, err := d.Escalate(ctx, a.ActionID, "acknowledgement timeout"); err != nil {
					logger.Error("escalation failed", "action_id", a.ActionID, "error", err)
				}
			}
		}
	}
}

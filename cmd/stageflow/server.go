package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/stageflow/api/handlers"
	"github.com/BaSui01/stageflow/agent/declarative"
	"github.com/BaSui01/stageflow/internal/server"
	"github.com/BaSui01/stageflow/workflow"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to configuration file")
	definitions := fs.String("definitions", "", "Definitions directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *definitions != "" {
		cfg.Engine.DefinitionsDir = *definitions
	}

	app, err := newApp(cfg, appDeps{})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(context.Background()); cerr != nil {
			app.logger.Warn("close failed", zap.Error(cerr))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.logger.Info("starting stageflow",
		zap.String("version", Version),
		zap.String("session_store", cfg.Session.Store),
		zap.String("hitl_mode", cfg.HITL.Mode),
		zap.String("definitions_dir", cfg.Engine.DefinitionsDir),
	)
	return app.serve(ctx)
}

// serve 运行 HTTP 服务直到 ctx 结束；开启 watch_definitions 时同时监听定义目录
func (a *App) serve(ctx context.Context) error {
	if a.cfg.Engine.WatchDefinitions {
		w := a.watchDefinitions()
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("watch definitions: %w", err)
		}
		defer w.Stop()
	}

	mgr := server.NewManager(a.handler(ctx), server.ConfigFrom(a.cfg.Server), a.logger)
	return mgr.Run(ctx)
}

// watchDefinitions 在定义文件变更后重新加载 agent；工作流定义在下次运行时
// 从已清空的缓存重新读取
func (a *App) watchDefinitions() *declarative.Watcher {
	w := declarative.NewWatcher(a.loader.Dir(), declarative.WithWatcherLogger(a.logger))
	w.OnChange(func(events []declarative.FileEvent) {
		a.logger.Info("definitions changed, reloading", zap.Int("events", len(events)))
		if err := a.loadAgents(); err != nil {
			a.logger.Error("reload definitions failed", zap.Error(err))
		}
	})
	return w
}

// handler 组装路由与中间件。ctx 是异步运行与限流清理的生命周期。
func (a *App) handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(a.logger)
	health.RegisterCheck(handlers.NewPingCheck("session_store", a.sessions.Store().Ping))
	if a.db != nil {
		health.RegisterCheck(handlers.NewPingCheck("database", a.db.Ping))
	}
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))
	if a.collector != nil {
		mux.Handle("GET "+a.cfg.Metrics.Path, promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	api := http.NewServeMux()

	wf := handlers.NewWorkflowHandler(ctx, a.engine, definitionSource{a}, a.logger)
	api.HandleFunc("GET /api/v1/workflows", wf.HandleListWorkflows)
	api.HandleFunc("POST /api/v1/runs", wf.HandleRun)
	api.HandleFunc("GET /api/v1/runs", wf.HandleListRuns)
	api.HandleFunc("GET /api/v1/runs/active", wf.HandleActive)
	api.HandleFunc("GET /api/v1/runs/{id}", wf.HandleGetRun)
	api.HandleFunc("POST /api/v1/runs/{id}/cancel", wf.HandleCancel)

	sessions := handlers.NewSessionHandler(a.sessions, a.logger)
	api.HandleFunc("GET /api/v1/sessions", sessions.HandleList)
	api.HandleFunc("GET /api/v1/sessions/{id}", sessions.HandleGet)
	api.HandleFunc("DELETE /api/v1/sessions/{id}", sessions.HandleDelete)

	if a.queue != nil {
		approvals := handlers.NewApprovalHandler(a.queue, a.logger)
		api.HandleFunc("GET /api/v1/approvals", approvals.HandleList)
		api.HandleFunc("GET /api/v1/approvals/{id}", approvals.HandleGet)
		api.HandleFunc("POST /api/v1/approvals/{id}", approvals.HandleResolve)
		api.HandleFunc("GET /api/v1/notifications", approvals.HandleNotifications)
	}

	var apiChain []Middleware
	if a.cfg.Server.RateLimitRPS > 0 {
		apiChain = append(apiChain, RateLimiter(ctx, a.cfg.Server.RateLimitRPS, a.cfg.Server.RateLimitBurst, a.logger))
	}
	mux.Handle("/api/", Chain(api, apiChain...))

	chain := []Middleware{
		Recovery(a.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(a.logger),
	}
	if a.collector != nil {
		chain = append(chain, MetricsMiddleware(a.collector))
	}
	if a.telemetry.Enabled() {
		chain = append(chain, OTelTracing())
	}
	return Chain(mux, chain...)
}

// definitionSource 让 API 读取的工作流定义同样套用引擎的循环默认值
type definitionSource struct{ app *App }

func (d definitionSource) LoadWorkflow(id string) (workflow.Definition, error) {
	def, err := d.app.loader.LoadWorkflow(id)
	if err != nil {
		return workflow.Definition{}, err
	}
	return withLoopDefaults(def, d.app.cfg.Engine.DefaultMaxIterations), nil
}

func (d definitionSource) WorkflowIDs() ([]string, error) { return d.app.loader.WorkflowIDs() }

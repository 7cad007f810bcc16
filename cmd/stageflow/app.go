package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/stageflow/agent"
	"github.com/BaSui01/stageflow/agent/declarative"
	"github.com/BaSui01/stageflow/agent/hitl"
	"github.com/BaSui01/stageflow/agent/persistence"
	"github.com/BaSui01/stageflow/config"
	"github.com/BaSui01/stageflow/internal/database"
	"github.com/BaSui01/stageflow/internal/metrics"
	"github.com/BaSui01/stageflow/internal/telemetry"
	"github.com/BaSui01/stageflow/types"
	"github.com/BaSui01/stageflow/workflow"
)

// =============================================================================
// 🏗️ 应用装配
// =============================================================================

// appDeps 是装配时可替换的外部依赖，测试中替换为内存实现
type appDeps struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	stdin      io.Reader
	stdout     io.Writer
}

// App 持有一次进程生命周期内的全部组件
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	collector *metrics.Collector
	gatherer  prometheus.Gatherer
	telemetry *telemetry.Providers
	db        *database.PoolManager

	sessions *persistence.Manager
	loader   *declarative.Loader
	agents   *agent.Registry
	hitl     *hitl.InterventionManager
	queue    *hitl.QueueHandler
	engine   *workflow.Engine
}

// newApp 按配置装配应用，失败时释放已创建的资源
func newApp(cfg *config.Config, deps appDeps) (app *App, err error) {
	logger := deps.logger
	if logger == nil {
		logger = initLogger(cfg.Log)
	}
	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			err = errors.Join(err, app.Close(context.Background()))
			app = nil
		}
	}()

	if cfg.Metrics.Enabled {
		reg := deps.registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		app.collector = metrics.NewCollector(cfg.Metrics.Namespace, reg, logger)
		app.gatherer = prometheus.DefaultGatherer
		if g, ok := reg.(prometheus.Gatherer); ok {
			app.gatherer = g
		}
	}

	if app.telemetry, err = telemetry.Init(cfg.Telemetry, logger); err != nil {
		return app, fmt.Errorf("init telemetry: %w", err)
	}

	if persistence.StoreType(cfg.Session.Store) == persistence.StoreTypeDatabase {
		if app.db, err = database.Open(cfg.Database, logger); err != nil {
			return app, fmt.Errorf("open database: %w", err)
		}
		if app.collector != nil {
			app.db.SetRecorder(app.collector)
		}
	}

	store, err := persistence.NewSessionStore(cfg.StoreConfig(), app.gormDB())
	if err != nil {
		return app, fmt.Errorf("open session store: %w", err)
	}
	app.sessions = persistence.NewManager(store, logger)

	app.loader = declarative.NewLoader(cfg.Engine.DefinitionsDir, logger)
	app.agents = agent.NewRegistry(logger)
	if err = app.loadAgents(); err != nil {
		return app, err
	}

	app.hitl = hitl.NewInterventionManager(logger)
	app.hitl.SetDefaultTimeout(cfg.HITL.DefaultTimeout, types.TimeoutBehavior(cfg.HITL.TimeoutBehavior))
	if app.collector != nil {
		app.hitl.SetRecorder(app.collector)
	}
	switch cfg.HITL.Mode {
	case config.HITLModeAuto:
		app.hitl.SetAutoApprove(true)
	case config.HITLModeQueue:
		app.queue = hitl.NewQueueHandler(logger)
		app.hitl.SetHandler(app.queue)
	default:
		stdin, stdout := deps.stdin, deps.stdout
		if stdin == nil {
			stdin = os.Stdin
		}
		if stdout == nil {
			stdout = os.Stdout
		}
		app.hitl.SetHandler(hitl.NewConsoleHandler(stdin, stdout))
	}

	opts := []workflow.EngineOption{
		workflow.WithGateRegistry(hitl.NewDefaultGateRegistry()),
		workflow.WithHistory(workflow.NewExecutionHistoryStore(cfg.Engine.HistoryLimit)),
	}
	if app.collector != nil {
		opts = append(opts, workflow.WithRecorder(app.collector))
	}
	app.engine = workflow.NewEngine(app.sessions, app.agents, app.hitl, logger, opts...)
	return app, nil
}

func (a *App) gormDB() *gorm.DB {
	if a.db == nil {
		return nil
	}
	return a.db.DB()
}

// loadAgents 读取定义目录中的 agent，并补齐内置研究流程所需的阶段 agent。
// 目录不存在时只注册内置 agent。
func (a *App) loadAgents() error {
	loaded, err := a.loader.Reload()
	if err != nil {
		return fmt.Errorf("load agent definitions: %w", err)
	}
	configs := make(map[string]agent.Config, len(loaded)+6)
	for _, cfg := range researchAgentConfigs() {
		configs[cfg.ID] = cfg
	}
	maps.Copy(configs, loaded)

	ids := slices.Sorted(maps.Keys(configs))
	list := make([]agent.Config, 0, len(ids))
	for _, id := range ids {
		list = append(list, configs[id])
	}
	return a.loader.Factory().Instantiate(a.agents, list, templateFactory(a.logger))
}

// resolveDefinition 解析运行目标：方法论优先，其次是定义文件路径、
// 定义目录中的 id、内置 id，"default" 或空值为默认研究流程
func (a *App) resolveDefinition(ref, methodology string) (workflow.Definition, error) {
	var (
		def workflow.Definition
		err error
	)
	switch {
	case methodology != "":
		def = a.engine.WorkflowForMethodology(methodology)
	case ref == "" || ref == "default":
		def = a.engine.DefaultResearchWorkflow()
	case isDefinitionFile(ref):
		def, err = a.loader.LoadWorkflowFile(ref)
	default:
		def, err = a.loader.LoadWorkflow(ref)
		if errors.Is(err, declarative.ErrDefinitionNotFound) {
			builtin, ok := workflow.Builtin(ref)
			if !ok {
				return workflow.Definition{}, fmt.Errorf("workflow %q: %w", ref, err)
			}
			def, err = builtin, nil
		}
	}
	if err != nil {
		return workflow.Definition{}, err
	}
	return withLoopDefaults(def, a.cfg.Engine.DefaultMaxIterations), nil
}

func isDefinitionFile(ref string) bool {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".yaml", ".yml", ".json":
	default:
		return false
	}
	info, err := os.Stat(ref)
	return err == nil && !info.IsDir()
}

// withLoopDefaults 为未设置 maxIterations 的循环工作流（含嵌套）填入默认值，
// 返回副本，不修改 def
func withLoopDefaults(def workflow.Definition, maxIterations int) workflow.Definition {
	if maxIterations <= 0 {
		return def
	}
	if def.Type == workflow.TypeLoop && def.EffectiveConfig().MaxIterations <= 0 {
		cfg := def.EffectiveConfig()
		cfg.MaxIterations = maxIterations
		def.Config = &cfg
	}
	members := make([]workflow.Member, len(def.Agents))
	for i, m := range def.Agents {
		if m.Workflow != nil {
			nested := withLoopDefaults(*m.Workflow, maxIterations)
			m.Workflow = &nested
		}
		members[i] = m
	}
	def.Agents = members
	return def
}

// executionOptions 补上配置中的默认运行超时
func (a *App) executionOptions(opts workflow.ExecutionOptions) *workflow.ExecutionOptions {
	if opts.Timeout <= 0 {
		opts.Timeout = a.cfg.Engine.DefaultTimeout
	}
	return &opts
}

// Close 依次关闭会话存储、数据库连接池与遥测导出器
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.sessions != nil {
		errs = append(errs, a.sessions.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

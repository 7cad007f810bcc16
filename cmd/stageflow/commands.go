package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/stageflow/agent"
	"github.com/BaSui01/stageflow/agent/declarative"
	"github.com/BaSui01/stageflow/agent/persistence"
	"github.com/BaSui01/stageflow/config"
	"github.com/BaSui01/stageflow/workflow"
)

// ErrWorkflowIncomplete 工作流正常结束但未成功（例如人工拒绝）
var ErrWorkflowIncomplete = errors.New("workflow did not complete")

// =============================================================================
// ▶️ run 命令
// =============================================================================

type runFlags struct {
	configPath  string
	definitions string
	workflowRef string
	methodology string
	sessionID   string
	input       string
	topic       string
	approve     string
	timeout     time.Duration
}

func parseRunFlags(args []string, stderr io.Writer) (runFlags, error) {
	var f runFlags
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&f.definitions, "definitions", "", "Definitions directory")
	fs.StringVar(&f.workflowRef, "workflow", "default", "Workflow id, definition file or \"default\"")
	fs.StringVar(&f.methodology, "methodology", "", "Research methodology")
	fs.StringVar(&f.sessionID, "session", "", "Session id to resume or create")
	fs.StringVar(&f.input, "input", "", "Input passed to the first agent")
	fs.StringVar(&f.topic, "topic", "", "Research topic stored on the session")
	fs.StringVar(&f.approve, "approve", "", "Approval mode: console, queue or auto")
	fs.DurationVar(&f.timeout, "timeout", 0, "Run timeout")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.timeout < 0 {
		return f, fmt.Errorf("timeout must not be negative")
	}
	return f, nil
}

// apply 把命令行参数覆盖到配置上
func (f runFlags) apply(cfg *config.Config) error {
	if f.definitions != "" {
		cfg.Engine.DefinitionsDir = f.definitions
	}
	if f.approve != "" {
		cfg.HITL.Mode = f.approve
	}
	return cfg.Validate()
}

func runWorkflow(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	f, err := parseRunFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}
	if err := f.apply(cfg); err != nil {
		return err
	}
	if cfg.HITL.Mode == config.HITLModeQueue {
		return fmt.Errorf("approval mode %q needs the API server, use 'stageflow serve'", cfg.HITL.Mode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg, appDeps{stdin: stdin, stdout: stderr})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(context.Background()); cerr != nil {
			app.logger.Warn("close failed", zap.Error(cerr))
		}
	}()

	return app.runOnce(ctx, f, stdout)
}

// runOnce 执行一次工作流并把结果以 JSON 写到 out
func (a *App) runOnce(ctx context.Context, f runFlags, out io.Writer) error {
	def, err := a.resolveDefinition(f.workflowRef, f.methodology)
	if err != nil {
		return err
	}

	topic := f.topic
	if topic == "" {
		topic = f.input
	}
	var input any
	if f.input != "" {
		input = f.input
	}

	res, err := a.engine.ExecuteWorkflow(ctx, def, input, a.executionOptions(workflow.ExecutionOptions{
		SessionID:     f.sessionID,
		Timeout:       f.timeout,
		ResearchTopic: topic,
	}))
	if res != nil {
		if werr := writeJSON(out, res); werr != nil {
			err = errors.Join(err, werr)
		}
	}
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%w: %s", ErrWorkflowIncomplete, res.Reason)
	}
	return nil
}

// =============================================================================
// 💾 sessions 命令
// =============================================================================

func runSessions(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return fmt.Errorf("usage: stageflow sessions list|show <id>|delete <id>")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	app, err := newApp(cfg, appDeps{stdout: stderr})
	if err != nil {
		return err
	}
	defer app.Close(context.Background())
	return sessionCommand(context.Background(), app.sessions, rest, stdout)
}

func sessionCommand(ctx context.Context, sessions *persistence.Manager, args []string, stdout io.Writer) error {
	switch args[0] {
	case "list":
		ids, err := sessions.ListSessions(ctx)
		if err != nil {
			return err
		}
		slices.Sort(ids)
		for _, id := range ids {
			fmt.Fprintln(stdout, id)
		}
		return nil
	case "show":
		if len(args) < 2 {
			return fmt.Errorf("usage: stageflow sessions show <id>")
		}
		snap, err := sessions.Store().Load(ctx, args[1])
		if err != nil {
			return err
		}
		if snap == nil {
			return fmt.Errorf("%w: %s", persistence.ErrNotFound, args[1])
		}
		return writeJSON(stdout, snap)
	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("usage: stageflow sessions delete <id>")
		}
		if err := sessions.DeleteSession(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "deleted %s\n", args[1])
		return nil
	default:
		return fmt.Errorf("unknown sessions subcommand %q", args[0])
	}
}

// =============================================================================
// ✅ validate 命令
// =============================================================================

// runValidate 校验定义目录：所有 agent 文件可解析，所有工作流可以针对
// 已加载的 agent 构建
func runValidate(args []string, stdout io.Writer) error {
	dir := "./config"
	if len(args) > 0 {
		dir = args[0]
	}

	loader := declarative.NewLoader(dir, zap.NewNop())
	if !loader.DirExists() {
		return fmt.Errorf("definitions directory %s does not exist", dir)
	}

	var errs []error
	loaded, err := loader.LoadAllAgents()
	if err != nil {
		errs = append(errs, err)
	}

	reg := agent.NewRegistry(zap.NewNop())
	configs := researchAgentConfigs()
	for _, cfg := range loaded {
		configs = append(configs, cfg)
	}
	if err := loader.Factory().Instantiate(reg, configs, templateFactory(nil)); err != nil {
		errs = append(errs, err)
	}
	engine := workflow.NewEngine(nil, reg, nil, zap.NewNop())

	ids, err := loader.WorkflowIDs()
	if err != nil {
		errs = append(errs, err)
	}
	for _, id := range ids {
		def, err := loader.LoadWorkflow(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := engine.BuildWorkflow(def); err != nil {
			errs = append(errs, fmt.Errorf("workflow %s: %w", id, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	fmt.Fprintf(stdout, "OK: %d agents, %d workflows\n", len(loaded), len(ids))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

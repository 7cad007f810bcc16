// =============================================================================
// stageflow 主入口
// =============================================================================
// 使用方法:
//
//	stageflow run --workflow default --input "topic"   # 运行工作流
//	stageflow run --methodology meta-analysis           # 按研究方法选择流程
//	stageflow sessions list|show <id>|delete <id>       # 会话管理
//	stageflow validate ./config                         # 校验定义目录
//	stageflow serve --config config.yaml                # 启动审批 API 服务
//	stageflow health --addr http://localhost:8080       # 健康检查
//	stageflow version                                   # 显示版本信息
// =============================================================================

package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/stageflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run 分发子命令并返回进程退出码
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	var err error
	switch args[0] {
	case "run":
		err = runWorkflow(args[1:], stdin, stdout, stderr)
	case "sessions":
		err = runSessions(args[1:], stdout, stderr)
	case "validate":
		err = runValidate(args[1:], stdout)
	case "serve":
		err = runServe(args[1:], stderr)
	case "health":
		err = runHealthCheck(args[1:], stdout)
	case "version":
		printVersion(stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig 加载配置：默认值 → YAML → 环境变量 → 校验
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/ready")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	fmt.Fprintln(stdout, "OK")
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "stageflow %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `stageflow - declarative multi-stage agent workflows

Usage:
  stageflow <command> [options]

Commands:
  run        Execute a workflow against a session
  sessions   List, show or delete persisted sessions
  validate   Validate agent and workflow definition files
  serve      Start the HTTP API (runs, approvals, sessions)
  health     Check a running server
  version    Show version information
  help       Show this help message

Options for 'run':
  --config <path>        Configuration file (YAML)
  --definitions <dir>    Definitions directory (agents/, workflows/)
  --workflow <id|file>   Workflow id, definition file or "default"
  --methodology <name>   Select a built-in workflow by research methodology
  --session <id>         Resume or create this session
  --topic <text>         Research topic stored on the session
  --input <text>         Input passed to the first agent
  --approve <mode>       console | queue | auto
  --timeout <duration>   Run timeout, e.g. 10m

Examples:
  stageflow run --input "sleep and memory consolidation"
  stageflow run --methodology systematic-review --approve auto
  stageflow sessions show 3f2c...
  stageflow validate ./config
  stageflow serve --config /etc/stageflow/config.yaml`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// =============================================================================
// DocFlow 主入口
// =============================================================================
// 速率受控的 LLM 客户端 + 持久化内容寻址响应缓存的命令行入口
//
// 使用方法:
//
//	docflow ask "Summarize this letter ..."       # 单次补全（带缓存）
//	docflow ask --config config.yaml "..."        # 指定配置文件
//	docflow batch prompts.txt                     # 每行一个 prompt 走批量路径
//	docflow cachestats                            # 查看缓存统计
//	docflow version                               # 显示版本信息
// =============================================================================

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/docflow"
	"github.com/BaSui01/docflow/config"
	"github.com/BaSui01/docflow/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ask":
		runAsk(os.Args[2:])
	case "batch":
		runBatch(os.Args[2:])
	case "cachestats":
		runCacheStats(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 💬 ask 命令
// =============================================================================

func runAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: docflow ask [--config config.yaml] <prompt>")
		os.Exit(1)
	}
	prompt := fs.Arg(0)

	svc, logger, providers := mustService(*configPath)
	defer shutdown(svc, logger, providers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp, err := svc.Ask(ctx, prompt)
	if err != nil {
		logger.Error("completion failed", zap.Error(err))
		os.Exit(1)
	}

	fmt.Println(resp.Content)
	logger.Info("completion done",
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
}

// =============================================================================
// 📚 batch 命令
// =============================================================================

func runBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: docflow batch [--config config.yaml] <prompts-file>")
		os.Exit(1)
	}

	prompts, err := readPrompts(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read prompts: %v\n", err)
		os.Exit(1)
	}
	if len(prompts) == 0 {
		fmt.Fprintln(os.Stderr, "No prompts found in file")
		os.Exit(1)
	}

	svc, logger, providers := mustService(*configPath)
	defer shutdown(svc, logger, providers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := svc.AskBatch(ctx, prompts)
	if err != nil {
		logger.Error("batch failed", zap.Error(err))
		os.Exit(1)
	}

	failed := 0
	for i, resp := range results {
		if resp == nil {
			failed++
			fmt.Printf("--- [%d] FAILED ---\n", i)
			continue
		}
		fmt.Printf("--- [%d] ---\n%s\n", i, resp.Content)
	}
	logger.Info("batch done",
		zap.Int("total", len(results)),
		zap.Int("failed", failed),
	)
	if failed > 0 {
		os.Exit(2)
	}
}

// =============================================================================
// 💾 cachestats 命令
// =============================================================================

func runCacheStats(args []string) {
	fs := flag.NewFlagSet("cachestats", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	svc, logger, providers := mustService(*configPath)
	defer shutdown(svc, logger, providers)

	if err := svc.Cache().Init(context.Background()); err != nil {
		logger.Error("cache init failed", zap.Error(err))
		os.Exit(1)
	}

	stats := svc.Cache().Stats()
	fmt.Printf("entries:    %d\n", stats.Entries)
	fmt.Printf("hits:       %d\n", stats.Hits)
	fmt.Printf("misses:     %d\n", stats.Misses)
	fmt.Printf("evictions:  %d\n", stats.Evictions)
	fmt.Printf("expired:    %d\n", stats.Expired)
	fmt.Printf("total size: %d bytes\n", stats.TotalSize)
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// mustService 装配服务，失败直接退出。
func mustService(configPath string) (*docflow.Service, *zap.Logger, *telemetry.Providers) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := config.BuildLogger(cfg.Log)

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		providers = nil
	}

	var tracker *telemetry.Collector
	if cfg.Telemetry.Enabled {
		tracker = telemetry.NewCollector("docflow", nil, logger)
	}

	opts := []docflow.Option{
		docflow.WithConfig(cfg),
		docflow.WithLogger(logger),
	}
	if tracker != nil {
		opts = append(opts, docflow.WithTracker(tracker))
	}

	svc, err := docflow.New(opts...)
	if err != nil {
		logger.Error("failed to assemble service", zap.Error(err))
		os.Exit(1)
	}
	return svc, logger, providers
}

func shutdown(svc *docflow.Service, logger *zap.Logger, providers *telemetry.Providers) {
	if err := svc.Close(); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	if err := providers.Shutdown(context.Background()); err != nil {
		logger.Warn("telemetry shutdown incomplete", zap.Error(err))
	}
	_ = logger.Sync()
}

func readPrompts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var prompts []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		prompts = append(prompts, line)
	}
	return prompts, scanner.Err()
}

func printVersion() {
	fmt.Printf("DocFlow %s\n", Version)
	fmt.Printf("  build time: %s\n", BuildTime)
	fmt.Printf("  git commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`DocFlow - rate-limited LLM client with persistent response cache

Usage:
  docflow <command> [options]

Commands:
  ask         Run a single cached completion
  batch       Run a file of prompts through the batch path
  cachestats  Show response cache statistics
  version     Show version information
  help        Show this help

Examples:
  docflow ask "Extract metadata from this engagement letter ..."
  docflow ask --config /etc/docflow/config.yaml "Summarize ..."
  docflow batch prompts.txt
  docflow cachestats`)
}

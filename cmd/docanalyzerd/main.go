// Package main 文档分析器的命令行入口
// 提供 analyze / detect / version 三个子命令
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"docAnalyzer/internal/analyzer"
	"docAnalyzer/internal/cache"
	"docAnalyzer/internal/config"
	"docAnalyzer/internal/detector"
	"docAnalyzer/internal/extractor"
	"docAnalyzer/internal/logger"
	"docAnalyzer/internal/orchestrator"
)

// ==========================================
// 全局变量和配置
// ==========================================

var (
	// 版本信息
	version = "1.0.0"
	appName = "docanalyzerd"

	// 命令行参数
	configPath    string
	keyword       string
	caseSensitive bool
	noPatterns    bool
	noCache       bool

	// 颜色输出
	colorRed    = color.New(color.FgRed, color.Bold)
	colorGreen  = color.New(color.FgGreen, color.Bold)
	colorYellow = color.New(color.FgYellow)
	colorCyan   = color.New(color.FgCyan)
	colorWhite  = color.New(color.FgWhite)
)

// ==========================================
// 主入口
// ==========================================

func main() {
	if err := rootCmd.Execute(); err != nil {
		colorRed.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// ==========================================
// 根命令
// ==========================================

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "多格式文档内容提取与分析工具",
	Long: `多格式文档内容提取与分析工具。

支持 PDF / DOCX / HWP / 纯文本 四种格式：
  - 自动格式识别（魔数优先，扩展名兜底）
  - 文本提取与按页切分
  - 关键词定位与敏感信息模式扫描
  - 结果缓存（文件变更自动失效）

示例:
  # 分析单个文件并查找关键词
  docanalyzerd analyze report.pdf --keyword 机密

  # 分析整个目录
  docanalyzerd analyze ./documents/

  # 只做格式识别
  docanalyzerd detect unknown.bin
`,
	Version: version,
}

// ==========================================
// analyze 命令
// ==========================================

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path...]",
	Short: "提取并分析一个或多个文档",
	Long: `提交文档给任务编排器执行提取与分析。

参数可以是文件，也可以是目录（递归遍历，跳过不支持的格式）。
按 Ctrl+C 可取消所有未完成的任务。`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if err := setupRuntime(); err != nil {
		return err
	}
	cfg := config.Get()

	// 收集目标文件
	targets, err := collectTargets(args)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no files found under: %s", strings.Join(args, ", "))
	}
	colorCyan.Printf("📁 待分析文件: %d 个\n", len(targets))

	// 构建缓存与编排器
	c, closeCache, err := buildCache(cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	o := orchestrator.New(orchestrator.OptionsFromConfig(cfg), extractor.DefaultRegistry(), c)
	defer o.Close()

	// 命令行未显式指定时，大小写敏感度跟随配置文件
	if !cmd.Flags().Changed("case-sensitive") {
		caseSensitive = cfg.Analyzer.CaseSensitive
	}

	opts := analyzer.Options{
		Keyword:       keyword,
		CaseSensitive: caseSensitive,
		ContextRadius: cfg.Analyzer.ContextRadius,
	}
	if !noPatterns {
		opts.Patterns = analyzer.BuiltinPatterns()
	}

	// 提交全部任务
	ids := make([]string, 0, len(targets))
	for _, path := range targets {
		id, err := o.Submit(path, opts)
		if err != nil {
			colorYellow.Printf("⚠️  提交失败 %s: %v\n", path, err)
			continue
		}
		ids = append(ids, id)
	}

	// Ctrl+C 时取消所有未完成任务
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		colorYellow.Println("\n🛑 收到停止信号，正在取消未完成任务...")
		for _, id := range ids {
			o.Cancel(id)
		}
	}()

	// 逐个等待结果
	failed := 0
	for _, id := range ids {
		ch, err := o.Subscribe(id)
		if err != nil {
			failed++
			continue
		}
		for snap := range ch {
			if !snap.State.Terminal() {
				continue
			}
			printOutcome(snap)
			if snap.State == orchestrator.StateFailed {
				failed++
			}
		}
	}

	printSeparator()
	if failed > 0 {
		colorYellow.Printf("完成: %d 成功, %d 失败\n", len(ids)-failed, failed)
		return fmt.Errorf("%d file(s) failed", failed)
	}
	colorGreen.Printf("✅ 全部完成: %d 个文件\n", len(ids))
	return nil
}

// printOutcome 打印单个任务的终态结果
func printOutcome(snap orchestrator.Snapshot) {
	printSeparator()
	switch snap.State {
	case orchestrator.StateSucceeded:
		r := snap.Result
		colorGreen.Printf("✅ %s\n", snap.Path)
		colorWhite.Printf("   格式     : %s\n", r.Format)
		colorWhite.Printf("   页数     : %d\n", r.PageCount)
		colorWhite.Printf("   字数     : %d (字符 %d)\n", r.WordCount, r.CharCount)

		if keyword != "" {
			if len(r.KeywordMatches) == 0 {
				colorWhite.Printf("   关键词   : %q 未命中\n", keyword)
			} else {
				colorYellow.Printf("   关键词   : %q 命中 %d 次\n", keyword, len(r.KeywordMatches))
				for _, m := range r.KeywordMatches {
					fmt.Printf("              第 %d 页, 偏移 %d\n", m.Page, m.Offset)
				}
			}
		}

		for _, pm := range r.PatternMatches {
			colorRed.Printf("   🔍 [%s] 第 %d 页: %s\n", pm.Pattern, pm.Page, pm.Value)
			fmt.Printf("      ...%s...\n", pm.Context)
		}

	case orchestrator.StateCancelled:
		colorYellow.Printf("🚫 %s: 已取消\n", snap.Path)

	case orchestrator.StateFailed:
		colorRed.Printf("❌ %s\n", snap.Path)
		colorRed.Printf("   错误: %v\n", snap.Err)
		if kind := extractor.ErrorKindOf(snap.Err); kind != "" {
			colorWhite.Printf("   类别: %s\n", kind)
		}
	}
}

// collectTargets 展开参数中的目录，返回实际文件列表
func collectTargets(args []string) ([]string, error) {
	var targets []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			targets = append(targets, arg)
			continue
		}
		err = filepath.Walk(arg, func(path string, fi os.FileInfo, err error) error {
			if err != nil || fi.IsDir() {
				return nil
			}
			targets = append(targets, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return targets, nil
}

// ==========================================
// detect 命令
// ==========================================

var detectCmd = &cobra.Command{
	Use:   "detect [path...]",
	Short: "只做格式识别，不提取内容",
	Long: `读取文件头做格式识别并打印结果。

魔数优先于扩展名：改了后缀的文件会按真实格式识别。`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDetect,
}

func runDetect(cmd *cobra.Command, args []string) error {
	unknown := 0
	for _, path := range args {
		format, err := detector.Detect(path)
		if err != nil {
			unknown++
			colorYellow.Printf("❓ %-40s %v\n", path, err)
			continue
		}
		colorGreen.Printf("✅ %-40s %s\n", path, format)
	}
	if unknown > 0 {
		return fmt.Errorf("%d file(s) not recognized", unknown)
	}
	return nil
}

// ==========================================
// version 命令
// ==========================================

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "打印版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", appName, version)
	},
}

// ==========================================
// 基础设施初始化
// ==========================================

// setupRuntime 加载配置并初始化日志
func setupRuntime() error {
	if err := config.LoadConfig(configPath); err != nil {
		return fmt.Errorf("加载配置文件失败: %w", err)
	}
	cfg := config.Get()

	if err := logger.Setup(logger.Options{
		Level:    cfg.Agent.LogLevel,
		FilePath: cfg.Agent.LogFile,
		Stdout:   cfg.Agent.LogStdout,
	}); err != nil {
		return fmt.Errorf("日志系统初始化失败: %w", err)
	}
	return nil
}

// buildCache 按配置构建结果缓存，返回缓存实例和清理函数
func buildCache(cfg *config.AppConfig) (*cache.Cache, func(), error) {
	noop := func() {}

	if noCache || !cfg.Cache.Enable {
		return nil, noop, nil
	}
	if !cfg.Cache.Persist {
		return cache.New(cfg.Cache.MemoryLimit), noop, nil
	}

	store, err := cache.NewStore(cache.StoreOptions{
		DataDir:         cfg.Agent.DataDir,
		FileName:        cfg.Database.FileName,
		LogLevel:        cfg.Database.LogLevel,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		JournalMode:     cfg.Database.JournalMode,
		Synchronous:     cfg.Database.Synchronous,
		TempStore:       cfg.Database.TempStore,
		ForeignKeys:     cfg.Database.ForeignKeys,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("缓存持久化初始化失败: %w", err)
	}

	c, err := cache.NewWithStore(cfg.Cache.MemoryLimit, store)
	if err != nil {
		store.Close()
		return nil, noop, err
	}
	return c, func() { store.Close() }, nil
}

// printSeparator 打印分隔线
func printSeparator() {
	colorWhite.Println("────────────────────────────────────────────────────────────")
}

// ==========================================
// 初始化
// ==========================================

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径 (默认在 ~/.config/docAnalyzer 和当前目录搜索)")

	analyzeCmd.Flags().StringVarP(&keyword, "keyword", "k", "", "要查找的关键词")
	analyzeCmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "关键词匹配区分大小写")
	analyzeCmd.Flags().BoolVar(&noPatterns, "no-patterns", false, "跳过内置敏感信息模式扫描")
	analyzeCmd.Flags().BoolVar(&noCache, "no-cache", false, "禁用结果缓存")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(versionCmd)
}

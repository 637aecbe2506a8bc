// Package main 格式识别与提取模块的集成调试工具
// 对目录树批量执行格式识别，可选做完整提取，用于排查识别与解析问题
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"docAnalyzer/internal/detector"
	"docAnalyzer/internal/extractor"
	"docAnalyzer/internal/model"
)

// ==========================================
// 命令行参数
// ==========================================

var (
	targetPath string
	recursive  bool

	doExtract bool
	showText  bool

	workers     int
	timeout     int
	maxFileSize int64

	outputFile   string
	outputFormat string
	verbose      bool
	quiet        bool
	showProgress bool

	showHelp    bool
	showVersion bool
)

const (
	toolName    = "detector-debug"
	toolVersion = "1.0.0"
)

func init() {
	flag.StringVar(&targetPath, "path", "", "扫描目标路径")
	flag.StringVar(&targetPath, "p", "", "扫描目标路径（简写）")
	flag.BoolVar(&recursive, "recursive", true, "递归扫描")
	flag.BoolVar(&recursive, "r", true, "递归扫描（简写）")

	flag.BoolVar(&doExtract, "extract", false, "识别后继续做完整文本提取")
	flag.BoolVar(&doExtract, "e", false, "识别后继续做完整文本提取（简写）")
	flag.BoolVar(&showText, "show-text", false, "打印提取出的文本开头（需配合 --extract）")

	flag.IntVar(&workers, "workers", 0, "并发工作数")
	flag.IntVar(&workers, "w", 0, "并发工作数（简写）")
	flag.IntVar(&timeout, "timeout", 30, "单文件超时（秒）")
	flag.Int64Var(&maxFileSize, "max-size", 100, "最大文件大小（MB）")

	flag.StringVar(&outputFile, "output", "", "输出文件路径")
	flag.StringVar(&outputFile, "o", "", "输出文件路径（简写）")
	flag.StringVar(&outputFormat, "format", "text", "输出格式")
	flag.BoolVar(&verbose, "verbose", false, "详细输出")
	flag.BoolVar(&verbose, "v", false, "详细输出（简写）")
	flag.BoolVar(&quiet, "quiet", false, "静默模式")
	flag.BoolVar(&quiet, "q", false, "静默模式（简写）")
	flag.BoolVar(&showProgress, "progress", true, "显示进度")

	flag.BoolVar(&showHelp, "help", false, "帮助")
	flag.BoolVar(&showHelp, "h", false, "帮助（简写）")
	flag.BoolVar(&showVersion, "version", false, "版本")
}

// ==========================================
// 数据结构
// ==========================================

type ScanResult struct {
	FilePath  string        `json:"file_path"`
	FileName  string        `json:"file_name"`
	FileSize  int64         `json:"file_size"`
	Format    string        `json:"format,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	PageCount int           `json:"page_count,omitempty"`
	CharCount int           `json:"char_count,omitempty"`
	Encoding  string        `json:"encoding,omitempty"`
	Uncertain bool          `json:"encoding_uncertain,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Preview   string        `json:"preview,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}

type ScanSummary struct {
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time"`
	Duration       time.Duration  `json:"duration_ns"`
	TotalFiles     int64          `json:"total_files"`
	ScannedFiles   int64          `json:"scanned_files"`
	Recognized     int64          `json:"recognized_files"`
	ErrorFiles     int64          `json:"error_files"`
	TotalSize      int64          `json:"total_size_bytes"`
	FormatCounts   map[string]int `json:"format_counts"`
	ExtractEnabled bool           `json:"extract_enabled"`
	Results        []ScanResult   `json:"results,omitempty"`
}

// ==========================================
// 主函数
// ==========================================

func main() {
	flag.Parse()

	if showHelp {
		printHelp()
		return
	}

	if showVersion {
		fmt.Printf("%s version %s\n", toolName, toolVersion)
		return
	}

	if targetPath == "" {
		fmt.Fprintln(os.Stderr, "错误: 必须指定 -p 参数")
		fmt.Fprintln(os.Stderr, "使用 -h 查看帮助")
		os.Exit(1)
	}

	if _, err := os.Stat(targetPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "错误: 路径不存在: %s\n", targetPath)
		os.Exit(1)
	}

	if !quiet {
		printBanner()
	}

	files := collectFiles(targetPath)
	if len(files) == 0 {
		fmt.Println("没有找到待扫描的文件")
		return
	}

	if !quiet {
		fmt.Printf("共发现 %d 个文件待扫描\n", len(files))
	}

	summary := runScan(extractor.DefaultRegistry(), files)

	outputResults(summary)
}

// ==========================================
// 初始化
// ==========================================

func printBanner() {
	fmt.Println(`
+======================================================================+
|                  格式识别与提取模块集成调试工具                        |
|                       detector-debug v1.0.0                          |
+======================================================================+`)
}

// ==========================================
// 文件收集
// ==========================================

func collectFiles(path string) []string {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}

	if !info.IsDir() {
		return []string{path}
	}

	var files []string
	filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			if info != nil && info.IsDir() && !recursive && p != path {
				return filepath.SkipDir
			}
			return nil
		}

		if maxFileSize > 0 && info.Size() > maxFileSize*1024*1024 {
			if verbose {
				fmt.Printf("  跳过大文件: %s\n", p)
			}
			return nil
		}

		files = append(files, p)
		return nil
	})

	return files
}

// ==========================================
// 扫描执行
// ==========================================

func runScan(registry *extractor.Registry, files []string) *ScanSummary {
	summary := &ScanSummary{
		StartTime:      time.Now(),
		TotalFiles:     int64(len(files)),
		Results:        make([]ScanResult, 0),
		FormatCounts:   make(map[string]int),
		ExtractEnabled: doExtract,
	}

	numWorkers := workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	if !quiet {
		fmt.Printf("\n[1] 开始扫描 (并发数: %d, 提取: %v)\n", numWorkers, doExtract)
		fmt.Println(strings.Repeat("=", 70))
	}

	taskChan := make(chan string, numWorkers*2)
	resultChan := make(chan ScanResult, numWorkers*2)

	var scanned, recognized int64

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for filePath := range taskChan {
				resultChan <- scanFile(registry, filePath)
			}
		}()
	}

	var resultWg sync.WaitGroup
	var mu sync.Mutex
	resultWg.Add(1)
	go func() {
		defer resultWg.Done()
		for result := range resultChan {
			atomic.AddInt64(&scanned, 1)
			atomic.AddInt64(&summary.TotalSize, result.FileSize)

			if result.Error != "" {
				atomic.AddInt64(&summary.ErrorFiles, 1)
			} else if result.Format != "" {
				atomic.AddInt64(&recognized, 1)
			}

			mu.Lock()
			summary.Results = append(summary.Results, result)
			if result.Format != "" {
				summary.FormatCounts[result.Format]++
			}
			mu.Unlock()

			if result.Format != "" {
				printRecognized(result)
			} else if result.Error != "" && verbose {
				fmt.Printf("  [错误] %s: %s\n", result.FileName, result.Error)
			} else if verbose {
				fmt.Printf("  [未识别] %s (%s)\n", result.FileName, result.Reason)
			}

			if showProgress && !quiet {
				cur := atomic.LoadInt64(&scanned)
				if cur%20 == 0 || cur == int64(len(files)) {
					fmt.Printf("\r进度: %d/%d (识别: %d)", cur, len(files), atomic.LoadInt64(&recognized))
				}
			}
		}
	}()

	for _, f := range files {
		taskChan <- f
	}
	close(taskChan)

	wg.Wait()
	close(resultChan)
	resultWg.Wait()

	summary.EndTime = time.Now()
	summary.Duration = summary.EndTime.Sub(summary.StartTime)
	summary.ScannedFiles = scanned
	summary.Recognized = recognized

	if showProgress && !quiet {
		fmt.Println()
	}

	return summary
}

func scanFile(registry *extractor.Registry, filePath string) ScanResult {
	start := time.Now()

	info, err := os.Stat(filePath)
	if err != nil {
		return ScanResult{
			FilePath: filePath,
			FileName: filepath.Base(filePath),
			Error:    err.Error(),
			Duration: time.Since(start),
		}
	}

	result := ScanResult{
		FilePath: filePath,
		FileName: info.Name(),
		FileSize: info.Size(),
	}

	// 第一步：格式识别
	format, err := detector.Detect(filePath)
	if err != nil {
		var ufe *detector.UnsupportedFormatError
		if errors.As(err, &ufe) {
			result.Reason = string(ufe.Reason)
		} else {
			result.Error = err.Error()
		}
		result.Duration = time.Since(start)
		return result
	}
	result.Format = format.String()

	if !doExtract {
		result.Duration = time.Since(start)
		return result
	}

	// 第二步：完整提取
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	doc, err := registry.ExtractFile(ctx, filePath)
	result.Duration = time.Since(start)

	if err != nil {
		result.Error = err.Error()
		if kind := extractor.ErrorKindOf(err); kind != "" {
			result.ErrorKind = string(kind)
		}
		return result
	}

	result.PageCount = doc.PageCount()
	result.CharCount = len(doc.Text())
	result.Encoding = doc.Metadata[model.MetaEncoding]
	result.Uncertain = doc.EncodingUncertain()

	if showText {
		result.Preview = truncate(strings.TrimSpace(doc.Text()), 120)
	}

	return result
}

// ==========================================
// 输出
// ==========================================

func printRecognized(r ScanResult) {
	if quiet {
		fmt.Printf("%s\t%s\n", r.Format, r.FilePath)
		return
	}

	fmt.Printf("\n  [%s] %s\n", r.Format, r.FilePath)
	if r.PageCount > 0 {
		fmt.Printf("         页数: %d | 字符: %d\n", r.PageCount, r.CharCount)
	}
	if r.Encoding != "" {
		uncertainMark := ""
		if r.Uncertain {
			uncertainMark = " (不确定)"
		}
		fmt.Printf("         编码: %s%s\n", r.Encoding, uncertainMark)
	}
	if r.ErrorKind != "" {
		fmt.Printf("         提取失败: [%s] %s\n", r.ErrorKind, r.Error)
	}
	if r.Preview != "" {
		fmt.Printf("         预览: %s\n", r.Preview)
	}
	fmt.Printf("         大小: %s | 耗时: %v\n", formatSize(r.FileSize), r.Duration)
}

func outputResults(summary *ScanSummary) {
	if !quiet {
		fmt.Println()
		fmt.Println(strings.Repeat("=", 70))
		fmt.Println("[2] 扫描统计报告")
		fmt.Println(strings.Repeat("-", 40))
		fmt.Printf("  扫描耗时:       %v\n", summary.Duration)
		fmt.Printf("  文件总数:       %d\n", summary.TotalFiles)
		fmt.Printf("  已扫描:         %d\n", summary.ScannedFiles)
		fmt.Printf("  识别成功:       %d\n", summary.Recognized)
		fmt.Printf("  错误数:         %d\n", summary.ErrorFiles)
		fmt.Printf("  扫描总大小:     %s\n", formatSize(summary.TotalSize))

		if summary.Duration.Seconds() > 0 {
			speed := float64(summary.TotalSize) / summary.Duration.Seconds() / 1024 / 1024
			fmt.Printf("  扫描速度:       %.2f MB/s\n", speed)
		}

		fmt.Println()
		fmt.Println("  各格式文件数:")
		if len(summary.FormatCounts) == 0 {
			fmt.Println("    (无)")
		}
		for name, count := range summary.FormatCounts {
			fmt.Printf("    - %-12s %d\n", name, count)
		}

		fmt.Println()
		fmt.Println(strings.Repeat("=", 70))
	}

	if outputFile != "" {
		saveOutput(summary)
	}
}

func saveOutput(summary *ScanSummary) {
	var data []byte
	var err error

	if outputFormat == "json" {
		data, err = json.MarshalIndent(summary, "", "  ")
	} else {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("扫描报告 - %s\n\n", summary.EndTime.Format("2006-01-02 15:04:05")))
		sb.WriteString(fmt.Sprintf("总文件: %d, 识别: %d, 错误: %d\n\n",
			summary.TotalFiles, summary.Recognized, summary.ErrorFiles))
		for _, r := range summary.Results {
			if r.Format != "" {
				sb.WriteString(fmt.Sprintf("[%s] %s (页数: %d)\n", r.Format, r.FilePath, r.PageCount))
			} else {
				sb.WriteString(fmt.Sprintf("[未识别:%s] %s\n", r.Reason, r.FilePath))
			}
		}
		data = []byte(sb.String())
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "生成输出失败: %v\n", err)
		return
	}

	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "保存失败: %v\n", err)
	} else if !quiet {
		fmt.Printf("结果已保存: %s\n", outputFile)
	}
}

// ==========================================
// 工具函数
// ==========================================

func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case size >= GB:
		return fmt.Sprintf("%.2f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.2f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.2f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d B", size)
	}
}

// truncate 截断到 n 字节以内，回退到最近的字符边界避免截出半个字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func printHelp() {
	fmt.Printf(`%s v%s - 格式识别与提取模块集成调试工具

用法:
  %s -p <路径> [选项]

扫描目标:
  -p, --path <路径>      扫描目标路径 [必需]
  -r, --recursive        递归扫描 (默认: true)

提取:
  -e, --extract          识别后继续做完整文本提取
      --show-text        打印提取文本的开头（需配合 --extract）

运行配置:
  -w, --workers          并发数 (默认: CPU核心数)
      --timeout          单文件超时秒数 (默认: 30)
      --max-size         最大文件MB (默认: 100)

输出:
  -o, --output           输出文件
      --format           格式: text, json (默认: text)
  -v, --verbose          详细输出
  -q, --quiet            静默模式

示例:
  # 只做格式识别
  %s -p ./test_files -v

  # 识别并提取，打印文本预览
  %s -p ./test_files -e --show-text

  # 结果保存为 JSON
  %s -p ./test_files -e -o report.json --format json

`, toolName, toolVersion, toolName, toolName, toolName, toolName)
}

package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// GlobalConfig 全局配置单例
// 在调用 LoadConfig 成功后，该变量会被填充，后续模块直接读取即可
var (
	GlobalConfig *AppConfig
	loadOnce     sync.Once
)

// LoadConfig 加载配置
// configPath: 配置文件路径 (e.g., "~/.config/docAnalyzer/config.yaml")
// 如果传入空字符串，Viper 会尝试在默认路径搜索；搜索不到时退回纯默认值，
// 桌面工具不像服务端那样强制要求配置文件存在
func LoadConfig(configPath string) error {
	var err error

	loadOnce.Do(func() {
		v := viper.New()

		// 1. 设置默认值 (兜底策略)
		setDefaults(v)

		// 2. 配置读取规则
		if configPath != "" {
			// 如果指定了具体文件，直接读取
			v.SetConfigFile(configPath)
		} else {
			// 否则在常见目录搜索名为 "config" 的文件
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("$HOME/.config/docAnalyzer/")
			v.AddConfigPath(".") // 当前目录 (开发调试用)
		}

		// 3. 配置环境变量覆盖
		// 允许通过环境变量 DA_ORCHESTRATOR_WORKERS 来覆盖 orchestrator.workers
		v.SetEnvPrefix("DA")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		// 4. 读取配置文件
		if readErr := v.ReadInConfig(); readErr != nil {
			if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
				// 文件存在但读不了 (语法错误等) 必须报错
				err = fmt.Errorf("failed to read config file: %v", readErr)
				return
			}
			// 未找到配置文件：用默认值继续跑
		}

		// 5. 反序列化到结构体
		var config AppConfig
		if err = v.Unmarshal(&config); err != nil {
			err = fmt.Errorf("failed to unmarshal config: %v", err)
			return
		}

		// 6. 赋值给全局单例
		GlobalConfig = &config
	})

	return err
}

// setDefaults 定义配置文件的“默认行为”
func setDefaults(v *viper.Viper) {
	// Agent 基础
	v.SetDefault("agent.log_level", "info")
	v.SetDefault("agent.log_file", "")
	v.SetDefault("agent.log_stdout", true)
	v.SetDefault("agent.data_dir", "$HOME/.local/share/docAnalyzer")

	// Orchestrator 任务编排 (保守默认值)
	v.SetDefault("orchestrator.workers", 4)
	v.SetDefault("orchestrator.queue_size", 256)
	v.SetDefault("orchestrator.event_buffer", 16)

	// Extractor 提取策略
	v.SetDefault("extractor.max_file_size", 0)
	v.SetDefault("extractor.sniff_size", 8192)
	v.SetDefault("extractor.timeout", "0s")

	// Analyzer 分析策略
	v.SetDefault("analyzer.case_sensitive", false)
	v.SetDefault("analyzer.context_radius", 100)

	// Cache 结果缓存
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.persist", false)
	v.SetDefault("cache.memory_limit", 1024)

	// Database 数据库配置
	v.SetDefault("database.file_name", "results.db")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.journal_mode", "WAL")
	v.SetDefault("database.synchronous", "NORMAL")
	v.SetDefault("database.temp_store", "MEMORY")
	v.SetDefault("database.foreign_keys", true)
}

// Get 获取配置的安全访问器
func Get() *AppConfig {
	if GlobalConfig == nil {
		// 防御性编程：如果没有初始化就调用，返回默认配置而不是 panic
		// (库内部的单元测试不应该依赖 LoadConfig 被调过)
		return Default()
	}
	return GlobalConfig
}

// Default 返回不依赖任何外部文件的默认配置 (测试友好)
func Default() *AppConfig {
	v := viper.New()
	setDefaults(v)
	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("default config unmarshal failed: %v", err))
	}
	return &config
}

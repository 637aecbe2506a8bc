// Package config
package config

import "time"

// ==========================================
// 顶层配置结构
// ==========================================

type AppConfig struct {
	Agent        AgentConfig        `mapstructure:"agent" yaml:"agent"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Extractor    ExtractorConfig    `mapstructure:"extractor" yaml:"extractor"`
	Analyzer     AnalyzerConfig     `mapstructure:"analyzer" yaml:"analyzer"`
	Cache        CacheConfig        `mapstructure:"cache" yaml:"cache"`
	Database     DatabaseConfig     `mapstructure:"database" yaml:"database"`
}

// ==========================================
// 1. 基础配置
// ==========================================

type AgentConfig struct {
	// 日志级别: debug, info, warn, error
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	// 日志文件路径 (空字符串表示不写文件)
	LogFile string `mapstructure:"log_file" yaml:"log_file"`
	// 是否打印到控制台
	LogStdout bool `mapstructure:"log_stdout" yaml:"log_stdout"`
	// 数据存储目录 (缓存数据库等落盘位置)
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// ==========================================
// 2. 任务编排配置
// ==========================================

type OrchestratorConfig struct {
	// 并发 Worker 数
	Workers int `mapstructure:"workers" yaml:"workers"`
	// 等待队列容量上限 (超出后 Submit 返回错误而不是阻塞)
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
	// 订阅事件通道的缓冲大小
	EventBuffer int `mapstructure:"event_buffer" yaml:"event_buffer"`
}

// ==========================================
// 3. 提取策略
// ==========================================

type ExtractorConfig struct {
	// 单文件大小上限 (字节)，0 表示不限制
	MaxFileSize int64 `mapstructure:"max_file_size" yaml:"max_file_size"`
	// 格式探测时读取的文件头字节数
	SniffSize int `mapstructure:"sniff_size" yaml:"sniff_size"`
	// 单次提取的超时时间，0 表示不限制
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ==========================================
// 4. 分析策略
// ==========================================

type AnalyzerConfig struct {
	// 关键词匹配默认是否区分大小写
	CaseSensitive bool `mapstructure:"case_sensitive" yaml:"case_sensitive"`
	// 模式匹配上下文片段的半径 (字符数)
	ContextRadius int `mapstructure:"context_radius" yaml:"context_radius"`
}

// ==========================================
// 5. 结果缓存配置
// ==========================================

type CacheConfig struct {
	// 是否启用缓存
	Enable bool `mapstructure:"enable" yaml:"enable"`
	// 是否持久化到 SQLite (false 时仅内存缓存)
	Persist bool `mapstructure:"persist" yaml:"persist"`
	// 内存缓存条目上限
	MemoryLimit int `mapstructure:"memory_limit" yaml:"memory_limit"`
}

// ==========================================
// 6. 数据库配置
// ==========================================

type DatabaseConfig struct {
	// 数据库文件名
	FileName string `mapstructure:"file_name" yaml:"file_name"`
	// GORM 日志级别: silent, error, warn, info
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	// 最大打开连接数 (SQLite 建议 1)
	MaxOpenConns int `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	// 最大空闲连接数 (SQLite 建议 1)
	MaxIdleConns int `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	// SQLite Journal 模式: WAL, DELETE, TRUNCATE, PERSIST, MEMORY
	JournalMode string `mapstructure:"journal_mode" yaml:"journal_mode"`
	// SQLite 同步模式: FULL, NORMAL, OFF
	Synchronous string `mapstructure:"synchronous" yaml:"synchronous"`
	// SQLite 临时存储: MEMORY, FILE
	TempStore string `mapstructure:"temp_store" yaml:"temp_store"`
	// 是否启用外键约束
	ForeignKeys bool `mapstructure:"foreign_keys" yaml:"foreign_keys"`
}

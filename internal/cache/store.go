package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"docAnalyzer/internal/logger"
	"docAnalyzer/internal/model"
)

// ==========================================
// 持久化存储层 (SQLite)
// ==========================================

// StoreOptions 存储层初始化选项
type StoreOptions struct {
	DataDir         string
	FileName        string
	LogLevel        string        // silent, error, warn, info
	MaxOpenConns    int           // 推荐: 1
	MaxIdleConns    int           // 推荐: 1
	ConnMaxLifetime time.Duration // 推荐: 1h
	JournalMode     string        // WAL
	Synchronous     string        // NORMAL
	TempStore       string        // MEMORY
	ForeignKeys     bool
}

// CacheRecord 缓存条目的落盘形态
// 文档本体序列化成 JSON 存一列，身份键拆开存以便直接校验
type CacheRecord struct {
	Path      string `gorm:"primaryKey;size:1024"`
	Size      int64  `gorm:"not null"`
	MTime     int64  `gorm:"not null"` // UnixNano
	Document  []byte `gorm:"not null"` // JSON
	CreatedAt time.Time
}

// TableName 指定表名
func (CacheRecord) TableName() string {
	return "cache_records"
}

// Store SQLite 持久层
type Store struct {
	db *gorm.DB
}

// NewStore 打开存储层
// SQLite 锁定单连接 + WAL，避免写竞争
func NewStore(opts StoreOptions) (*Store, error) {
	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db dir %s: %w", opts.DataDir, err)
	}
	dbPath := filepath.Join(opts.DataDir, opts.FileName)

	var gormLogLevel gormlogger.LogLevel
	switch strings.ToLower(opts.LogLevel) {
	case "silent":
		gormLogLevel = gormlogger.Silent
	case "error":
		gormLogLevel = gormlogger.Error
	case "info":
		gormLogLevel = gormlogger.Info
	default:
		gormLogLevel = gormlogger.Warn
	}

	gormConfig := &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormLogLevel),
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	}

	dbConn, err := gorm.Open(sqlite.Open(dbPath), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", dbPath, err)
	}

	sqlDB, err := dbConn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	// Foreign Keys 之类的连接级 PRAGMA 依赖 MaxOpenConns=1 才能保证只执行在唯一连接上
	pragmas := []string{
		fmt.Sprintf("PRAGMA journal_mode = %s;", orDefault(opts.JournalMode, "WAL")),
		fmt.Sprintf("PRAGMA synchronous = %s;", orDefault(opts.Synchronous, "NORMAL")),
		fmt.Sprintf("PRAGMA temp_store = %s;", orDefault(opts.TempStore, "MEMORY")),
	}
	if opts.ForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON;")
	}
	for _, p := range pragmas {
		if err := dbConn.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("failed to exec pragma %s: %w", p, err)
		}
	}

	if err := dbConn.AutoMigrate(&CacheRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate cache table: %w", err)
	}

	logger.Info("Cache store initialized", "path", dbPath)
	return &Store{db: dbConn}, nil
}

// Save 写入或覆盖一条记录
func (s *Store) Save(key Key, doc *model.Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	record := CacheRecord{
		Path:      key.Path,
		Size:      key.Size,
		MTime:     key.MTime,
		Document:  payload,
		CreatedAt: time.Now(),
	}
	return s.db.Save(&record).Error
}

// Delete 删除一条记录
func (s *Store) Delete(path string) error {
	return s.db.Delete(&CacheRecord{}, "path = ?", path).Error
}

// Reset 清空全部记录
func (s *Store) Reset() error {
	return s.db.Exec("DELETE FROM cache_records").Error
}

// LoadAll 读出全部记录
// 反序列化失败的记录当场删除，不让坏数据反复拖累启动
func (s *Store) LoadAll() ([]entry, error) {
	var records []CacheRecord
	if err := s.db.Find(&records).Error; err != nil {
		return nil, err
	}

	entries := make([]entry, 0, len(records))
	for _, r := range records {
		var doc model.Document
		if err := json.Unmarshal(r.Document, &doc); err != nil {
			logger.Warn("Dropping corrupt cache record", "path", r.Path, "error", err)
			_ = s.Delete(r.Path)
			continue
		}
		entries = append(entries, entry{
			key: Key{Path: r.Path, Size: r.Size, MTime: r.MTime},
			doc: &doc,
		})
	}
	return entries, nil
}

// Close 关闭底层连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

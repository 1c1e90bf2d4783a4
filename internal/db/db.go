package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound 表示目标记录不存在。
	ErrNotFound = errors.New("record not found")
	// ErrStoreUnavailable 表示存储尚未打开或已经关闭，与 ErrNotFound 严格区分。
	ErrStoreUnavailable = errors.New("store unavailable")
)

const (
	defaultBootstrapEmail    = "admin@example.com"
	defaultBootstrapPassword = "admin123"
)

// Store owns the embedded SQLite database. It is created with Open and must be
// released with Close; every method returns ErrStoreUnavailable outside that window.
type Store struct {
	mu  sync.RWMutex
	gdb *gorm.DB

	bootstrapEmail    string
	bootstrapPassword string
}

// Options tunes Open.
type Options struct {
	// Logger overrides the gorm logger. Defaults to silent.
	Logger logger.Interface
}

// Open 打开数据库连接并执行自动迁移。
// path 为空时将回退到默认值 contentgate.db。
func Open(path string, opts ...Options) (*Store, error) {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = "contentgate.db"
	}

	if err := ensureParentDir(dsn); err != nil {
		return nil, err
	}

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	for _, opt := range opts {
		if opt.Logger != nil {
			cfg.Logger = opt.Logger
		}
	}

	gdb, err := gorm.Open(sqlite.Open(withForeignKeys(dsn)), cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	// 单连接保证单写者语义，且 PRAGMA 设置对唯一连接生效
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(
		&Content{},
		&FileAttachment{},
		&Subscription{},
		&SystemSetting{},
	); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &Store{
		gdb:               gdb,
		bootstrapEmail:    defaultBootstrapEmail,
		bootstrapPassword: defaultBootstrapPassword,
	}, nil
}

// Close releases the underlying connection. Closing twice is a no-op.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gdb == nil {
		return nil
	}
	sqlDB, err := s.gdb.DB()
	s.gdb = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SetBootstrapCredential replaces the built-in admin credential. Blank values keep the default.
func (s *Store) SetBootstrapCredential(email, password string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if trimmed := strings.TrimSpace(email); trimmed != "" {
		s.bootstrapEmail = trimmed
	}
	if password != "" {
		s.bootstrapPassword = password
	}
}

// conn returns a context-bound session or ErrStoreUnavailable.
func (s *Store) conn(ctx context.Context) (*gorm.DB, error) {
	if s == nil {
		return nil, ErrStoreUnavailable
	}
	s.mu.RLock()
	gdb := s.gdb
	s.mu.RUnlock()

	if gdb == nil {
		return nil, ErrStoreUnavailable
	}
	return gdb.WithContext(ctx), nil
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

func ensureParentDir(path string) error {
	if strings.HasPrefix(path, "file:") || strings.HasPrefix(path, ":memory:") {
		return nil
	}

	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}

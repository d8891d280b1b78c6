// Package journal 把每次 run 的结果追加到本地 SQLite 数据库（--journal）。
//
// 约束：
// - 只追加，不修改已有记录
// - 一次 run 的 Run 与 FileRecord 在同一事务中写入
package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/John-Robertt/blend2egg/internal/domain"
)

// Run 对应一次 blend2egg 调用。
type Run struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Pipeline   string    `gorm:"size:32"`
	DryRun     bool
	SrcDir     string
	Dst        string
	IsBatch    bool
	Status     string    `gorm:"size:16;index"`
	ErrorCode  string    `gorm:"size:32"`
	ErrorMsg   string
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time

	Files []FileRecord `gorm:"foreignKey:RunID"`
}

// FileRecord 是 run 中的一个源文件；Seq 保持计划顺序。
type FileRecord struct {
	ID     uint   `gorm:"primaryKey"`
	RunID  string `gorm:"size:36;not null;index:idx_run_seq"`
	Seq    int    `gorm:"not null;index:idx_run_seq"`
	Src    string `gorm:"not null;index"`
	Dst    string
	Status string `gorm:"size:16"`
}

type Store struct {
	db *gorm.DB
}

// Open 打开（必要时创建）path 处的数据库并迁移表结构。
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal %q: %w", path, err)
	}
	if err := db.AutoMigrate(&Run{}, &FileRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Record 写入一份已 Finalize 的报告。
func (s *Store) Record(ctx context.Context, rr domain.RunReport) error {
	run := Run{
		ID:         rr.RunID,
		Pipeline:   rr.Pipeline,
		DryRun:     rr.DryRun,
		SrcDir:     rr.SrcDir,
		Dst:        rr.Dst,
		IsBatch:    rr.IsBatch,
		Status:     rr.Status,
		ErrorCode:  rr.ErrorCode,
		ErrorMsg:   rr.ErrorMsg,
		StartedAt:  rr.StartedAt,
		FinishedAt: rr.FinishedAt,
		Files:      make([]FileRecord, 0, len(rr.Files)),
	}
	for i, f := range rr.Files {
		run.Files = append(run.Files, FileRecord{Seq: i, Src: f.Src, Dst: f.Dst, Status: f.Status})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&run).Error
	})
}

// recent 返回最近的 limit 次 run（新的在前），Files 按 Seq 排序。
func (s *Store) recent(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := s.db.WithContext(ctx).
		Preload("Files", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

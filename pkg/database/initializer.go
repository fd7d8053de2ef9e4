package database

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Initializer 建表：分区表走 SQL 文件，其余表 AutoMigrate
type Initializer struct {
	db           *gorm.DB
	config       *PartitionConfig
	manager      *PartitionManager
	models       []interface{}
	futureMonths int
	logger       *zap.Logger
}

// InitOptions 初始化选项
type InitOptions struct {
	// 为空时使用内置的 partitions/ 目录
	FS   fs.FS
	Root string

	// 非分区表 Model
	Models []interface{}

	// 创建未来几个月的分区（默认 3）
	FutureMonths int

	// 覆盖配置文件中的保留月数，key 为表名
	Retention map[string]int

	Logger *zap.Logger
}

// NewInitializer 创建初始化器
func NewInitializer(db *gorm.DB, opts InitOptions) (*Initializer, error) {
	if opts.FS == nil {
		opts.FS = PartitionSQL
		opts.Root = "partitions"
	}
	if opts.FutureMonths <= 0 {
		opts.FutureMonths = 3
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	config, err := LoadPartitionConfig(opts.FS, opts.Root)
	if err != nil {
		return nil, fmt.Errorf("加载分区配置失败: %w", err)
	}
	for table, months := range opts.Retention {
		config.SetRetention(table, months)
	}

	return &Initializer{
		db:           db,
		config:       config,
		manager:      NewPartitionManager(db, config, opts.Logger),
		models:       opts.Models,
		futureMonths: opts.FutureMonths,
		logger:       opts.Logger.Named("db_init"),
	}, nil
}

// Initialize 执行初始化
func (i *Initializer) Initialize(ctx context.Context) error {
	start := time.Now()

	if err := i.manager.InitPartitionTables(ctx); err != nil {
		return fmt.Errorf("创建分区表失败: %w", err)
	}

	if err := i.manager.EnsureFuturePartitions(ctx, i.futureMonths); err != nil {
		return fmt.Errorf("创建分区失败: %w", err)
	}

	if len(i.models) > 0 {
		if err := i.db.WithContext(ctx).AutoMigrate(i.models...); err != nil {
			return fmt.Errorf("AutoMigrate 失败: %w", err)
		}
	}

	i.logger.Info("[DB] 初始化完成",
		zap.Strings("partitioned", i.config.GetTableNames()),
		zap.Int("models", len(i.models)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Manager 分区管理器，供维护任务使用
func (i *Initializer) Manager() *PartitionManager {
	return i.manager
}

// Config 分区配置
func (i *Initializer) Config() *PartitionConfig {
	return i.config
}

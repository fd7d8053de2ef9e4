package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PartitionManager 按月 RANGE 分区的维护（postgres）
type PartitionManager struct {
	db     *gorm.DB
	config *PartitionConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewPartitionManager 创建分区管理器
func NewPartitionManager(db *gorm.DB, config *PartitionConfig, log *zap.Logger) *PartitionManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &PartitionManager{db: db, config: config, logger: log.Named("partition"), now: time.Now}
}

// partitionName 月分区名，如 sync_runs_y2025m03
func partitionName(table string, month time.Time) string {
	return fmt.Sprintf("%s_y%dm%02d", table, month.Year(), month.Month())
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ==================== 初始化 ====================

// InitPartitionTables 创建分区主表（已存在则跳过）
func (m *PartitionManager) InitPartitionTables(ctx context.Context) error {
	for _, table := range m.config.Tables {
		exists, err := m.tableExists(ctx, table.TableName)
		if err != nil {
			return fmt.Errorf("检查表 %s 失败: %w", table.TableName, err)
		}
		if exists {
			m.logger.Debug("[Partition] 表已存在", zap.String("table", table.TableName))
			continue
		}

		if err := m.db.WithContext(ctx).Exec(table.SQLContent).Error; err != nil {
			return fmt.Errorf("创建表 %s 失败: %w", table.TableName, err)
		}
		m.logger.Info("[Partition] 分区主表创建成功", zap.String("table", table.TableName))
	}
	return nil
}

func (m *PartitionManager) tableExists(ctx context.Context, tableName string) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) FROM pg_tables
		WHERE schemaname = current_schema() AND tablename = ?
	`, tableName).Scan(&count).Error
	return count > 0, err
}

// ==================== 分区创建 ====================

// EnsureFuturePartitions 确保当月及未来 N 个月的分区存在
// 单个分区失败只记录日志，返回最后一个错误
func (m *PartitionManager) EnsureFuturePartitions(ctx context.Context, monthsAhead int) error {
	current := monthStart(m.now())
	var lastErr error
	for i := 0; i <= monthsAhead; i++ {
		month := current.AddDate(0, i, 0)
		for _, table := range m.config.Tables {
			if err := m.createPartitionIfNotExists(ctx, table.TableName, month); err != nil {
				m.logger.Warn("[Partition] 创建分区失败",
					zap.String("table", table.TableName),
					zap.String("month", month.Format("2006-01")),
					zap.Error(err))
				lastErr = err
			}
		}
	}
	return lastErr
}

func (m *PartitionManager) createPartitionIfNotExists(ctx context.Context, tableName string, month time.Time) error {
	start := monthStart(month)
	end := start.AddDate(0, 1, 0)
	name := partitionName(tableName, start)

	exists, err := m.tableExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	sql := fmt.Sprintf(
		`CREATE TABLE %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')`,
		name, tableName, start.Format("2006-01-02"), end.Format("2006-01-02"),
	)
	if err := m.db.WithContext(ctx).Exec(sql).Error; err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return fmt.Errorf("创建分区 %s 失败: %w", name, err)
	}

	m.logger.Info("[Partition] 创建分区", zap.String("partition", name))
	return nil
}

// ==================== 分区清理 ====================

// CleanupExpiredPartitions 删除超出保留期的分区，返回删除数量
func (m *PartitionManager) CleanupExpiredPartitions(ctx context.Context) (int, error) {
	dropped := 0
	var lastErr error
	for _, table := range m.config.Tables {
		if table.RetentionMonth == 0 {
			continue
		}

		cutoff := retentionCutoff(m.now(), table.RetentionMonth)
		count, err := m.dropPartitionsBefore(ctx, table.TableName, cutoff)
		if err != nil {
			m.logger.Warn("[Partition] 清理过期分区失败", zap.String("table", table.TableName), zap.Error(err))
			lastErr = err
		}
		dropped += count
	}
	return dropped, lastErr
}

// retentionCutoff 早于该月的分区视为过期
func retentionCutoff(now time.Time, months int) time.Time {
	return monthStart(now).AddDate(0, -months, 0)
}

func (m *PartitionManager) dropPartitionsBefore(ctx context.Context, tableName string, before time.Time) (int, error) {
	partitions, err := m.ListPartitions(ctx, tableName)
	if err != nil {
		return 0, err
	}

	dropped := 0
	for _, p := range partitions {
		month, err := parsePartitionMonth(p.Name, tableName)
		if err != nil || !month.Before(before) {
			continue
		}

		if err := m.db.WithContext(ctx).Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", p.Name)).Error; err != nil {
			m.logger.Warn("[Partition] 删除分区失败", zap.String("partition", p.Name), zap.Error(err))
			continue
		}
		m.logger.Info("[Partition] 删除过期分区", zap.String("partition", p.Name))
		dropped++
	}
	return dropped, nil
}

func parsePartitionMonth(name, tableName string) (time.Time, error) {
	suffix := strings.TrimPrefix(name, tableName+"_y")
	if suffix == name || len(suffix) < 6 {
		return time.Time{}, fmt.Errorf("无效分区名: %s", name)
	}
	var year, month int
	if _, err := fmt.Sscanf(suffix, "%dm%d", &year, &month); err != nil {
		return time.Time{}, err
	}
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("无效分区月份: %s", name)
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

// ==================== 分区查询 ====================

// PartitionInfo 分区信息
type PartitionInfo struct {
	Name      string `gorm:"column:partition_name"`
	Range     string `gorm:"column:partition_range"`
	SizeBytes int64  `gorm:"column:size_bytes"`
}

// ListPartitions 列出表的所有分区
func (m *PartitionManager) ListPartitions(ctx context.Context, tableName string) ([]PartitionInfo, error) {
	var partitions []PartitionInfo
	err := m.db.WithContext(ctx).Raw(`
		SELECT
			child.relname AS partition_name,
			pg_get_expr(child.relpartbound, child.oid) AS partition_range,
			pg_total_relation_size(child.oid) AS size_bytes
		FROM pg_inherits
		JOIN pg_class parent ON pg_inherits.inhparent = parent.oid
		JOIN pg_class child ON pg_inherits.inhrelid = child.oid
		WHERE parent.relname = ?
		ORDER BY child.relname
	`, tableName).Scan(&partitions).Error
	return partitions, err
}

// TableStats 表统计
type TableStats struct {
	TableName      string `gorm:"column:table_name"`
	PartitionCount int    `gorm:"column:partition_count"`
	TotalSizeBytes int64  `gorm:"column:total_size_bytes"`
}

// GetAllStats 所有分区表的分区数与占用空间
func (m *PartitionManager) GetAllStats(ctx context.Context) ([]TableStats, error) {
	var stats []TableStats
	names := m.config.GetTableNames()
	if len(names) == 0 {
		return stats, nil
	}

	err := m.db.WithContext(ctx).Raw(`
		SELECT
			parent.relname AS table_name,
			COUNT(child.relname) AS partition_count,
			COALESCE(SUM(pg_total_relation_size(child.oid)), 0) AS total_size_bytes
		FROM pg_inherits
		JOIN pg_class parent ON pg_inherits.inhparent = parent.oid
		JOIN pg_class child ON pg_inherits.inhrelid = child.oid
		WHERE parent.relname IN ?
		GROUP BY parent.relname
		ORDER BY parent.relname
	`, names).Scan(&stats).Error
	return stats, err
}

// HealthCheck 当月与下月分区必须存在
func (m *PartitionManager) HealthCheck(ctx context.Context) error {
	current := monthStart(m.now())
	next := current.AddDate(0, 1, 0)

	var missing []string
	for _, table := range m.config.Tables {
		for _, month := range []time.Time{current, next} {
			name := partitionName(table.TableName, month)
			exists, err := m.tableExists(ctx, name)
			if err != nil {
				return err
			}
			if !exists {
				missing = append(missing, name)
			}
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("缺失分区: %v", missing)
	}
	return nil
}

package database

import (
	"bufio"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
)

// PartitionTableConfig 分区表配置
type PartitionTableConfig struct {
	TableName      string // 表名
	RetentionMonth int    // 保留月数（0=永久）
	SQLContent     string // 建表 SQL
}

// PartitionConfig 分区配置
type PartitionConfig struct {
	Tables []PartitionTableConfig
}

// LoadPartitionConfig 从文件系统加载配置
// root 下需要 partition_tables.conf 以及每个表的 <表名>.sql
func LoadPartitionConfig(fsys fs.FS, root string) (*PartitionConfig, error) {
	cfg := &PartitionConfig{}

	confData, err := fs.ReadFile(fsys, path.Join(root, "partition_tables.conf"))
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := cfg.parseConfig(string(confData)); err != nil {
		return nil, err
	}

	for i := range cfg.Tables {
		sqlFile := cfg.Tables[i].TableName + ".sql"
		sqlData, err := fs.ReadFile(fsys, path.Join(root, sqlFile))
		if err != nil {
			return nil, fmt.Errorf("读取 SQL 文件 %s 失败: %w", sqlFile, err)
		}
		cfg.Tables[i].SQLContent = string(sqlData)
	}

	return cfg, nil
}

// parseConfig 每行 "表名,保留月数"，# 开头为注释
func (c *PartitionConfig) parseConfig(content string) error {
	scanner := bufio.NewScanner(strings.NewReader(content))
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) != 2 {
			return fmt.Errorf("配置第 %d 行格式错误: %s", lineNum, line)
		}

		name := strings.TrimSpace(parts[0])
		if name == "" {
			return fmt.Errorf("配置第 %d 行缺少表名", lineNum)
		}
		retention, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || retention < 0 {
			return fmt.Errorf("配置第 %d 行保留月数无效: %s", lineNum, parts[1])
		}

		c.Tables = append(c.Tables, PartitionTableConfig{
			TableName:      name,
			RetentionMonth: retention,
		})
	}

	return scanner.Err()
}

// SetRetention 用运行配置覆盖保留月数
func (c *PartitionConfig) SetRetention(table string, months int) bool {
	t := c.GetTable(table)
	if t == nil || months < 0 {
		return false
	}
	t.RetentionMonth = months
	return true
}

// GetTableNames 获取所有分区表名
func (c *PartitionConfig) GetTableNames() []string {
	names := make([]string, len(c.Tables))
	for i, t := range c.Tables {
		names[i] = t.TableName
	}
	return names
}

// GetTable 获取指定表配置
func (c *PartitionConfig) GetTable(name string) *PartitionTableConfig {
	for i := range c.Tables {
		if c.Tables[i].TableName == name {
			return &c.Tables[i]
		}
	}
	return nil
}

// IsPartitionedTable 检查是否为分区表
func (c *PartitionConfig) IsPartitionedTable(name string) bool {
	return c.GetTable(name) != nil
}

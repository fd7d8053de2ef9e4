package database

import "embed"

// PartitionSQL 内置分区表定义
//
//go:embed partitions/*.sql partitions/*.conf
var PartitionSQL embed.FS

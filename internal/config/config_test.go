package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Sync.PageTimeout)
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, 50, cfg.Sync.MaxPages)
	assert.Equal(t, 30.0, cfg.Analytics.HighValueThreshold)
	assert.Equal(t, 30*24*time.Hour, cfg.Analytics.NewCustomerLookback)
	assert.Contains(t, cfg.Platforms, "etsy")
	assert.Contains(t, cfg.Platforms, "ebay")
	assert.Equal(t, "https://openapi.etsy.com", cfg.Platforms["etsy"].BaseURL)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := writeConfig(t, `
database:
  driver: sqlite
  dsn: "file::memory:"
sync:
  concurrency: 2
analytics:
  high_value_threshold: 55
platforms:
  shopify:
    client_id: shop-app
`)
	t.Setenv("LEDGER_SYNC_MAX_PAGES", "7")
	t.Setenv("LEDGER_PLATFORMS_SHOPIFY_CLIENT_SECRET", "s3cret")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 2, cfg.Sync.Concurrency)
	assert.Equal(t, 7, cfg.Sync.MaxPages)
	assert.Equal(t, 55.0, cfg.Analytics.HighValueThreshold)
	assert.Equal(t, "shop-app", cfg.Platforms["shopify"].ClientID)
	assert.Equal(t, "s3cret", cfg.Platforms["shopify"].ClientSecret)
	// 配置文件未覆盖的平台仍保留默认值
	assert.Equal(t, "https://api.ebay.com", cfg.Platforms["ebay"].BaseURL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"未知驱动", "database:\n  driver: oracle\n"},
		{"并发为零", "sync:\n  concurrency: 0\n"},
		{"时区无效", "analytics:\n  timezone: Mars/Base\n"},
		{"负阈值", "analytics:\n  high_value_threshold: -1\n"},
		{"单页超时为零", "sync:\n  page_timeout: 0s\n"},
		{"单页超时为负", "sync:\n  page_timeout: -5s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Errorf("期望返回错误")
			}
		})
	}
}

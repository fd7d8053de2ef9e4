package model

import (
	"time"
)

// 平台标识
const (
	PlatformEtsy        = "etsy"
	PlatformShopify     = "shopify"
	PlatformEbay        = "ebay"
	PlatformWooCommerce = "woocommerce"
)

// Token 状态常量
const (
	TokenStatusValid   = "valid"        // 有效
	TokenStatusExpired = "expired"      // 已过期
	TokenStatusInvalid = "auth_invalid" // 需重新授权
)

// Credential 用户在某个平台的店铺授权
// 由外部授权流程创建，同步引擎只读取，并在刷新 Token 后原地回写
type Credential struct {
	BaseModel

	UserID    int64  `gorm:"not null;uniqueIndex:idx_cred_user_platform_store,priority:1" json:"user_id"`
	Platform  string `gorm:"size:32;not null;uniqueIndex:idx_cred_user_platform_store,priority:2" json:"platform"`
	StoreID   string `gorm:"size:255;not null;uniqueIndex:idx_cred_user_platform_store,priority:3" json:"store_id"`
	StoreName string `gorm:"size:255" json:"store_name"`

	// OAuth 类平台
	AccessToken  string     `gorm:"type:text" json:"-"`
	RefreshToken string     `gorm:"type:text" json:"-"`
	ExpiresAt    *time.Time `gorm:"index" json:"expires_at,omitempty"`

	// Key/Secret 类平台 (WooCommerce)
	PublicKey string `gorm:"size:255" json:"-"`
	SecretKey string `gorm:"size:255" json:"-"`

	IsActive     bool       `gorm:"index;not null" json:"is_active"`
	TokenStatus  string     `gorm:"size:20;default:'valid'" json:"token_status"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

func (Credential) TableName() string { return "platform_credentials" }

// ExpiresWithin Token 是否会在 d 内过期；无过期时间的凭据视为永久有效
func (c *Credential) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !c.ExpiresAt.After(now.Add(d))
}

// CanRefresh 是否具备刷新条件
func (c *Credential) CanRefresh() bool {
	return c.RefreshToken != ""
}

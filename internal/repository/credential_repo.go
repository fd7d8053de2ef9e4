package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sales_ledger_v1/internal/model"
)

// ==================== CredentialRepository 平台凭据仓库 ====================

// CredentialRepository 平台凭据仓库接口
type CredentialRepository interface {
	Create(ctx context.Context, cred *model.Credential) error
	Save(ctx context.Context, cred *model.Credential) error
	GetByID(ctx context.Context, id int64) (*model.Credential, error)
	GetByStore(ctx context.Context, userID int64, platform, storeID string) (*model.Credential, error)
	ListActiveByUser(ctx context.Context, userID int64) ([]model.Credential, error)
	ListUsersWithActive(ctx context.Context) ([]int64, error)

	// Token 相关
	FindExpiring(ctx context.Context, before time.Time) ([]model.Credential, error)
	UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error
	UpdateTokenStatus(ctx context.Context, id int64, status string) error

	TouchSynced(ctx context.Context, id int64, at time.Time) error
	Deactivate(ctx context.Context, id int64) error
}

type credentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository 创建凭据仓库
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) Create(ctx context.Context, cred *model.Credential) error {
	return r.db.WithContext(ctx).Create(cred).Error
}

// Save 按 (user_id, platform, store_id) 插入或覆盖授权信息，并重新启用
func (r *credentialRepository) Save(ctx context.Context, cred *model.Credential) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "platform"}, {Name: "store_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"store_name", "access_token", "refresh_token", "expires_at",
			"public_key", "secret_key", "is_active", "token_status", "updated_at",
		}),
	}).Create(cred).Error
}

func (r *credentialRepository) GetByStore(ctx context.Context, userID int64, platform, storeID string) (*model.Credential, error) {
	var cred model.Credential
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND platform = ? AND store_id = ?", userID, platform, storeID).
		First(&cred).Error
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepository) GetByID(ctx context.Context, id int64) (*model.Credential, error) {
	var cred model.Credential
	if err := r.db.WithContext(ctx).First(&cred, id).Error; err != nil {
		return nil, err
	}
	return &cred, nil
}

// ListActiveByUser 用户启用中的凭据，按创建顺序
func (r *credentialRepository) ListActiveByUser(ctx context.Context, userID int64) ([]model.Credential, error) {
	var creds []model.Credential
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("id ASC").
		Find(&creds).Error
	return creds, err
}

// ListUsersWithActive 至少有一个启用凭据的用户
func (r *credentialRepository) ListUsersWithActive(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Credential{}).
		Where("is_active = ?", true).
		Distinct("user_id").
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// FindExpiring 启用中、可刷新且将在 before 之前过期的凭据
func (r *credentialRepository) FindExpiring(ctx context.Context, before time.Time) ([]model.Credential, error) {
	var creds []model.Credential
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("token_status <> ?", model.TokenStatusInvalid).
		Where("refresh_token <> ''").
		Where("expires_at IS NOT NULL AND expires_at <= ?", before).
		Order("expires_at ASC").
		Find(&creds).Error
	return creds, err
}

// UpdateToken 刷新成功后回写 Token
func (r *credentialRepository) UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Credential{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
			"token_status":  model.TokenStatusValid,
		}).Error
}

func (r *credentialRepository) UpdateTokenStatus(ctx context.Context, id int64, status string) error {
	return r.db.WithContext(ctx).
		Model(&model.Credential{}).
		Where("id = ?", id).
		Update("token_status", status).Error
}

func (r *credentialRepository) TouchSynced(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Credential{}).
		Where("id = ?", id).
		Update("last_synced_at", at).Error
}

// Deactivate 软停用，不删除记录
func (r *credentialRepository) Deactivate(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.Credential{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

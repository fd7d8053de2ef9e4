package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"sales_ledger_v1/internal/api/dto"
	"sales_ledger_v1/internal/model"
	"sales_ledger_v1/internal/platform"
	"sales_ledger_v1/internal/repository"
	"sales_ledger_v1/pkg/lock"
)

// ErrCredentialNotFound 凭据不存在或不属于当前用户
var ErrCredentialNotFound = errors.New("credential not found")

// ErrCredentialInput 凭据输入不完整
var ErrCredentialInput = errors.New("invalid credential input")

// ==================== CredentialProvider ====================

// CredentialProvider 同步引擎读取凭据、刷新 Token 的唯一入口
type CredentialProvider interface {
	ListActive(ctx context.Context, userID int64) ([]model.Credential, error)
	Refresh(ctx context.Context, cred *model.Credential) (*model.Credential, error)
	MarkSynced(ctx context.Context, credID int64, at time.Time) error
}

// ==================== CredentialService ====================

// CredentialService 基于 platform_credentials 表的凭据服务
type CredentialService struct {
	repo     repository.CredentialRepository
	registry *platform.Registry
	locks    *lock.KeyedMutex
	http     *http.Client
	logger   *zap.Logger
}

func NewCredentialService(repo repository.CredentialRepository, registry *platform.Registry, log *zap.Logger) *CredentialService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CredentialService{
		repo:     repo,
		registry: registry,
		locks:    lock.NewKeyedMutex(),
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   log.Named("credential"),
	}
}

// ==================== 凭据登记 ====================

// Register 外部授权流程完成后登记凭据，同一店铺重复登记视为重新授权
func (s *CredentialService) Register(ctx context.Context, userID int64, in *dto.CredentialInput) (*model.Credential, error) {
	cred := in.ToModel(userID)
	if _, err := s.registry.New(cred.Platform); err != nil {
		return nil, err
	}

	switch cred.Platform {
	case model.PlatformWooCommerce:
		if cred.PublicKey == "" || cred.SecretKey == "" {
			return nil, fmt.Errorf("%w: woocommerce 需要 public_key 与 secret_key", ErrCredentialInput)
		}
	default:
		if cred.AccessToken == "" {
			return nil, fmt.Errorf("%w: %s 需要 access_token", ErrCredentialInput, cred.Platform)
		}
	}

	if err := s.repo.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("保存凭据失败: %w", err)
	}
	saved, err := s.repo.GetByStore(ctx, userID, cred.Platform, cred.StoreID)
	if err != nil {
		return nil, fmt.Errorf("读取凭据失败: %w", err)
	}

	s.logger.Info("[CredentialService] 凭据已登记",
		zap.Int64("user_id", userID),
		zap.String("platform", saved.Platform),
		zap.String("store_id", saved.StoreID))
	return saved, nil
}

// Deactivate 停用用户自己的凭据
func (s *CredentialService) Deactivate(ctx context.Context, userID, credID int64) error {
	cred, err := s.repo.GetByID(ctx, credID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCredentialNotFound
		}
		return err
	}
	if cred.UserID != userID {
		return ErrCredentialNotFound
	}
	return s.repo.Deactivate(ctx, credID)
}

// ==================== CredentialProvider 实现 ====================

func (s *CredentialService) ListActive(ctx context.Context, userID int64) ([]model.Credential, error) {
	creds, err := s.repo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("读取凭据失败: %w", err)
	}
	return creds, nil
}

// ListExpiring 将在 ahead 内过期的可刷新凭据
func (s *CredentialService) ListExpiring(ctx context.Context, ahead time.Duration) ([]model.Credential, error) {
	return s.repo.FindExpiring(ctx, time.Now().Add(ahead))
}

func (s *CredentialService) MarkSynced(ctx context.Context, credID int64, at time.Time) error {
	return s.repo.TouchSynced(ctx, credID, at)
}

// Refresh 用 refresh_token 换取新 Token 并原地回写
// 平台明确拒绝 (400/401) 时标记为 auth_invalid，返回 ErrInvalidCredential
func (s *CredentialService) Refresh(ctx context.Context, cred *model.Credential) (*model.Credential, error) {
	unlock, err := s.locks.Lock(ctx, "cred:"+strconv.FormatInt(cred.ID, 10))
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 等锁期间可能已被其他协程刷新
	if cred.ID > 0 {
		if latest, err := s.repo.GetByID(ctx, cred.ID); err == nil && latest.AccessToken != cred.AccessToken &&
			latest.TokenStatus == model.TokenStatusValid && !latest.ExpiresWithin(time.Now(), 0) {
			return latest, nil
		}
	}

	log := s.logger.With(zap.Int64("credential_id", cred.ID), zap.String("platform", cred.Platform))

	opts := s.registry.Options(cred.Platform)
	if !cred.CanRefresh() || opts.TokenURL == "" {
		s.markStatus(ctx, cred.ID, model.TokenStatusInvalid)
		return nil, fmt.Errorf("%w: %s 凭据无法刷新，需要重新授权", platform.ErrInvalidCredential, cred.Platform)
	}

	conf := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  opts.TokenURL,
			AuthStyle: authStyle(cred.Platform),
		},
	}

	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, s.http)
	tok, err := conf.TokenSource(oauthCtx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil &&
			(re.Response.StatusCode == http.StatusBadRequest || re.Response.StatusCode == http.StatusUnauthorized) {
			s.markStatus(ctx, cred.ID, model.TokenStatusInvalid)
			log.Warn("[CredentialService] 平台拒绝刷新，已标记需重新授权", zap.Int("status", re.Response.StatusCode))
			return nil, fmt.Errorf("%w: %v", platform.ErrInvalidCredential, err)
		}
		log.Warn("[CredentialService] 刷新 Token 失败", zap.Error(err))
		return nil, fmt.Errorf("%w: 刷新 Token 失败: %w", platform.ErrTransient, err)
	}

	fresh := *cred
	fresh.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	fresh.ExpiresAt = nil
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		fresh.ExpiresAt = &exp
	}
	fresh.TokenStatus = model.TokenStatusValid

	if err := s.repo.UpdateToken(ctx, fresh.ID, fresh.AccessToken, fresh.RefreshToken, fresh.ExpiresAt); err != nil {
		return nil, fmt.Errorf("保存刷新后的 Token 失败: %w", err)
	}

	log.Info("[CredentialService] Token 刷新成功")
	return &fresh, nil
}

func (s *CredentialService) markStatus(ctx context.Context, id int64, status string) {
	if id == 0 {
		return
	}
	if err := s.repo.UpdateTokenStatus(context.WithoutCancel(ctx), id, status); err != nil {
		s.logger.Error("[CredentialService] 更新 Token 状态失败", zap.Int64("credential_id", id), zap.Error(err))
	}
}

// authStyle Etsy 要求 client_id 放在表单中，eBay 要求 Basic 头
func authStyle(platformName string) oauth2.AuthStyle {
	switch platformName {
	case model.PlatformEtsy:
		return oauth2.AuthStyleInParams
	case model.PlatformEbay:
		return oauth2.AuthStyleInHeader
	default:
		return oauth2.AuthStyleAutoDetect
	}
}

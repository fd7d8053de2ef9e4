package dto

import (
	"strings"
	"time"

	"sales_ledger_v1/internal/model"
)

// CredentialInput 外部授权流程交给同步引擎的凭据
type CredentialInput struct {
	Platform     string     `json:"platform" binding:"required"`
	StoreID      string     `json:"store_id" binding:"required"`
	StoreName    string     `json:"store_name"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	PublicKey    string     `json:"public_key,omitempty"`
	SecretKey    string     `json:"secret_key,omitempty"`
}

// ToModel 转为启用状态的凭据记录
func (in *CredentialInput) ToModel(userID int64) *model.Credential {
	return &model.Credential{
		UserID:       userID,
		Platform:     strings.ToLower(strings.TrimSpace(in.Platform)),
		StoreID:      strings.TrimSpace(in.StoreID),
		StoreName:    in.StoreName,
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
		ExpiresAt:    in.ExpiresAt,
		PublicKey:    in.PublicKey,
		SecretKey:    in.SecretKey,
		IsActive:     true,
		TokenStatus:  model.TokenStatusValid,
	}
}

package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales_ledger_v1/internal/api/dto"
	"sales_ledger_v1/internal/model"
	"sales_ledger_v1/internal/platform"
	"sales_ledger_v1/internal/repository"
)

type tokenServer struct {
	*httptest.Server
	hits int32
}

func newTokenServer(t *testing.T, status int, body string) *tokenServer {
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ts.hits, 1)
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "refresh_token" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newCredentialFixture(t *testing.T, tokenURL string) (*CredentialService, repository.CredentialRepository, *model.Credential) {
	t.Helper()
	db := setupServiceTestDB(t)
	repo := repository.NewCredentialRepository(db)

	exp := time.Now().Add(-time.Minute).UTC()
	cred := &model.Credential{
		UserID:       1,
		Platform:     model.PlatformEtsy,
		StoreID:      "shop-1",
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    &exp,
		IsActive:     true,
		TokenStatus:  model.TokenStatusExpired,
	}
	require.NoError(t, repo.Create(context.Background(), cred))

	registry := platform.NewRegistry(map[string]platform.Options{
		model.PlatformEtsy: {TokenURL: tokenURL, ClientID: "cid", ClientSecret: "secret"},
	})
	return NewCredentialService(repo, registry, nil), repo, cred
}

func TestCredentialService_RefreshSuccess(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK,
		`{"access_token":"new-access","refresh_token":"new-refresh","token_type":"Bearer","expires_in":3600}`)
	svc, repo, cred := newCredentialFixture(t, ts.URL)

	fresh, err := svc.Refresh(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, "new-access", fresh.AccessToken)
	assert.Equal(t, "new-refresh", fresh.RefreshToken)
	require.NotNil(t, fresh.ExpiresAt)
	assert.True(t, fresh.ExpiresAt.After(time.Now().Add(50*time.Minute)))

	stored, err := repo.GetByID(context.Background(), cred.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-access", stored.AccessToken)
	assert.Equal(t, "new-refresh", stored.RefreshToken)
	assert.Equal(t, model.TokenStatusValid, stored.TokenStatus)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ts.hits))
}

func TestCredentialService_RefreshRejected(t *testing.T) {
	ts := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	svc, repo, cred := newCredentialFixture(t, ts.URL)

	_, err := svc.Refresh(context.Background(), cred)
	require.Error(t, err)
	assert.True(t, errors.Is(err, platform.ErrInvalidCredential), "err = %v", err)

	stored, err := repo.GetByID(context.Background(), cred.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TokenStatusInvalid, stored.TokenStatus)
	assert.Equal(t, "old-access", stored.AccessToken)
}

func TestCredentialService_RefreshServerError(t *testing.T) {
	ts := newTokenServer(t, http.StatusInternalServerError, `{"error":"server_error"}`)
	svc, repo, cred := newCredentialFixture(t, ts.URL)

	_, err := svc.Refresh(context.Background(), cred)
	require.Error(t, err)
	assert.True(t, errors.Is(err, platform.ErrTransient), "err = %v", err)

	stored, _ := repo.GetByID(context.Background(), cred.ID)
	assert.NotEqual(t, model.TokenStatusInvalid, stored.TokenStatus)
}

func TestCredentialService_NoRefreshToken(t *testing.T) {
	svc, repo, cred := newCredentialFixture(t, "http://127.0.0.1:0/token")
	cred.RefreshToken = ""

	_, err := svc.Refresh(context.Background(), cred)
	assert.ErrorIs(t, err, platform.ErrInvalidCredential)

	stored, _ := repo.GetByID(context.Background(), cred.ID)
	assert.Equal(t, model.TokenStatusInvalid, stored.TokenStatus)
}

func TestCredentialService_ConcurrentRefreshOnce(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK,
		`{"access_token":"new-access","token_type":"Bearer","expires_in":3600}`)
	svc, _, cred := newCredentialFixture(t, ts.URL)

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		c := *cred
		go func() {
			_, err := svc.Refresh(context.Background(), &c)
			done <- err
		}()
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-done)
	}
	// 后到的协程直接读取已刷新的 Token
	assert.EqualValues(t, 1, atomic.LoadInt32(&ts.hits))
}

func TestCredentialService_ListExpiring(t *testing.T) {
	svc, repo, cred := newCredentialFixture(t, "")

	later := time.Now().Add(48 * time.Hour).UTC()
	require.NoError(t, repo.Create(context.Background(), &model.Credential{
		UserID: 1, Platform: model.PlatformEbay, StoreID: "e", IsActive: true,
		RefreshToken: "r", ExpiresAt: &later, TokenStatus: model.TokenStatusValid,
	}))

	creds, err := svc.ListExpiring(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, cred.ID, creds[0].ID)
}

func TestCredentialService_RegisterAndDeactivate(t *testing.T) {
	svc, repo, _ := newCredentialFixture(t, "")
	ctx := context.Background()

	_, err := svc.Register(ctx, 2, &dto.CredentialInput{Platform: "amazon", StoreID: "x", AccessToken: "a"})
	assert.ErrorIs(t, err, platform.ErrUnknownPlatform)

	_, err = svc.Register(ctx, 2, &dto.CredentialInput{Platform: "woocommerce", StoreID: "shop.example.com"})
	assert.ErrorIs(t, err, ErrCredentialInput)

	cred, err := svc.Register(ctx, 2, &dto.CredentialInput{Platform: " Shopify ", StoreID: "demo", AccessToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, model.PlatformShopify, cred.Platform)
	assert.True(t, cred.IsActive)
	assert.NotZero(t, cred.ID)

	// 其他用户不能停用
	assert.ErrorIs(t, svc.Deactivate(ctx, 1, cred.ID), ErrCredentialNotFound)
	assert.ErrorIs(t, svc.Deactivate(ctx, 2, 9999), ErrCredentialNotFound)

	require.NoError(t, svc.Deactivate(ctx, 2, cred.ID))
	active, err := repo.ListActiveByUser(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, active)
}

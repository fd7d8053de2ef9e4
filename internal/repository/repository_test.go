package repository

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sales_ledger_v1/internal/model"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&model.Credential{}, &model.Sale{}, &model.SyncRun{}); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}
	return db
}

func day(d int) time.Time {
	return time.Date(2025, 3, d, 12, 0, 0, 0, time.UTC)
}

func newSale(orderID, itemID string, price float64, qty int) *model.Sale {
	return &model.Sale{
		UserID:           1,
		Platform:         model.PlatformEtsy,
		OrderID:          orderID,
		ItemID:           itemID,
		ItemTitle:        "Mug",
		Quantity:         qty,
		Price:            price,
		Currency:         "USD",
		BuyerName:        "Alice",
		BuyerEmail:       "a@x.com",
		SaleDate:         day(1),
		Status:           "Completed",
		NormalizedStatus: model.SaleStatusCompleted,
		LastSyncRun:      "b1",
	}
}

// ==================== SaleRepository ====================

func TestSaleRepo_UpsertIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSaleRepository(db)
	ctx := context.Background()

	if err := repo.Upsert(ctx, newSale("o1", "i1", 10, 2)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	// 同一身份再次写入，以最新一次为准
	updated := newSale("o1", "i1", 12, 3)
	updated.Status = "Refunded"
	updated.NormalizedStatus = model.SaleStatusRefunded
	updated.TrackingNumber = "TRK"
	updated.LastSyncRun = "b2"
	if err := repo.Upsert(ctx, updated); err != nil {
		t.Fatalf("Upsert() second error = %v", err)
	}

	count, err := repo.CountByUser(ctx, 1)
	if err != nil {
		t.Fatalf("CountByUser() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("rows = %d, want 1", count)
	}

	got, err := repo.GetByIdentity(ctx, 1, model.PlatformEtsy, "o1", "i1")
	if err != nil {
		t.Fatalf("GetByIdentity() error = %v", err)
	}
	if got.Price != 12 || got.Quantity != 3 || got.NormalizedStatus != model.SaleStatusRefunded ||
		got.TrackingNumber != "TRK" || got.LastSyncRun != "b2" {
		t.Errorf("row not overwritten: %+v", got)
	}
	if !got.SaleDate.Equal(day(1)) {
		t.Errorf("sale_date changed: %v", got.SaleDate)
	}
}

func TestSaleRepo_IdentityIncludesUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSaleRepository(db)
	ctx := context.Background()

	a := newSale("o1", "i1", 10, 1)
	b := newSale("o1", "i1", 10, 1)
	b.UserID = 2
	for _, s := range []*model.Sale{a, b} {
		if err := repo.Upsert(ctx, s); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	for _, uid := range []int64{1, 2} {
		if n, _ := repo.CountByUser(ctx, uid); n != 1 {
			t.Errorf("user %d rows = %d, want 1", uid, n)
		}
	}
}

func TestSaleRepo_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSaleRepository(db)
	ctx := context.Background()

	s1 := newSale("o1", "i1", 10, 1)
	s2 := newSale("o2", "i1", 20, 1)
	s2.Platform = model.PlatformShopify
	s2.ItemTitle = "Hat"
	s2.SaleDate = day(5)
	s3 := newSale("o3", "i1", 30, 1)
	s3.NormalizedStatus = model.SaleStatusCancelled
	s3.SaleDate = day(9)
	for _, s := range []*model.Sale{s1, s2, s3} {
		if err := repo.Upsert(ctx, s); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter SaleFilter
		want   int64
	}{
		{"全部", SaleFilter{UserID: 1}, 3},
		{"按平台", SaleFilter{UserID: 1, Platform: model.PlatformShopify}, 1},
		{"按状态", SaleFilter{UserID: 1, Status: model.SaleStatusCancelled}, 1},
		{"关键字", SaleFilter{UserID: 1, Keyword: "Hat"}, 1},
		{"开始日期", SaleFilter{UserID: 1, StartDate: ptrTime(day(4))}, 2},
		{"日期区间", SaleFilter{UserID: 1, StartDate: ptrTime(day(4)), EndDate: ptrTime(day(6))}, 1},
		{"其他用户", SaleFilter{UserID: 9}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if total != tt.want {
				t.Errorf("total = %d, want %d", total, tt.want)
			}
		})
	}

	page, total, err := repo.List(ctx, SaleFilter{UserID: 1, Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 || len(page) != 2 || page[0].OrderID != "o3" {
		t.Errorf("paging wrong: total=%d len=%d first=%v", total, len(page), page)
	}
}

func TestSaleRepo_Aggregates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSaleRepository(db)
	ctx := context.Background()

	rows := []*model.Sale{
		newSale("o1", "i1", 10, 2), // etsy Mug 20
		newSale("o1", "i2", 5, 1),  // etsy Mug 5 (same order)
		newSale("o2", "i1", 7, 1),  // shopify Hat 7
		newSale("o3", "i1", 50, 1), // etsy Lamp 50, cancelled
	}
	rows[1].ItemTitle = "Mug"
	rows[2].Platform = model.PlatformShopify
	rows[2].ItemTitle = "Hat"
	rows[3].ItemTitle = "Lamp"
	rows[3].NormalizedStatus = model.SaleStatusCancelled
	for _, s := range rows {
		if err := repo.Upsert(ctx, s); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	w := SaleWindow{UserID: 1}
	stats, err := repo.PlatformBreakdown(ctx, w)
	if err != nil {
		t.Fatalf("PlatformBreakdown() error = %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("platforms = %d, want 2", len(stats))
	}
	etsy := stats[0]
	if etsy.Platform != model.PlatformEtsy || etsy.Revenue != 75 || etsy.Sales != 3 || etsy.Units != 4 || etsy.Orders != 2 {
		t.Errorf("etsy stat = %+v", etsy)
	}

	top, err := repo.TopProducts(ctx, w, 2)
	if err != nil {
		t.Fatalf("TopProducts() error = %v", err)
	}
	if len(top) != 2 || top[0].ItemTitle != "Lamp" || top[1].ItemTitle != "Mug" || top[1].Revenue != 25 {
		t.Errorf("top products = %+v", top)
	}

	w.ExcludeStatuses = []string{model.SaleStatusCancelled, model.SaleStatusRefunded}
	top, err = repo.TopProducts(ctx, w, 10)
	if err != nil {
		t.Fatalf("TopProducts() error = %v", err)
	}
	if len(top) != 2 || top[0].ItemTitle != "Mug" {
		t.Errorf("top products excluding cancelled = %+v", top)
	}

	list, err := repo.ListForAnalytics(ctx, SaleWindow{UserID: 1, Start: ptrTime(day(2))})
	if err != nil {
		t.Fatalf("ListForAnalytics() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("window rows = %d, want 0", len(list))
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

// ==================== CredentialRepository ====================

func TestCredentialRepo_ActiveAndExpiring(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	soon := now.Add(10 * time.Minute)
	later := now.Add(48 * time.Hour)
	creds := []*model.Credential{
		{UserID: 1, Platform: model.PlatformEtsy, StoreID: "s1", IsActive: true, RefreshToken: "r", ExpiresAt: &soon},
		{UserID: 1, Platform: model.PlatformShopify, StoreID: "s2", IsActive: true, ExpiresAt: &soon},
		{UserID: 1, Platform: model.PlatformEbay, StoreID: "s3", IsActive: false, RefreshToken: "r", ExpiresAt: &soon},
		{UserID: 2, Platform: model.PlatformEbay, StoreID: "s4", IsActive: true, RefreshToken: "r", ExpiresAt: &later},
	}
	for _, c := range creds {
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	active, err := repo.ListActiveByUser(ctx, 1)
	if err != nil || len(active) != 2 {
		t.Fatalf("ListActiveByUser() = %d, %v; want 2", len(active), err)
	}
	if active[0].StoreID != "s1" || active[0].TokenStatus != model.TokenStatusValid {
		t.Errorf("unexpected first credential %+v", active[0])
	}

	users, err := repo.ListUsersWithActive(ctx)
	if err != nil || len(users) != 2 || users[0] != 1 || users[1] != 2 {
		t.Errorf("ListUsersWithActive() = %v, %v", users, err)
	}

	expiring, err := repo.FindExpiring(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("FindExpiring() error = %v", err)
	}
	if len(expiring) != 1 || expiring[0].StoreID != "s1" {
		t.Errorf("FindExpiring() = %+v, want only s1", expiring)
	}

	newExp := now.Add(2 * time.Hour)
	if err := repo.UpdateToken(ctx, creds[0].ID, "a2", "r2", &newExp); err != nil {
		t.Fatalf("UpdateToken() error = %v", err)
	}
	got, _ := repo.GetByID(ctx, creds[0].ID)
	if got.AccessToken != "a2" || got.RefreshToken != "r2" {
		t.Errorf("token not updated: %+v", got)
	}

	if err := repo.UpdateTokenStatus(ctx, creds[3].ID, model.TokenStatusInvalid); err != nil {
		t.Fatalf("UpdateTokenStatus() error = %v", err)
	}
	expiring, _ = repo.FindExpiring(ctx, now.Add(72*time.Hour))
	if len(expiring) != 1 || expiring[0].StoreID != "s1" {
		t.Errorf("auth_invalid credential should not be refreshed: %+v", expiring)
	}

	if err := repo.Deactivate(ctx, creds[0].ID); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	active, _ = repo.ListActiveByUser(ctx, 1)
	if len(active) != 1 {
		t.Errorf("active after deactivate = %d, want 1", len(active))
	}
}

func TestCredentialRepo_SaveReauthorizes(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	ctx := context.Background()

	first := &model.Credential{UserID: 1, Platform: model.PlatformEtsy, StoreID: "s1", AccessToken: "a1", IsActive: true}
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := repo.UpdateTokenStatus(ctx, first.ID, model.TokenStatusInvalid); err != nil {
		t.Fatalf("UpdateTokenStatus() error = %v", err)
	}
	if err := repo.Deactivate(ctx, first.ID); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}

	again := &model.Credential{
		UserID: 1, Platform: model.PlatformEtsy, StoreID: "s1", AccessToken: "a2",
		IsActive: true, TokenStatus: model.TokenStatusValid,
	}
	if err := repo.Save(ctx, again); err != nil {
		t.Fatalf("Save() again error = %v", err)
	}

	var count int64
	db.Model(&model.Credential{}).Count(&count)
	if count != 1 {
		t.Fatalf("credential count = %d, want 1", count)
	}

	got, err := repo.GetByStore(ctx, 1, model.PlatformEtsy, "s1")
	if err != nil {
		t.Fatalf("GetByStore() error = %v", err)
	}
	if got.AccessToken != "a2" || !got.IsActive || got.TokenStatus != model.TokenStatusValid {
		t.Errorf("credential not re-authorized: %+v", got)
	}
}

// ==================== SyncRunRepository ====================

func TestSyncRunRepo_CreateAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSyncRunRepository(db)
	ctx := context.Background()

	for i, p := range []string{model.PlatformEtsy, model.PlatformEbay, model.PlatformEtsy} {
		run := &model.SyncRun{
			UserID:    1,
			BatchID:   "batch",
			Platform:  p,
			StartedAt: day(i + 1),
			Outcome:   model.SyncOutcomeSuccess,
			Warnings:  []string{"w"},
		}
		if err := repo.Create(ctx, run); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	runs, err := repo.List(ctx, SyncRunFilter{UserID: 1, Platform: model.PlatformEtsy})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 2 || !runs[0].StartedAt.Equal(day(3)) {
		t.Errorf("runs = %+v", runs)
	}
	if len(runs[0].Warnings) != 1 || runs[0].Warnings[0] != "w" {
		t.Errorf("warnings not round-tripped: %v", runs[0].Warnings)
	}
}

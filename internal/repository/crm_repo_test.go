package repository

import (
	"context"
	"testing"

	"eamcrm/internal/apperr"
	"eamcrm/internal/dbtest"
	"eamcrm/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestTenantLifecycle(t *testing.T) {
	db := dbtest.Seeded(t)
	ctx := context.Background()
	repo := NewTenantRepository(db)

	tn := models.Tenant{Name: "Alpine Wealth", Slug: "alpine-wealth"}
	require.NoError(t, repo.Create(ctx, &tn))
	assert.True(t, tn.IsActive)

	err := repo.Create(ctx, &models.Tenant{Name: "Again", Slug: "alpine-wealth"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	err = repo.Create(ctx, &models.Tenant{Name: "Bad", Slug: "Bad Slug"})
	assert.True(t, apperr.Is(err, apperr.KindInvalid))

	list, err := repo.List(ctx, TenantFilter{Search: "ALPINE"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, repo.Update(ctx, &tn, TenantUpdate{Name: strPtr("Alpine Wealth AG"), Branding: models.JSONB(`{"color":"#003"}`)}))
	assert.Equal(t, "Alpine Wealth AG", tn.Name)
	assert.JSONEq(t, `{"color":"#003"}`, string(tn.Branding))

	require.NoError(t, repo.Deactivate(ctx, &tn))
	list, err = repo.List(ctx, TenantFilter{Search: "alpine"})
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = repo.List(ctx, TenantFilter{Search: "alpine", IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.NoError(t, repo.RequireExisting(ctx, []string{tn.ID, tn.ID}))
	assert.True(t, apperr.Is(repo.RequireExisting(ctx, []string{tn.ID, "bogus"}), apperr.KindInvalid))
}

func TestUserScopingAndRoles(t *testing.T) {
	db := dbtest.Seeded(t)
	ctx := context.Background()
	repo := NewUserRepository(db)
	t1 := dbtest.Tenant(t, db, "t1")
	t2 := dbtest.Tenant(t, db, "t2")

	u := models.User{TenantID: &t1.ID, Email: " Jane@Example.COM ", FirstName: "Jane"}
	require.NoError(t, repo.Create(ctx, &u, "hash", []string{models.RoleTenantUser}))
	assert.Equal(t, "jane@example.com", u.Email)

	err := repo.Create(ctx, &models.User{TenantID: &t2.ID, Email: "jane@example.com"}, "hash", nil)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	err = repo.Create(ctx, &models.User{TenantID: &t2.ID, Email: "x@example.com"}, "hash", []string{"wizard"})
	assert.True(t, apperr.Is(err, apperr.KindInvalid))

	_, err = repo.Get(ctx, u.ID, t2.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	got, err := repo.Get(ctx, u.ID, t1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{models.RoleTenantUser}, got.RoleNames())

	roles := []string{models.RoleTenantAdmin}
	require.NoError(t, repo.Update(ctx, got, UserUpdate{Roles: &roles, LastName: strPtr("Doe")}))
	assert.Equal(t, []string{models.RoleTenantAdmin}, got.RoleNames())
	assert.Equal(t, "Doe", got.LastName)

	list, err := repo.List(ctx, UserFilter{TenantID: t2.ID})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, NewSessionRepository(db).Create(ctx, "jti-1", u.ID, got.CreatedAt.AddDate(0, 0, 1)))
	require.NoError(t, repo.Deactivate(ctx, got))
	var s models.Session
	require.NoError(t, db.First(&s, "jti = ?", "jti-1").Error)
	assert.NotNil(t, s.RevokedAt)
}

func TestClientCRUDAndSearch(t *testing.T) {
	db := dbtest.Seeded(t)
	ctx := context.Background()
	repo := NewClientRepository(db)
	t1 := dbtest.Tenant(t, db, "t1")
	t2 := dbtest.Tenant(t, db, "t2")

	ind := models.Client{FirstName: strPtr("Ada"), LastName: strPtr("Lovelace"), Email: strPtr("ADA@example.com")}
	require.NoError(t, repo.Create(ctx, t1.ID, &ind))
	assert.Equal(t, models.KYCPending, ind.KYCStatus)
	assert.Equal(t, "ada@example.com", *ind.Email)

	ent := models.Client{ClientType: models.ClientEntity, EntityName: strPtr("Lovelace Holdings 100%")}
	require.NoError(t, repo.Create(ctx, t1.ID, &ent))
	assert.Equal(t, "Lovelace Holdings 100%", ent.DisplayName())

	err := repo.Create(ctx, t1.ID, &models.Client{ClientType: models.ClientEntity})
	assert.True(t, apperr.Is(err, apperr.KindInvalid))

	found, err := repo.List(ctx, ClientFilter{TenantID: t1.ID, Search: "lovelace"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	found, err = repo.List(ctx, ClientFilter{TenantID: t1.ID, Search: "100%"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	found, err = repo.List(ctx, ClientFilter{TenantID: t2.ID, Search: "lovelace"})
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = repo.Get(ctx, ind.ID, t2.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, repo.Update(ctx, &ind, ClientUpdate{KYCStatus: strPtr(models.KYCApproved)}))
	assert.Equal(t, models.KYCApproved, ind.KYCStatus)
	err = repo.Update(ctx, &ind, ClientUpdate{KYCStatus: strPtr("maybe")})
	assert.True(t, apperr.Is(err, apperr.KindInvalid))

	require.NoError(t, repo.Delete(ctx, &ent))
	_, err = repo.Get(ctx, ent.ID, t1.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestAccountsAndStats(t *testing.T) {
	db := dbtest.Seeded(t)
	ctx := context.Background()
	t1 := dbtest.Tenant(t, db, "t1")
	t2 := dbtest.Tenant(t, db, "t2")
	clients := NewClientRepository(db)
	accounts := NewAccountRepository(db)

	c := models.Client{FirstName: strPtr("Grace")}
	require.NoError(t, clients.Create(ctx, t1.ID, &c))

	a := models.Account{TenantID: t1.ID, ClientID: c.ID, AccountNumber: "CH-001", Name: "Main", TotalValue: decimal.NewFromInt(1_200_000)}
	require.NoError(t, accounts.Create(ctx, &a))
	b := models.Account{TenantID: t1.ID, ClientID: c.ID, AccountNumber: "CH-002", Name: "Side", TotalValue: decimal.NewFromInt(300_000)}
	require.NoError(t, accounts.Create(ctx, &b))

	dup := models.Account{TenantID: t1.ID, ClientID: c.ID, AccountNumber: "CH-001", Name: "Dup"}
	assert.True(t, apperr.Is(accounts.Create(ctx, &dup), apperr.KindConflict))
	foreign := models.Account{TenantID: t2.ID, ClientID: c.ID, AccountNumber: "X-1", Name: "Foreign"}
	assert.True(t, apperr.Is(accounts.Create(ctx, &foreign), apperr.KindNotFound))

	sums, err := clients.Summaries(ctx, []models.Client{c})
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.True(t, decimal.NewFromInt(1_500_000).Equal(sums[0].TotalAUM))
	assert.Equal(t, "Grace", sums[0].DisplayName)

	stats := NewStatsRepository(db)
	ts, err := stats.Tenant(ctx, t1.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, ts.TotalClients)
	assert.Equal(t, "$1.5M", ts.FormattedAUM)

	ts, err = stats.Tenant(ctx, t2.ID)
	require.NoError(t, err)
	assert.Equal(t, "$0.00", ts.FormattedAUM)

	ps, err := stats.Platform(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, ps.TotalTenants)
	require.NoError(t, stats.Ping(ctx))
}

func TestFormatAUM(t *testing.T) {
	cases := map[string]string{
		"1234567890": "$1.2B",
		"3400000":    "$3.4M",
		"5600":       "$5.6K",
		"999.999":    "$1000.00",
		"7":          "$7.00",
		"0":          "$0.00",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatAUM(decimal.RequireFromString(in)), in)
	}
}

func TestAuditRecordAndList(t *testing.T) {
	db := dbtest.Seeded(t)
	ctx := context.Background()
	repo := NewAuditRepository(db)
	t1 := dbtest.Tenant(t, db, "t1")

	require.NoError(t, repo.Record(ctx, &models.AuditLog{TenantID: &t1.ID, Action: "product.visibility", ResourceType: "product", ResourceID: "p1"}))
	require.NoError(t, repo.Record(ctx, &models.AuditLog{Action: "module.create", ResourceType: "module", ResourceID: "m1"}))

	logs, err := repo.List(ctx, AuditFilter{TenantID: t1.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "product.visibility", logs[0].Action)
	assert.JSONEq(t, `{}`, string(logs[0].Metadata))

	logs, err = repo.List(ctx, AuditFilter{ResourceType: "module"})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestUpdateOfVanishedRowsIsNotFound(t *testing.T) {
	db := dbtest.Seeded(t)
	ctx := context.Background()

	ghost := models.User{ID: uuid.NewString(), Email: "ghost@t1.test"}
	err := NewUserRepository(db).Update(ctx, &ghost, UserUpdate{FirstName: strPtr("Casper")})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, "User not found", apperr.Detail(err))

	gone := models.Client{ID: uuid.NewString(), ClientType: models.ClientIndividual, FirstName: strPtr("Ada")}
	err = NewClientRepository(db).Update(ctx, &gone, ClientUpdate{LastName: strPtr("Lovelace")})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	tn := models.Tenant{ID: uuid.NewString(), Name: "gone", Slug: "gone"}
	err = NewTenantRepository(db).Update(ctx, &tn, TenantUpdate{Name: strPtr("still gone")})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

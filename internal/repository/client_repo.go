package repository

import (
	"context"

	"eamcrm/internal/apperr"
	"eamcrm/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	clientTypes = map[string]bool{models.ClientIndividual: true, models.ClientEntity: true}
	kycStatuses = map[string]bool{
		models.KYCPending: true, models.KYCInProgress: true,
		models.KYCApproved: true, models.KYCRejected: true,
	}
	riskProfiles = map[string]bool{
		"conservative": true, "moderate": true, "balanced": true, "growth": true, "aggressive": true,
	}
)

type ClientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// ClientFilter lists the clients of TenantID, or of every tenant when it
// is empty.
type ClientFilter struct {
	TenantID  string
	Search    string
	KYCStatus string
	Page      Page
}

type ClientUpdate struct {
	FirstName   *string
	LastName    *string
	EntityName  *string
	Email       *string
	Phone       *string
	KYCStatus   *string
	RiskProfile *string
	ExtraData   models.JSONB
}

// ClientSummary is a client with its display name and assets under
// management.
type ClientSummary struct {
	models.Client
	DisplayName string          `json:"display_name"`
	TotalAUM    decimal.Decimal `json:"total_aum"`
}

// Get loads a live client. A non-empty scope hides other tenants' clients.
func (r *ClientRepository) Get(ctx context.Context, id, scope string) (*models.Client, error) {
	if !validID(id) {
		return nil, apperr.NotFound("Client not found")
	}
	q := r.db.WithContext(ctx)
	if scope != "" {
		q = q.Where("tenant_id = ?", scope)
	}
	var c models.Client
	if err := q.First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Client")
	}
	return &c, nil
}

func (r *ClientRepository) List(ctx context.Context, f ClientFilter) ([]models.Client, error) {
	if err := checkIDFilter("tenant_id", f.TenantID); err != nil {
		return nil, err
	}
	page, err := f.Page.Normalize()
	if err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx).Model(&models.Client{})
	if f.TenantID != "" {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if f.KYCStatus != "" {
		q = q.Where("kyc_status = ?", f.KYCStatus)
	}
	if f.Search != "" {
		pat := likePattern(f.Search)
		q = q.Where(`(LOWER(email) LIKE ? ESCAPE '\' OR LOWER(first_name) LIKE ? ESCAPE '\'`+
			` OR LOWER(last_name) LIKE ? ESCAPE '\' OR LOWER(entity_name) LIKE ? ESCAPE '\')`, pat, pat, pat, pat)
	}
	clients := []models.Client{}
	if err := q.Order("created_at desc, id").Offset(page.Skip).Limit(page.Limit).Find(&clients).Error; err != nil {
		return nil, apperr.Internal(err, "list clients")
	}
	return clients, nil
}

func validateClient(c *models.Client) error {
	if c.ClientType == "" {
		c.ClientType = models.ClientIndividual
	}
	if !clientTypes[c.ClientType] {
		return apperr.Invalid("client_type must be individual or entity")
	}
	if c.ClientType == models.ClientEntity && (c.EntityName == nil || *c.EntityName == "") {
		return apperr.Invalid("entity_name is required for entity clients")
	}
	if c.ClientType == models.ClientIndividual && (c.FirstName == nil || *c.FirstName == "") && (c.LastName == nil || *c.LastName == "") {
		return apperr.Invalid("first_name or last_name is required for individual clients")
	}
	if c.Email != nil && *c.Email != "" {
		email, err := NormalizeEmail(*c.Email)
		if err != nil {
			return err
		}
		c.Email = &email
	}
	if c.RiskProfile != nil && !riskProfiles[*c.RiskProfile] {
		return apperr.Invalid("unknown risk_profile %q", *c.RiskProfile)
	}
	return nil
}

// Create stores c under tenantID.
func (r *ClientRepository) Create(ctx context.Context, tenantID string, c *models.Client) error {
	if tenantID == "" {
		return apperr.Invalid("User must belong to a tenant")
	}
	c.TenantID = tenantID
	c.KYCStatus = models.KYCPending
	if err := validateClient(c); err != nil {
		return err
	}
	return dbErr(r.db.WithContext(ctx).Create(c).Error, "create client")
}

func (r *ClientRepository) Update(ctx context.Context, c *models.Client, u ClientUpdate) error {
	next := *c
	updates := map[string]any{}
	assign := func(col string, dst **string, v *string) {
		if v != nil {
			*dst = v
			updates[col] = *v
		}
	}
	assign("first_name", &next.FirstName, u.FirstName)
	assign("last_name", &next.LastName, u.LastName)
	assign("entity_name", &next.EntityName, u.EntityName)
	assign("email", &next.Email, u.Email)
	assign("phone", &next.Phone, u.Phone)
	assign("risk_profile", &next.RiskProfile, u.RiskProfile)
	if u.KYCStatus != nil {
		if !kycStatuses[*u.KYCStatus] {
			return apperr.Invalid("unknown kyc_status %q", *u.KYCStatus)
		}
		updates["kyc_status"] = *u.KYCStatus
	}
	if u.ExtraData != nil {
		updates["extra_data"] = u.ExtraData
	}
	if err := validateClient(&next); err != nil {
		return err
	}
	if next.Email != nil && u.Email != nil {
		updates["email"] = *next.Email
	}
	if len(updates) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	if err := db.Model(c).Updates(updates).Error; err != nil {
		return dbErr(err, "update client")
	}
	if err := db.First(c, "id = ?", c.ID).Error; err != nil {
		return notFound(err, "Client")
	}
	return nil
}

// Delete soft-deletes c; its accounts stay for reporting.
func (r *ClientRepository) Delete(ctx context.Context, c *models.Client) error {
	if err := r.db.WithContext(ctx).Delete(c).Error; err != nil {
		return apperr.Internal(err, "delete client")
	}
	return nil
}

// Summaries attaches display names and per-client AUM.
func (r *ClientRepository) Summaries(ctx context.Context, clients []models.Client) ([]ClientSummary, error) {
	out := make([]ClientSummary, 0, len(clients))
	if len(clients) == 0 {
		return out, nil
	}
	ids := make([]string, len(clients))
	for i, c := range clients {
		ids[i] = c.ID
	}
	var rows []struct {
		ClientID string
		Total    decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&models.Account{}).
		Select("client_id, COALESCE(SUM(total_value), 0) AS total").
		Where("client_id IN ?", ids).
		Group("client_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal(err, "sum client aum")
	}
	aum := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		aum[row.ClientID] = row.Total
	}
	for _, c := range clients {
		out = append(out, ClientSummary{Client: c, DisplayName: c.DisplayName(), TotalAUM: aum[c.ID]})
	}
	return out, nil
}

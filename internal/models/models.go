package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// System role names.
const (
	RoleSuperAdmin    = "super_admin"
	RolePlatformAdmin = "platform_admin"
	RolePlatformUser  = "platform_user"
	RoleTenantAdmin   = "tenant_admin"
	RoleTenantUser    = "tenant_user"
)

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

type Tenant struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Slug         string    `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	Branding     JSONB     `gorm:"type:jsonb" json:"branding"`
	Settings     JSONB     `gorm:"type:jsonb" json:"settings"`
	ContactEmail *string   `gorm:"size:255" json:"contact_email,omitempty"`
	ContactPhone *string   `gorm:"size:50" json:"contact_phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (t *Tenant) BeforeCreate(*gorm.DB) error { newID(&t.ID); return nil }

type Role struct {
	ID          int    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`
	IsSystem    bool   `gorm:"not null;default:false" json:"is_system"`
}

type User struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID     *string   `gorm:"type:uuid;index" json:"tenant_id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `gorm:"not null" json:"-"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	Roles        []Role    `gorm:"many2many:user_roles" json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(*gorm.DB) error { newID(&u.ID); return nil }

func (u User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

const (
	ClientIndividual = "individual"
	ClientEntity     = "entity"

	KYCPending    = "pending"
	KYCInProgress = "in_progress"
	KYCApproved   = "approved"
	KYCRejected   = "rejected"
)

type Client struct {
	ID          string         `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID    string         `gorm:"type:uuid;index;not null" json:"tenant_id"`
	ClientType  string         `gorm:"size:20;not null;default:individual" json:"client_type"`
	FirstName   *string        `gorm:"size:100" json:"first_name,omitempty"`
	LastName    *string        `gorm:"size:100" json:"last_name,omitempty"`
	EntityName  *string        `gorm:"size:255" json:"entity_name,omitempty"`
	Email       *string        `gorm:"size:255" json:"email,omitempty"`
	Phone       *string        `gorm:"size:50" json:"phone,omitempty"`
	KYCStatus   string         `gorm:"size:20;not null;default:pending" json:"kyc_status"`
	RiskProfile *string        `gorm:"size:30" json:"risk_profile,omitempty"`
	ExtraData   JSONB          `gorm:"type:jsonb" json:"extra_data"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Client) BeforeCreate(*gorm.DB) error { newID(&c.ID); return nil }

// DisplayName is the entity name for entities, the person's name otherwise.
func (c Client) DisplayName() string {
	if c.ClientType == ClientEntity && c.EntityName != nil {
		return *c.EntityName
	}
	name := ""
	if c.FirstName != nil {
		name = *c.FirstName
	}
	if c.LastName != nil {
		if name != "" {
			name += " "
		}
		name += *c.LastName
	}
	if name == "" && c.Email != nil {
		return *c.Email
	}
	return name
}

type Account struct {
	ID            string          `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID      string          `gorm:"type:uuid;index;not null" json:"tenant_id"`
	ClientID      string          `gorm:"type:uuid;index;not null" json:"client_id"`
	AccountNumber string          `gorm:"size:50;not null" json:"account_number"`
	Name          string          `gorm:"size:255;not null" json:"name"`
	AccountType   string          `gorm:"size:30;not null;default:custody" json:"account_type"`
	Currency      string          `gorm:"size:3;not null;default:USD" json:"currency"`
	TotalValue    decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"total_value"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (a *Account) BeforeCreate(*gorm.DB) error { newID(&a.ID); return nil }

const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskCancelled  = "cancelled"
)

// Task is a follow-up item for a tenant's staff, optionally about a client.
type Task struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID     string     `gorm:"type:uuid;index;not null" json:"tenant_id"`
	ClientID     *string    `gorm:"type:uuid;index" json:"client_id"`
	AssignedToID *string    `gorm:"type:uuid;index" json:"assigned_to_id"`
	CreatedByID  *string    `gorm:"type:uuid" json:"created_by_id"`
	Title        string     `gorm:"size:255;not null" json:"title"`
	Description  *string    `gorm:"type:text" json:"description,omitempty"`
	TaskType     string     `gorm:"size:30;not null;default:general" json:"task_type"`
	Status       string     `gorm:"size:20;not null;default:pending;index" json:"status"`
	DueDate      *time.Time `json:"due_date"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (t *Task) BeforeCreate(*gorm.DB) error { newID(&t.ID); return nil }

type AuditLog struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID     *string   `gorm:"type:uuid;index" json:"tenant_id,omitempty"`
	UserID       *string   `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Action       string    `gorm:"not null" json:"action"`
	ResourceType string    `gorm:"size:50" json:"resource_type"`
	ResourceID   string    `gorm:"size:64" json:"resource_id"`
	Metadata     JSONB     `gorm:"type:jsonb" json:"metadata"`
	CreatedAt    time.Time `json:"created_at"`
}

type Session struct {
	JTI       string     `gorm:"primaryKey;size:64" json:"jti"`
	UserID    string     `gorm:"type:uuid;index;not null" json:"user_id"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&Tenant{}, &Role{}, &User{}, &Session{}, &Client{}, &Account{}, &Task{}, &AuditLog{},
		&Module{}, &TenantModule{}, &ProductCategory{}, &Product{}, &TenantProduct{},
	}
}

// Package seed installs the system roles, the module registry and the
// platform operator's tenant and admin account. Every step is idempotent
// so it runs on each start.
package seed

import (
	"context"
	"errors"

	"eamcrm/internal/auth"
	"eamcrm/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PlatformTenantID is the fixed id of the platform operator's own tenant.
const PlatformTenantID = "00000000-0000-0000-0000-000000000000"

type moduleDef struct {
	code, name, nameZh string
	category           models.ModuleCategory
	core               bool
}

var systemModules = []moduleDef{
	{"core_platform", "Core Platform", "核心平台", models.ModuleBasic, true},
	{"client_onboarding", "Client Onboarding & KYC", "客户开户与KYC", models.ModuleBasic, true},
	{"portfolio_overview", "Client Portfolio Overview & Analytics", "客户投资组合概览与分析", models.ModuleBasic, true},
	{"crm_communications", "CRM Communications System", "CRM沟通系统", models.ModuleBasic, true},
	{"custom_portfolio", "Custom Investment Portfolio", "定制投资组合", models.ModuleInvestment, false},
	{"private_banking", "Private Banking Products", "私人银行产品", models.ModuleInvestment, false},
	{"eam_products", "EAM Investment Products", "EAM投资产品", models.ModuleInvestment, false},
	{"insurance_services", "Insurance Services", "保险服务", models.ModuleInvestment, false},
	{"cd_solutions", "CD Solutions", "存款证方案", models.ModuleInvestment, false},
	{"quant_investing", "Quantitative Investing", "量化投资", models.ModuleInvestment, false},
	{"alternative_investments", "Alternative Investments", "另类投资", models.ModuleInvestment, false},
	{"expert_advice", "Industry Expert Advice", "行业专家建议", models.ModuleAnalytics, false},
	{"macro_analysis", "Macro Analysis", "宏观分析", models.ModuleAnalytics, false},
	{"ai_recommendations", "AI Recommendations", "AI推荐", models.ModuleAnalytics, false},
	{"risk_assessment", "Asset Risk Assessment", "资产风险评估", models.ModuleAnalytics, false},
}

// Roles inserts the system roles that are missing.
func Roles(ctx context.Context, db *gorm.DB) error {
	for _, r := range auth.SystemRoles {
		role := r
		err := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"description", "is_system"}),
		}).Create(&role).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// Modules inserts missing system modules and refreshes names of existing
// ones. A module once core stays core; codes never change.
func Modules(ctx context.Context, db *gorm.DB) error {
	for _, d := range systemModules {
		nameZh := d.nameZh
		var existing models.Module
		err := db.WithContext(ctx).First(&existing, "code = ?", d.code).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			m := models.Module{
				Code: d.code, Name: d.name, NameZh: &nameZh, Version: "1.0.0",
				Category: d.category, IsCore: d.core, IsActive: true,
			}
			if err := db.WithContext(ctx).Create(&m).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			updates := map[string]any{"name": d.name, "name_zh": nameZh, "category": d.category}
			if d.core && !existing.IsCore {
				updates["is_core"] = true
				updates["is_active"] = true
			}
			if err := db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// Admin ensures the platform tenant and a super admin login. An empty
// password skips the user.
func Admin(ctx context.Context, db *gorm.DB, lg *zap.SugaredLogger, email, password string) error {
	tenant := models.Tenant{
		ID: PlatformTenantID, Name: "Platform Operator", Slug: "platform", IsActive: true,
		Settings: models.MustJSONB(map[string]any{"is_platform_tenant": true}),
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&tenant).Error
	if err != nil {
		return err
	}
	if password == "" {
		lg.Warnw("SEED_ADMIN_PASSWORD unset, skipping admin seed", "email", email)
		return nil
	}
	var n int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if err := auth.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	var roles []models.Role
	if err := db.WithContext(ctx).Where("name IN ?", []string{models.RoleSuperAdmin, models.RolePlatformAdmin}).Find(&roles).Error; err != nil {
		return err
	}
	tid := PlatformTenantID
	u := models.User{
		TenantID: &tid, Email: email, FirstName: "Admin", LastName: "User",
		PasswordHash: hash, IsActive: true, Roles: roles,
	}
	if err := db.WithContext(ctx).Create(&u).Error; err != nil {
		return err
	}
	lg.Infow("seeded platform admin", "email", email)
	return nil
}

// All runs every seed step.
func All(ctx context.Context, db *gorm.DB, lg *zap.SugaredLogger, adminEmail, adminPassword string) error {
	if err := Roles(ctx, db); err != nil {
		return err
	}
	if err := Modules(ctx, db); err != nil {
		return err
	}
	return Admin(ctx, db, lg, adminEmail, adminPassword)
}

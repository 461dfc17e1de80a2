package handlers

import (
	"net/http"

	"eamcrm/internal/apperr"
	"eamcrm/internal/auth"
	"eamcrm/internal/models"
	"eamcrm/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func ListClients(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := idParams(r, "tenant_id"); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		c := auth.FromContext(r.Context())
		q := r.URL.Query()
		scope, err := auth.ListScope(c, q.Get("tenant_id"))
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		page, err := pageParams(r)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		repo := repository.NewClientRepository(env.DB)
		clients, err := repo.List(r.Context(), repository.ClientFilter{
			TenantID: scope, Search: q.Get("search"), KYCStatus: q.Get("kyc_status"), Page: page,
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		out, err := repo.Summaries(r.Context(), clients)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, out)
	}
}

func GetClient(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		repo := repository.NewClientRepository(env.DB)
		client, err := repo.Get(r.Context(), chi.URLParam(r, "id"), readScope(c))
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		out, err := repo.Summaries(r.Context(), []models.Client{*client})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, out[0])
	}
}

type clientReq struct {
	ClientType  string       `json:"client_type"`
	FirstName   *string      `json:"first_name"`
	LastName    *string      `json:"last_name"`
	EntityName  *string      `json:"entity_name"`
	Email       *string      `json:"email"`
	Phone       *string      `json:"phone"`
	RiskProfile *string      `json:"risk_profile"`
	ExtraData   models.JSONB `json:"extra_data"`
}

// CreateClient adds a client to the caller's tenant, or to ?tenant_id=
// for platform managers. New clients start with KYC pending.
func CreateClient(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := idParams(r, "tenant_id"); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		c := auth.FromContext(r.Context())
		tenantID, err := tenantFor(c, r.URL.Query().Get("tenant_id"))
		if err == nil {
			err = auth.Authorize(c, auth.ActionWriteClients, &tenantID)
		}
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		var req clientReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		client := models.Client{
			ClientType: req.ClientType, FirstName: req.FirstName, LastName: req.LastName,
			EntityName: req.EntityName, Email: req.Email, Phone: req.Phone,
			RiskProfile: req.RiskProfile, ExtraData: req.ExtraData,
		}
		err = env.inTx(r.Context(), func(tx *gorm.DB) error {
			if err := repository.NewClientRepository(tx).Create(r.Context(), tenantID, &client); err != nil {
				return err
			}
			return audit(r.Context(), tx, c, &tenantID, "client.create", "client", client.ID, nil)
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondStatus(w, http.StatusCreated, repository.ClientSummary{Client: client, DisplayName: client.DisplayName()})
	}
}

type clientUpdateReq struct {
	FirstName   *string      `json:"first_name"`
	LastName    *string      `json:"last_name"`
	EntityName  *string      `json:"entity_name"`
	Email       *string      `json:"email"`
	Phone       *string      `json:"phone"`
	KYCStatus   *string      `json:"kyc_status"`
	RiskProfile *string      `json:"risk_profile"`
	ExtraData   models.JSONB `json:"extra_data"`
}

func UpdateClient(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		var req clientUpdateReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		var client *models.Client
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			repo := repository.NewClientRepository(tx)
			var err error
			if client, err = repo.Get(r.Context(), chi.URLParam(r, "id"), readScope(c)); err != nil {
				return err
			}
			if err := auth.Authorize(c, auth.ActionWriteClients, &client.TenantID); err != nil {
				return err
			}
			err = repo.Update(r.Context(), client, repository.ClientUpdate{
				FirstName: req.FirstName, LastName: req.LastName, EntityName: req.EntityName,
				Email: req.Email, Phone: req.Phone, KYCStatus: req.KYCStatus,
				RiskProfile: req.RiskProfile, ExtraData: req.ExtraData,
			})
			if err != nil {
				return err
			}
			return audit(r.Context(), tx, c, &client.TenantID, "client.update", "client", client.ID, nil)
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, repository.ClientSummary{Client: *client, DisplayName: client.DisplayName()})
	}
}

// DeleteClient soft-deletes a client. Tenant admins only.
func DeleteClient(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			repo := repository.NewClientRepository(tx)
			client, err := repo.Get(r.Context(), chi.URLParam(r, "id"), readScope(c))
			if err != nil {
				return err
			}
			if err := auth.Authorize(c, auth.ActionManageTenant, &client.TenantID); err != nil {
				return err
			}
			if err := repo.Delete(r.Context(), client); err != nil {
				return err
			}
			return audit(r.Context(), tx, c, &client.TenantID, "client.delete", "client", client.ID, nil)
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListClientAccounts(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		client, err := repository.NewClientRepository(env.DB).Get(r.Context(), chi.URLParam(r, "id"), readScope(c))
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		page, err := pageParams(r)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		accounts, err := repository.NewAccountRepository(env.DB).List(r.Context(), repository.AccountFilter{
			TenantID: client.TenantID, ClientID: client.ID, Page: page,
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, accounts)
	}
}

func ListAccounts(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := idParams(r, "tenant_id", "client_id"); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		c := auth.FromContext(r.Context())
		q := r.URL.Query()
		scope, err := auth.ListScope(c, q.Get("tenant_id"))
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		page, err := pageParams(r)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		accounts, err := repository.NewAccountRepository(env.DB).List(r.Context(), repository.AccountFilter{
			TenantID: scope, ClientID: q.Get("client_id"), Page: page,
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, accounts)
	}
}

func GetAccount(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		a, err := repository.NewAccountRepository(env.DB).Get(r.Context(), chi.URLParam(r, "id"), readScope(c))
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, a)
	}
}

type accountReq struct {
	ClientID      string          `json:"client_id"`
	AccountNumber string          `json:"account_number"`
	Name          string          `json:"name"`
	AccountType   string          `json:"account_type"`
	Currency      string          `json:"currency"`
	TotalValue    decimal.Decimal `json:"total_value"`
}

// CreateAccount opens an account for a client. The account inherits the
// client's tenant.
func CreateAccount(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		if !c.Can(auth.ActionWriteClients) {
			respondError(w, r, env.Log, apperr.Forbidden("Insufficient permissions"))
			return
		}
		var req accountReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		a := models.Account{
			TenantID: writeScope(c), ClientID: req.ClientID, AccountNumber: req.AccountNumber,
			Name: req.Name, AccountType: req.AccountType, Currency: req.Currency, TotalValue: req.TotalValue,
		}
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			if err := repository.NewAccountRepository(tx).Create(r.Context(), &a); err != nil {
				return err
			}
			return audit(r.Context(), tx, c, &a.TenantID, "account.create", "account", a.ID, map[string]any{"client_id": a.ClientID})
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondStatus(w, http.StatusCreated, a)
	}
}

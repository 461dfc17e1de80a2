package httpserver

import (
	"net/http"

	"eamcrm/internal/auth"
	"eamcrm/internal/httpserver/handlers"
	"eamcrm/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(env *handlers.Env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, logger.Requests(env.Log))
	if env.Metrics != nil {
		r.Use(env.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", env.Metrics.Handler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/auth/login", handlers.Login(env))
		api.Get("/stats/health", handlers.Health(env))

		api.Group(func(protected chi.Router) {
			protected.Use(auth.JWTAuth(env.DB, env.Issuer))
			protected.Post("/auth/logout", handlers.Logout(env))
			protected.Get("/auth/me", handlers.Me(env))
			protected.Post("/auth/password", handlers.ChangePassword(env))

			protected.Get("/modules", handlers.ListModules(env))
			protected.Post("/modules/{id}/enable", handlers.SetModuleEnabled(env, true))
			protected.Post("/modules/{id}/disable", handlers.SetModuleEnabled(env, false))
			protected.Group(func(platform chi.Router) {
				platform.Use(auth.RequireCapability(auth.ActionReadPlatform))
				platform.Get("/modules/all", handlers.ListAllModules(env))
				platform.Get("/products/defaults", handlers.ListDefaultProducts(env))
				platform.Get("/tenants", handlers.ListTenants(env))
			})
			protected.Group(func(admin chi.Router) {
				admin.Use(auth.RequireCapability(auth.ActionManagePlatform))
				admin.Post("/modules", handlers.CreateModule(env))
				admin.Patch("/modules/{id}", handlers.UpdateModule(env))
				admin.Post("/products/defaults", handlers.CreateDefaultProduct(env))
				admin.Patch("/products/{id}/sync", handlers.UpdateProductSync(env))
				admin.Post("/product-categories/defaults", handlers.CreateDefaultCategory(env))
				admin.Post("/tenants", handlers.CreateTenant(env))
				admin.Delete("/tenants/{id}", handlers.DeleteTenant(env))
			})

			protected.Get("/product-categories", handlers.ListCategories(env))
			protected.Get("/products", handlers.ListProducts(env))
			protected.Post("/products", handlers.CreateProduct(env))
			protected.Get("/products/{id}", handlers.GetProduct(env))
			protected.Patch("/products/{id}", handlers.UpdateProduct(env))
			protected.Patch("/products/{id}/visibility", handlers.UpdateProductVisibility(env))
			protected.Delete("/products/{id}", handlers.DeleteProduct(env))

			protected.Get("/tenants/{id}", handlers.GetTenant(env))
			protected.Patch("/tenants/{id}", handlers.UpdateTenant(env))

			protected.Get("/users", handlers.ListUsers(env))
			protected.Post("/users", handlers.CreateUser(env))
			protected.Get("/users/{id}", handlers.GetUser(env))
			protected.Patch("/users/{id}", handlers.UpdateUser(env))
			protected.Delete("/users/{id}", handlers.DeleteUser(env))
			protected.Get("/roles", handlers.ListRoles(env))

			protected.Get("/clients", handlers.ListClients(env))
			protected.Post("/clients", handlers.CreateClient(env))
			protected.Get("/clients/{id}", handlers.GetClient(env))
			protected.Patch("/clients/{id}", handlers.UpdateClient(env))
			protected.Delete("/clients/{id}", handlers.DeleteClient(env))
			protected.Get("/clients/{id}/accounts", handlers.ListClientAccounts(env))
			protected.Get("/accounts", handlers.ListAccounts(env))
			protected.Post("/accounts", handlers.CreateAccount(env))
			protected.Get("/accounts/{id}", handlers.GetAccount(env))

			protected.Get("/tasks", handlers.ListTasks(env))
			protected.Post("/tasks", handlers.CreateTask(env))
			protected.Get("/tasks/{id}", handlers.GetTask(env))
			protected.Patch("/tasks/{id}", handlers.UpdateTask(env))
			protected.Post("/tasks/{id}/complete", handlers.CompleteTask(env))

			protected.Get("/stats/dashboard", handlers.Dashboard(env))
			protected.Get("/stats/tenant", handlers.TenantStats(env))
			protected.Get("/audit-logs", handlers.ListAuditLogs(env))
		})
	})
	return r
}

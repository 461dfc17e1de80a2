package handlers

import (
	"net/http"
	"time"

	"eamcrm/internal/auth"
	"eamcrm/internal/models"
	"eamcrm/internal/repository"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// ListTasks lists tasks in the caller's scope. assigned_to_me=true keeps
// only the caller's own tasks.
func ListTasks(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := idParams(r, "tenant_id", "client_id", "assigned_to_id"); err != nil {
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
		mine, err := boolParam(r, "assigned_to_me", false)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		page, err := pageParams(r)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		f := repository.TaskFilter{
			TenantID: scope, ClientID: q.Get("client_id"), AssignedToID: q.Get("assigned_to_id"),
			Status: q.Get("status"), TaskType: q.Get("task_type"), Page: page,
		}
		if mine {
			f.AssignedToID = c.Subject
		}
		tasks, err := repository.NewTaskRepository(env.DB).List(r.Context(), f)
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, tasks)
	}
}

func GetTask(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		t, err := repository.NewTaskRepository(env.DB).Get(r.Context(), chi.URLParam(r, "id"), readScope(c))
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, t)
	}
}

type taskReq struct {
	Title        string     `json:"title"`
	Description  *string    `json:"description"`
	TaskType     string     `json:"task_type"`
	ClientID     *string    `json:"client_id"`
	AssignedToID *string    `json:"assigned_to_id"`
	DueDate      *time.Time `json:"due_date"`
}

// CreateTask adds a task to the caller's tenant, or to ?tenant_id= for
// platform managers. The caller is recorded as its creator.
func CreateTask(env *Env) http.HandlerFunc {
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
		var req taskReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		creator := c.Subject
		t := models.Task{
			TenantID: tenantID, Title: req.Title, Description: req.Description, TaskType: req.TaskType,
			ClientID: req.ClientID, AssignedToID: req.AssignedToID, CreatedByID: &creator, DueDate: req.DueDate,
		}
		err = env.inTx(r.Context(), func(tx *gorm.DB) error {
			if err := repository.NewTaskRepository(tx).Create(r.Context(), &t); err != nil {
				return err
			}
			return audit(r.Context(), tx, c, &tenantID, "task.create", "task", t.ID, map[string]any{"task_type": t.TaskType})
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondStatus(w, http.StatusCreated, t)
	}
}

type taskUpdateReq struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	Status       *string    `json:"status"`
	AssignedToID *string    `json:"assigned_to_id"`
	DueDate      *time.Time `json:"due_date"`
}

func UpdateTask(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		var req taskUpdateReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		var t *models.Task
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			repo := repository.NewTaskRepository(tx)
			var err error
			if t, err = repo.Get(r.Context(), chi.URLParam(r, "id"), readScope(c)); err != nil {
				return err
			}
			if err := auth.Authorize(c, auth.ActionWriteClients, &t.TenantID); err != nil {
				return err
			}
			from := t.Status
			err = repo.Update(r.Context(), t, repository.TaskUpdate{
				Title: req.Title, Description: req.Description, Status: req.Status,
				AssignedToID: req.AssignedToID, DueDate: req.DueDate,
			})
			if err != nil {
				return err
			}
			return audit(r.Context(), tx, c, &t.TenantID, "task.update", "task", t.ID, map[string]any{"from": from, "to": t.Status})
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, t)
	}
}

func CompleteTask(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := auth.FromContext(r.Context())
		var t *models.Task
		err := env.inTx(r.Context(), func(tx *gorm.DB) error {
			repo := repository.NewTaskRepository(tx)
			var err error
			if t, err = repo.Get(r.Context(), chi.URLParam(r, "id"), readScope(c)); err != nil {
				return err
			}
			if err := auth.Authorize(c, auth.ActionWriteClients, &t.TenantID); err != nil {
				return err
			}
			if err := repo.Complete(r.Context(), t); err != nil {
				return err
			}
			return audit(r.Context(), tx, c, &t.TenantID, "task.complete", "task", t.ID, nil)
		})
		if err != nil {
			respondError(w, r, env.Log, err)
			return
		}
		respondJSON(w, t)
	}
}

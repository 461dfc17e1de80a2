package repository

import (
	"context"
	"time"

	"eamcrm/internal/apperr"
	"eamcrm/internal/models"

	"gorm.io/gorm"
)

var (
	taskTypes = map[string]bool{
		"general": true, "onboarding": true, "kyc_review": true, "document_request": true,
		"portfolio_review": true, "compliance": true, "follow_up": true,
	}
	taskStatuses = map[string]bool{
		models.TaskPending: true, models.TaskInProgress: true,
		models.TaskCompleted: true, models.TaskCancelled: true,
	}
)

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// TaskFilter lists the tasks of TenantID, or of every tenant when it is
// empty. The other fields narrow the listing when set.
type TaskFilter struct {
	TenantID     string
	ClientID     string
	AssignedToID string
	Status       string
	TaskType     string
	Page         Page
}

// TaskUpdate changes the fields that are set. An empty AssignedToID
// unassigns the task.
type TaskUpdate struct {
	Title        *string
	Description  *string
	Status       *string
	AssignedToID *string
	DueDate      *time.Time
}

func (r *TaskRepository) Get(ctx context.Context, id, scope string) (*models.Task, error) {
	if !validID(id) {
		return nil, apperr.NotFound("Task not found")
	}
	q := r.db.WithContext(ctx)
	if scope != "" {
		q = q.Where("tenant_id = ?", scope)
	}
	var t models.Task
	if err := q.First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Task")
	}
	return &t, nil
}

func (r *TaskRepository) List(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	for field, id := range map[string]string{"tenant_id": f.TenantID, "client_id": f.ClientID, "assigned_to_id": f.AssignedToID} {
		if err := checkIDFilter(field, id); err != nil {
			return nil, err
		}
	}
	if f.Status != "" && !taskStatuses[f.Status] {
		return nil, apperr.Invalid("unknown status %q", f.Status)
	}
	page, err := f.Page.Normalize()
	if err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx).Model(&models.Task{})
	if f.TenantID != "" {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if f.ClientID != "" {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.AssignedToID != "" {
		q = q.Where("assigned_to_id = ?", f.AssignedToID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.TaskType != "" {
		q = q.Where("task_type = ?", f.TaskType)
	}
	tasks := []models.Task{}
	if err := q.Order("created_at desc, id").Offset(page.Skip).Limit(page.Limit).Find(&tasks).Error; err != nil {
		return nil, apperr.Internal(err, "list tasks")
	}
	return tasks, nil
}

// Create stores a pending task. Its client and assignee, when given, must
// belong to the task's tenant.
func (r *TaskRepository) Create(ctx context.Context, t *models.Task) error {
	if t.TenantID == "" {
		return apperr.Invalid("User must belong to a tenant")
	}
	if t.Title == "" || len(t.Title) > 255 {
		return apperr.Invalid("title is required and must be at most 255 characters")
	}
	if t.TaskType == "" {
		t.TaskType = "general"
	}
	if !taskTypes[t.TaskType] {
		return apperr.Invalid("unknown task_type %q", t.TaskType)
	}
	t.Status = models.TaskPending
	t.CompletedAt = nil
	if t.ClientID != nil {
		if _, err := NewClientRepository(r.db).Get(ctx, *t.ClientID, t.TenantID); err != nil {
			return err
		}
	}
	if t.AssignedToID != nil {
		if err := r.checkAssignee(ctx, t.TenantID, *t.AssignedToID); err != nil {
			return err
		}
	}
	return dbErr(r.db.WithContext(ctx).Create(t).Error, "create task")
}

func (r *TaskRepository) checkAssignee(ctx context.Context, tenantID, userID string) error {
	u, err := NewUserRepository(r.db).Get(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if !u.IsActive {
		return apperr.Invalid("Cannot assign a task to an inactive user")
	}
	return nil
}

// Update applies u to t. Moving into completed stamps CompletedAt and
// moving out of it clears the stamp.
func (r *TaskRepository) Update(ctx context.Context, t *models.Task, u TaskUpdate) error {
	updates := map[string]any{}
	if u.Title != nil {
		if *u.Title == "" || len(*u.Title) > 255 {
			return apperr.Invalid("title is required and must be at most 255 characters")
		}
		updates["title"] = *u.Title
	}
	if u.Description != nil {
		updates["description"] = *u.Description
	}
	if u.DueDate != nil {
		updates["due_date"] = *u.DueDate
	}
	if u.AssignedToID != nil {
		if *u.AssignedToID == "" {
			updates["assigned_to_id"] = nil
		} else {
			if err := r.checkAssignee(ctx, t.TenantID, *u.AssignedToID); err != nil {
				return err
			}
			updates["assigned_to_id"] = *u.AssignedToID
		}
	}
	if u.Status != nil && *u.Status != t.Status {
		if !taskStatuses[*u.Status] {
			return apperr.Invalid("unknown status %q", *u.Status)
		}
		updates["status"] = *u.Status
		switch {
		case *u.Status == models.TaskCompleted:
			updates["completed_at"] = time.Now().UTC()
		case t.Status == models.TaskCompleted:
			updates["completed_at"] = nil
		}
	}
	if len(updates) == 0 {
		return nil
	}
	return r.save(ctx, t, updates)
}

// Complete marks t completed. Completing a completed task is a conflict;
// a cancelled task has to be reopened first.
func (r *TaskRepository) Complete(ctx context.Context, t *models.Task) error {
	switch t.Status {
	case models.TaskCompleted:
		return apperr.Conflict("Task is already completed")
	case models.TaskCancelled:
		return apperr.Invalid("Cancelled tasks cannot be completed")
	}
	return r.save(ctx, t, map[string]any{"status": models.TaskCompleted, "completed_at": time.Now().UTC()})
}

func (r *TaskRepository) save(ctx context.Context, t *models.Task, updates map[string]any) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(t).Updates(updates).Error; err != nil {
		return dbErr(err, "update task")
	}
	if err := db.First(t, "id = ?", t.ID).Error; err != nil {
		return notFound(err, "Task")
	}
	return nil
}

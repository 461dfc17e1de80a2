package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"eamcrm/internal/apperr"
	"eamcrm/internal/auth"
	"eamcrm/internal/events"
	"eamcrm/internal/metrics"
	"eamcrm/internal/models"
	"eamcrm/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Env carries what handlers share. Write handlers run their repository
// calls on a request transaction opened from DB.
type Env struct {
	DB      *gorm.DB
	Log     *zap.SugaredLogger
	Issuer  *auth.Issuer
	Events  events.Publisher
	Metrics *metrics.Metrics
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	respondStatus(w, http.StatusOK, v)
}

func respondStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// respondError renders err as {"detail": ...}. Internal errors are logged
// and their cause is not sent to the client.
func respondError(w http.ResponseWriter, r *http.Request, lg *zap.SugaredLogger, err error) {
	status := apperr.StatusCode(err)
	if status >= http.StatusInternalServerError {
		lg.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	respondStatus(w, status, map[string]string{"detail": apperr.Detail(err)})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Invalid("request body required")
		}
		return apperr.Invalid("invalid JSON body: %v", err)
	}
	return nil
}

func pageParams(r *http.Request) (repository.Page, error) {
	var p repository.Page
	q := r.URL.Query()
	if s := q.Get("skip"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return p, apperr.Invalid("skip must be an integer")
		}
		p.Skip = n
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return p, apperr.Invalid("limit must be an integer")
		}
		if n == 0 {
			return p, apperr.Invalid("limit must be between 1 and %d", repository.MaxLimit)
		}
		p.Limit = n
	}
	return p.Normalize()
}

// idParams rejects malformed id query parameters before they reach uuid
// columns.
func idParams(r *http.Request, names ...string) error {
	q := r.URL.Query()
	for _, name := range names {
		if s := q.Get(name); s != "" {
			if _, err := uuid.Parse(s); err != nil {
				return apperr.Invalid("%s must be a valid UUID", name)
			}
		}
	}
	return nil
}

func boolParam(r *http.Request, name string, def bool) (bool, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def, apperr.Invalid("%s must be a boolean", name)
	}
	return b, nil
}

// readScope is the tenant filter for single-resource reads: empty for
// cross-tenant readers, the caller's tenant otherwise.
func readScope(c auth.Claims) string {
	if c.Can(auth.ActionReadPlatform) {
		return ""
	}
	return c.TenantID
}

// writeScope is readScope for mutations.
func writeScope(c auth.Claims) string {
	if c.Can(auth.ActionManagePlatform) {
		return ""
	}
	return c.TenantID
}

// tenantFor resolves the tenant a tenant-scoped operation acts on: the
// explicit one when given, the caller's own otherwise.
func tenantFor(c auth.Claims, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if c.TenantID == "" {
		return "", apperr.Invalid("User must belong to a tenant")
	}
	return c.TenantID, nil
}

// inTx runs fn on one transaction and publishes evs once it commits.
func (e *Env) inTx(ctx context.Context, fn func(tx *gorm.DB) error, evs ...*events.Event) error {
	if err := e.DB.WithContext(ctx).Transaction(fn); err != nil {
		return err
	}
	for _, ev := range evs {
		if ev != nil && ev.Type != "" {
			e.publish(ctx, *ev)
		}
	}
	return nil
}

func (e *Env) publish(ctx context.Context, ev events.Event) {
	if e.Events == nil {
		return
	}
	if err := e.Events.Publish(ctx, ev); err != nil {
		e.Log.Warnw("publish event", "type", ev.Type, "resource_id", ev.ResourceID, "err", err)
		if e.Metrics != nil {
			e.Metrics.EventFailures.WithLabelValues(ev.Type).Inc()
		}
	}
}

// audit records an action on the request transaction.
func audit(ctx context.Context, tx *gorm.DB, c auth.Claims, tenantID *string, action, resourceType, resourceID string, meta map[string]any) error {
	e := models.AuditLog{
		TenantID:     tenantID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if c.Subject != "" {
		uid := c.Subject
		e.UserID = &uid
	}
	if meta != nil {
		e.Metadata = models.MustJSONB(meta)
	}
	return repository.NewAuditRepository(tx).Record(ctx, &e)
}

func event(typ string, c auth.Claims, tenantID *string, resourceID string, data map[string]any) *events.Event {
	return &events.Event{Type: typ, TenantID: tenantID, ActorID: c.Subject, ResourceID: resourceID, Data: data, OccurredAt: time.Now().UTC()}
}

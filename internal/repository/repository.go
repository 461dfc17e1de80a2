// Package repository holds the GORM queries behind every endpoint. All
// methods take the tenant scope explicitly; nothing reads an ambient
// tenant. Repositories are cheap to build, so write paths construct them
// over the request transaction.
package repository

import (
	"errors"
	"strings"

	"eamcrm/internal/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Page is an offset/limit window.
type Page struct {
	Skip  int
	Limit int
}

// Normalize validates p and fills the default limit.
func (p Page) Normalize() (Page, error) {
	if p.Skip < 0 {
		return p, apperr.Invalid("skip must be >= 0")
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		return p, apperr.Invalid("limit must be between 1 and %d", MaxLimit)
	}
	return p, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// checkIDFilter rejects a non-empty filter value that is not a uuid, so it
// never reaches a uuid column comparison.
func checkIDFilter(field, id string) error {
	if id != "" && !validID(id) {
		return apperr.Invalid("%s must be a valid UUID", field)
	}
	return nil
}

// notFound maps gorm.ErrRecordNotFound to a NotFound error named after what.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s not found", what)
	}
	return apperr.Internal(err, "load "+strings.ToLower(what))
}

func dbErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("%s: duplicate entry", op)
	}
	return apperr.Internal(err, op)
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(s)) + "%"
}

func parseDecimal(s, field string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, apperr.Invalid("%s must be a decimal number", field)
	}
	if d.IsNegative() {
		return nil, apperr.Invalid("%s must not be negative", field)
	}
	return &d, nil
}

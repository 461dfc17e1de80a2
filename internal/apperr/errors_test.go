package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("product not found"), http.StatusNotFound},
		{Forbidden("access denied"), http.StatusForbidden},
		{Conflict("duplicate"), http.StatusConflict},
		{Invalid("bad input"), http.StatusBadRequest},
		{Unauthorized("no token"), http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
		{Internal(errors.New("db down"), "load product"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), tt.err.Error())
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("update visibility: %w", Forbidden("Product not synced to this tenant"))
	assert.True(t, Is(err, KindForbidden))
	assert.Equal(t, "Product not synced to this tenant", Detail(err))
}

func TestDetailHidesInternalCause(t *testing.T) {
	err := Internal(errors.New("pq: connection refused"), "list products")
	assert.Equal(t, "internal server error", Detail(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "internal server error", Detail(errors.New("raw")))
}

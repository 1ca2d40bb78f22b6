package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want int
	}{
		{"not found", NotFound("appointment", nil), http.StatusNotFound},
		{"validation", Validation("bad input", nil), http.StatusBadRequest},
		{"unauthenticated", Unauthenticated(nil), http.StatusUnauthorized},
		{"forbidden", Forbidden(""), http.StatusForbidden},
		{"transition", InvalidTransition("confirmed", "confirm"), http.StatusConflict},
		{"conflict", Conflict("email taken", nil), http.StatusConflict},
		{"storage", Storage(fmt.Errorf("conn refused")), http.StatusServiceUnavailable},
		{"internal", Internal(nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode())
		})
	}
}

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("failed to confirm appointment: %w", InvalidTransition("rejected", "confirm"))

	assert.Equal(t, ErrInvalidTransition, CodeOf(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, ErrInternal, CodeOf(fmt.Errorf("plain")))
	assert.False(t, Is(nil, ErrInternal))
}

func TestErrorMessage(t *testing.T) {
	err := NotFound("comment", fmt.Errorf("sql: no rows in result set"))
	assert.Equal(t, "comment not found: sql: no rows in result set", err.Error())
	assert.Equal(t, "not_found", err.Kind())
	assert.Equal(t, "forbidden", Forbidden("").Message)
}

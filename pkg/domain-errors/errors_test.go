package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	base := New(CodeNotFound, "bounty not found")

	t.Run("direct", func(t *testing.T) {
		assert.True(t, HasCode(base, CodeNotFound))
		assert.False(t, HasCode(base, CodeConflict))
	})

	t.Run("through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("load: %w", base)
		assert.True(t, HasCode(err, CodeNotFound))
		assert.True(t, errors.Is(err, base))
	})

	t.Run("inner code of a re-wrapped error", func(t *testing.T) {
		err := Wrap(base, CodeInternal, "claim failed")
		assert.True(t, HasCode(err, CodeInternal))
		assert.True(t, HasCode(err, CodeNotFound))
		assert.Equal(t, CodeInternal, CodeOf(err))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:      http.StatusBadRequest,
		CodeNotFound:        http.StatusNotFound,
		CodeInvalidState:    http.StatusConflict,
		CodePaymentRequired: http.StatusPaymentRequired,
		CodeRateLimited:     http.StatusTooManyRequests,
		CodeTimeout:         http.StatusGatewayTimeout,
		CodeUnavailable:     http.StatusServiceUnavailable,
		CodeInternal:        http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, ToHTTPStatus(code), string(code))
	}
}

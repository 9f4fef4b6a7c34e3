package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "geosats/pkg/domain-errors"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]int64{"reward": 5000})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"reward":5000}`, w.Body.String())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		status      int
		code        string
		description string
	}{
		{
			name:   "internal error omits description",
			err:    dErrors.New(dErrors.CodeInternal, "store failed"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
		{
			name:        "validation error includes description",
			err:         dErrors.New(dErrors.CodeValidation, "reward must be positive"),
			status:      http.StatusBadRequest,
			code:        "validation_error",
			description: "reward must be positive",
		},
		{
			name:        "insufficient balance maps to 402",
			err:         fmt.Errorf("lock reward: %w", dErrors.New(dErrors.CodePaymentRequired, "insufficient balance")),
			status:      http.StatusPaymentRequired,
			code:        "payment_required",
			description: "lock reward: insufficient balance",
		},
		{
			name:   "uncoded error is internal",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"])
			desc, ok := body["error_description"]
			if tt.description == "" {
				assert.False(t, ok, "description must be omitted")
				return
			}
			assert.Equal(t, tt.description, desc)
		})
	}
}

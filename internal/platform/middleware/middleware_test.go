package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geosats/internal/identity"
	"geosats/internal/platform/metrics"
	"geosats/pkg/requestcontext"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("reuses the incoming id", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(RequestIDHeader, "req-42")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)
		assert.Equal(t, "req-42", seen)
		assert.Equal(t, "req-42", rr.Header().Get(RequestIDHeader))
	})

	t.Run("assigns one when missing", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))
	})
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, rr.Body.String())
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/bounties", nil))

	line := buf.String()
	assert.Contains(t, line, `"status":418`)
	assert.Contains(t, line, `"path":"/bounties"`)
	assert.Contains(t, line, `"bytes":15`)
}

func TestTimeout(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 100*time.Millisecond)
}

func TestContentTypeJSON(t *testing.T) {
	h := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	tests := []struct {
		name   string
		method string
		ct     string
		body   string
		want   int
	}{
		{"json body", http.MethodPost, "application/json; charset=utf-8", "{}", http.StatusNoContent},
		{"form body", http.MethodPost, "application/x-www-form-urlencoded", "a=b", http.StatusBadRequest},
		{"empty body", http.MethodPost, "text/plain", "", http.StatusNoContent},
		{"get ignores header", http.MethodGet, "text/plain", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", tt.ct)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, r)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestLatencyMiddleware(t *testing.T) {
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(LatencyMiddleware(m))
	r.Get("/bounties/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bounties/abc", nil))

	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))
	assert.Zero(t, testutil.ToFloat64(m.InFlight))

	assert.NotPanics(t, func() {
		LatencyMiddleware(nil)(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestResolveIdentity(t *testing.T) {
	var who string
	h := ResolveIdentity(discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who = requestcontext.Identity(r.Context())
	}))

	t.Run("missing header is anonymous", func(t *testing.T) {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, identity.AnonymousID, who)
	})

	t.Run("key header is normalised", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(IdentityHeader, strings.Repeat("AB", 32))
		h.ServeHTTP(httptest.NewRecorder(), r)
		assert.Equal(t, strings.Repeat("ab", 32), who)
	})

	t.Run("malformed key is rejected", func(t *testing.T) {
		who = ""
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(IdentityHeader, "zz")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, who)
	})
}

func TestStatusWriterFlush(t *testing.T) {
	rr := httptest.NewRecorder()
	sw := wrap(rr)
	require.NoError(t, http.NewResponseController(sw).Flush())
	assert.True(t, rr.Flushed)
	assert.Same(t, sw, wrap(sw))
}

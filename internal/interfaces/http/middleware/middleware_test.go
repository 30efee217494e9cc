package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/toda-franchise/internal/testutil"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestRequireMember(t *testing.T) {
	var seen *Member
	h := RequireMember(logging.NewNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = MemberFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		id     string
		role   string
		status int
		want   *Member
	}{
		{name: "missing id", status: http.StatusUnauthorized},
		{name: "non numeric", id: "abc", status: http.StatusUnauthorized},
		{name: "zero", id: "0", status: http.StatusUnauthorized},
		{name: "default role", id: "42", status: http.StatusOK, want: &Member{ID: 42, Role: RoleMember}},
		{name: "treasurer", id: " 7 ", role: "Treasurer", status: http.StatusOK, want: &Member{ID: 7, Role: RoleTreasurer}},
		{name: "unknown role", id: "7", role: "mayor", status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/v1/franchises", nil)
			if tt.id != "" {
				req.Header.Set(HeaderMemberID, tt.id)
			}
			if tt.role != "" {
				req.Header.Set(HeaderMemberRole, tt.role)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(RoleAdmin)(okHandler())

	req := httptest.NewRequest(http.MethodPatch, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req.WithContext(WithMember(req.Context(), &Member{ID: 1, Role: RoleMember})))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "COMMON_004")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req.WithContext(WithMember(req.Context(), &Member{ID: 1, Role: RoleAdmin})))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMember_IsStaff(t *testing.T) {
	assert.False(t, (*Member)(nil).IsStaff())
	assert.False(t, (&Member{Role: RoleMember}).IsStaff())
	assert.True(t, (&Member{Role: RoleTreasurer}).IsStaff())
	assert.True(t, (&Member{Role: RoleAdmin}).IsStaff())
}

func TestRequestLogging_LevelsByStatus(t *testing.T) {
	logger := testutil.NewMockLogger()
	mw := RequestLogging(logger, DefaultLoggingConfig())

	mw(okHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/franchises", nil))
	mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/franchises/9", nil))
	mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/rate-sheets", nil))
	mw(okHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, 1, logger.CountLevel("info"))
	assert.Equal(t, 1, logger.CountLevel("warn"))
	assert.Equal(t, 1, logger.CountLevel("error"))
}

func TestRequestLogging_IncludesMember(t *testing.T) {
	logger := testutil.NewMockLogger()
	h := RequestLogging(logger, LoggingConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(WithMember(req.Context(), &Member{ID: 5, Role: RoleAdmin})))

	msgs := logger.GetMessages()
	require.Len(t, msgs, 1)
	var memberID interface{}
	for _, f := range msgs[0].Fields {
		if f.Key == "member_id" {
			memberID = f.Value
		}
	}
	assert.Equal(t, int64(5), memberID)
}

func TestRequestLogging_SeesMemberResolvedDownstream(t *testing.T) {
	logger := testutil.NewMockLogger()
	h := RequestLogging(logger, LoggingConfig{})(RequireMember(logger)(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/franchises", nil)
	req.Header.Set(HeaderMemberID, "12")
	h.ServeHTTP(httptest.NewRecorder(), req)

	msgs := logger.GetMessages()
	require.Len(t, msgs, 1)
	fields := map[string]interface{}{}
	for _, f := range msgs[0].Fields {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, int64(12), fields["member_id"])
	assert.Equal(t, "member", fields["member_role"])
}

type recordedRequest struct {
	method, route string
	status        int
}

type fakeHTTPMetrics struct {
	mu   sync.Mutex
	seen []recordedRequest
}

func (f *fakeHTTPMetrics) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recordedRequest{method, route, status})
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	m := &fakeHTTPMetrics{}
	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/franchises/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/franchises/12", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Len(t, m.seen, 2)
	assert.Equal(t, recordedRequest{"GET", "/franchises/{id}", http.StatusAccepted}, m.seen[0])
	assert.Equal(t, "unmatched", m.seen[1].route)
	assert.Equal(t, http.StatusNotFound, m.seen[1].status)
}

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://portal.example.gov.ph/"}
	h := CORS(cfg)(okHandler())

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/franchises", nil)
		req.Header.Set("Origin", "https://portal.example.gov.ph")
		req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://portal.example.gov.ph", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), HeaderMemberID)
		assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard", func(t *testing.T) {
		all := CORS(CORSConfig{AllowedOrigins: []string{"*"}, ExposedHeaders: []string{"X-Request-Id"}})(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://any.example")
		w := httptest.NewRecorder()
		all.ServeHTTP(w, req)

		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "X-Request-Id", w.Header().Get("Access-Control-Expose-Headers"))
	})
}

package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/profile-projection/pkg/middleware"
)

func opsRouter(opts middleware.OpsGuardOptions) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.OpsGuard(opts))
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}

func serve(h http.Handler, req *http.Request) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestOpsGuard(t *testing.T) {
	opts := middleware.OpsGuardOptions{
		Enforce:       true,
		OpenPaths:     []string{"/health"},
		CIDRs:         []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
		Token:         "s3cret",
		BasicAuthUser: "ops",
		BasicAuthPass: "pw",
		RealIPHeader:  "X-Real-IP",
	}
	r := opsRouter(opts)

	cases := []struct {
		name   string
		path   string
		setup  func(*http.Request)
		status int
	}{
		{"open path", "/health", func(*http.Request) {}, http.StatusOK},
		{"anonymous", "/metrics", func(*http.Request) {}, http.StatusNotFound},
		{"allowed cidr", "/metrics", func(r *http.Request) { r.Header.Set("X-Real-IP", "10.1.2.3, 192.168.0.1") }, http.StatusOK},
		{"foreign ip", "/metrics", func(r *http.Request) { r.Header.Set("X-Real-IP", "192.168.0.1") }, http.StatusNotFound},
		{"bearer token", "/metrics", func(r *http.Request) { r.Header.Set("Authorization", "Bearer s3cret") }, http.StatusOK},
		{"ops token header", "/metrics", func(r *http.Request) { r.Header.Set("X-Ops-Token", "s3cret") }, http.StatusOK},
		{"wrong token", "/metrics", func(r *http.Request) { r.Header.Set("X-Ops-Token", "nope") }, http.StatusNotFound},
		{"basic auth", "/metrics", func(r *http.Request) { r.SetBasicAuth("ops", "pw") }, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			req.RemoteAddr = "203.0.113.7:5555"
			tc.setup(req)
			assert.Equal(t, tc.status, serve(r, req))
		})
	}
}

func TestOpsGuard_NotEnforced(t *testing.T) {
	r := opsRouter(middleware.OpsGuardOptions{Token: "s3cret"})
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil)))
}

func TestParseCIDRs(t *testing.T) {
	got, err := middleware.ParseCIDRs("10.0.0.0/8; 192.168.1.0/24\n")
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.0/24"),
	}, got)

	got, err = middleware.ParseCIDRs("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = middleware.ParseCIDRs("10.0.0.0/8,not-a-cidr")
	require.Error(t, err)
}

func TestWithLogger_RecoversAndTagsRequest(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	r := mux.NewRouter()
	r.Use(middleware.WithLogger(logger))
	r.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })
	r.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-1")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(middleware.RequestIDHeader))

	last := hook.LastEntry()
	if assert.NotNil(t, last) {
		assert.Equal(t, "req-1", last.Data["request-id"])
		assert.Equal(t, http.StatusNoContent, last.Data["status"])
	}
}

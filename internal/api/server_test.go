package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arkologystudio/lumen/internal/crawler"
	"github.com/arkologystudio/lumen/internal/diagnostics"
	"github.com/arkologystudio/lumen/internal/fetcher"
	"github.com/arkologystudio/lumen/internal/scanners"
	"github.com/arkologystudio/lumen/internal/storage"
	"github.com/arkologystudio/lumen/pkg/models"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := storage.NewLocalStore(t.TempDir(), time.Hour, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)

	f := fetcher.New(nil, nil, nil)
	sites := storage.NewSiteDirectory()
	entitlements := storage.NewStaticEntitlements()
	service := diagnostics.NewService(
		crawler.New(f, nil), f, scanners.NewRegistry(nil, nil),
		store, sites, entitlements,
		diagnostics.Config{CacheTTL: time.Hour, PageTimeout: 5 * time.Second},
		nil, nil,
	)
	return NewServer(service, sites, entitlements, testSecret, nil, nil)
}

func bearerToken(t *testing.T, owner, plan string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": owner, "exp": time.Now().Add(time.Hour).Unix()}
	if plan != "" {
		claims["plan"] = plan
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuthenticatedRoutesRejectMissingToken(t *testing.T) {
	srv := newTestServer(t)
	routes := srv.Routes()

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/v1/sites", strings.NewReader(`{"url":"https://example.com"}`)),
		httptest.NewRequest(http.MethodPost, "/v1/diagnostics/site_1", nil),
		httptest.NewRequest(http.MethodGet, "/v1/diagnostics/site_1/latest", nil),
	} {
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", req.Method, req.URL.Path, rec.Code)
		}
	}
}

func TestAuthenticateRejectsForgedToken(t *testing.T) {
	srv := newTestServer(t)
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "mallory"}).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/sites", strings.NewReader(`{"url":"https://example.com"}`))
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRegisterSite(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/sites", strings.NewReader(`{"url":"Example.com"}`))
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, "alice", "pro"))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var site models.Site
	if err := json.Unmarshal(rec.Body.Bytes(), &site); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if site.URL != "https://example.com" {
		t.Errorf("url = %s, want normalized", site.URL)
	}
	if site.Owner != "alice" {
		t.Errorf("owner = %s, want token subject", site.Owner)
	}
}

func TestDiagnosticsUnknownSiteIs404(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/diagnostics/site_missing", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, "alice", ""))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAnonymousDiagnosticRequiresURL(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/diagnostics/anonymous", strings.NewReader(`{}`)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAnonymousDiagnosticEndToEnd(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Anon Target Site Title</title></head><body><h1>Hi</h1></body></html>`))
	}))
	defer site.Close()

	srv := newTestServer(t)
	body := strings.NewReader(`{"url":"` + site.URL + `"}`)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/diagnostics/anonymous", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result diagnostics.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Status != models.AuditCompleted {
		t.Errorf("status = %s (error %q)", result.Status, result.Error)
	}
	if result.Report == nil {
		t.Errorf("no report in response")
	}
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/arkologystudio/lumen/internal/diagnostics"
	"github.com/arkologystudio/lumen/internal/storage"
	"github.com/arkologystudio/lumen/pkg/models"
	"github.com/arkologystudio/lumen/pkg/utils"
)

// Server exposes the diagnostics engine over HTTP. Owner identity arrives as
// an HS256 bearer token; the engine itself only ever sees the resolved owner
// string.
type Server struct {
	service      *diagnostics.Service
	sites        *storage.SiteDirectory
	entitlements *storage.StaticEntitlements
	jwtSecret    []byte
	metrics      *utils.MetricsCollector
	logger       *logrus.Logger
}

func NewServer(
	service *diagnostics.Service,
	sites *storage.SiteDirectory,
	entitlements *storage.StaticEntitlements,
	jwtSecret string,
	metrics *utils.MetricsCollector,
	logger *logrus.Logger,
) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		service:      service,
		sites:        sites,
		entitlements: entitlements,
		jwtSecret:    []byte(jwtSecret),
		metrics:      metrics,
		logger:       logger,
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/diagnostics/anonymous", s.handleAnonymousDiagnostic)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Post("/sites", s.handleRegisterSite)
			r.Post("/diagnostics/{siteID}", s.handleRunDiagnostic)
			r.Get("/diagnostics/{siteID}/latest", s.handleLatestDiagnostic)
		})
	})
	return r
}

// authenticate resolves the owner from the bearer token's subject and feeds
// the plan claim into the entitlement table.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid claims")
			return
		}
		owner, _ := claims["sub"].(string)
		if owner == "" {
			writeError(w, http.StatusUnauthorized, "token has no subject")
			return
		}
		if plan, ok := claims["plan"].(string); ok && plan != "" {
			s.entitlements.SetPlan(owner, plan)
		}

		ctx := withOwner(r.Context(), owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := utils.GenerateID("req", r.Method, r.URL.Path)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("Request handled")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerSiteRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleRegisterSite(w http.ResponseWriter, r *http.Request) {
	var req registerSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	site, err := s.sites.Register(ownerFrom(r), req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, site)
}

type runDiagnosticRequest struct {
	SkipCache       bool   `json:"skip_cache"`
	IncludeSitemap  bool   `json:"include_sitemap"`
	DeclaredProfile string `json:"declared_profile,omitempty"`
}

func (s *Server) handleRunDiagnostic(w http.ResponseWriter, r *http.Request) {
	var req runDiagnosticRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := s.service.RunDiagnostic(r.Context(), ownerFrom(r), chi.URLParam(r, "siteID"), diagnostics.Options{
		SkipCache:       req.SkipCache,
		IncludeSitemap:  req.IncludeSitemap,
		DeclaredProfile: req.DeclaredProfile,
	})
	if err != nil {
		writePolicyError(w, err)
		return
	}
	writeJSON(w, statusForResult(result), result)
}

type anonymousDiagnosticRequest struct {
	URL             string `json:"url"`
	DeclaredProfile string `json:"declared_profile,omitempty"`
}

func (s *Server) handleAnonymousDiagnostic(w http.ResponseWriter, r *http.Request) {
	var req anonymousDiagnosticRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	result, err := s.service.RunAnonymousDiagnostic(r.Context(), req.URL, diagnostics.Options{
		DeclaredProfile: req.DeclaredProfile,
	})
	if err != nil {
		writePolicyError(w, err)
		return
	}
	writeJSON(w, statusForResult(result), result)
}

func (s *Server) handleLatestDiagnostic(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.GetLatestDiagnostic(r.Context(), ownerFrom(r), chi.URLParam(r, "siteID"))
	if err != nil {
		writePolicyError(w, err)
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "no completed diagnostic for site")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func statusForResult(result *diagnostics.Result) int {
	if result.Status == models.AuditFailed {
		return http.StatusBadGateway
	}
	return http.StatusOK
}

func writePolicyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, diagnostics.ErrSiteNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, diagnostics.ErrInvalidURL), errors.Is(err, diagnostics.ErrHostUnresolvable):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

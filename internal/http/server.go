package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hourglass/internal/config"
	"hourglass/internal/credential"
	"hourglass/internal/ledger"
	"hourglass/internal/model"
	"hourglass/internal/workflow"
)

type Server struct {
	cfg         config.Config
	store       ledger.Store
	credentials *credential.Engine
	workflows   *workflow.Engine
	log         *zap.Logger
}

func NewServer(cfg config.Config, store ledger.Store, credentials *credential.Engine, workflows *workflow.Engine, log *zap.Logger) *Server {
	return &Server{
		cfg:         cfg,
		store:       store,
		credentials: credentials,
		workflows:   workflows,
		log:         log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.countRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Credential issuance sits behind an IP limiter on top of the
	// ledger-derived per-email limits.
	issuance := httprate.LimitByIP(s.cfg.AuthRateLimit, s.cfg.AuthRateWindow)
	r.With(issuance).Post("/verification_challenge/new", s.handleVerificationChallengeNew)
	r.Post("/user/new", s.handleUserNew)
	r.With(issuance).Post("/api_key/new", s.handleApiKeyNew)
	r.With(s.authMiddleware).Post("/api_key/cancel", s.handleApiKeyCancel)
	r.With(issuance).Post("/password_reset/new", s.handlePasswordResetNew)
	r.Post("/password/new", s.handlePasswordNew)

	r.With(s.authMiddleware).Post("/school/new", s.handleSchoolNew)
	r.With(s.authMiddleware).Post("/school_key/new", s.handleSchoolKeyNew)
	r.With(s.authMiddleware).Post("/school_key/cancel", s.handleSchoolKeyCancel)
	r.With(s.authMiddleware).Post("/adminship/new", s.handleAdminshipNew)
	r.With(s.authMiddleware).Post("/adminship/new_key", s.handleAdminshipNewKey)
	r.With(s.authMiddleware).Post("/location/new", s.handleLocationNew)
	r.With(s.authMiddleware).Post("/course/new", s.handleCourseNew)
	r.With(s.authMiddleware).Post("/course_key/new", s.handleCourseKeyNew)
	r.With(s.authMiddleware).Post("/course_key/cancel", s.handleCourseKeyCancel)
	r.With(s.authMiddleware).Post("/course_membership/new", s.handleCourseMembershipNew)
	r.With(s.authMiddleware).Post("/course_membership/new_key", s.handleCourseMembershipNewKey)
	r.With(s.authMiddleware).Post("/session/new", s.handleSessionNew)
	r.With(s.authMiddleware).Post("/session_request/new", s.handleSessionRequestNew)
	r.With(s.authMiddleware).Post("/session_request_response/new", s.handleSessionRequestResponseNew)
	r.With(s.authMiddleware).Post("/committment/new", s.handleCommittmentNew)
	r.With(s.authMiddleware).Post("/committment_response/new", s.handleCommittmentResponseNew)

	r.With(s.authMiddleware).Get("/user", s.handleListUsers)
	r.With(s.authMiddleware).Get("/api_key", s.handleListApiKeys)
	r.With(s.authMiddleware).Get("/school", s.handleListSchools)
	r.With(s.authMiddleware).Get("/school_key", s.handleListSchoolKeys)
	r.With(s.authMiddleware).Get("/adminship", s.handleListAdminships)
	r.With(s.authMiddleware).Get("/location", s.handleListLocations)
	r.With(s.authMiddleware).Get("/course", s.handleListCourses)
	r.With(s.authMiddleware).Get("/course_key", s.handleListCourseKeys)
	r.With(s.authMiddleware).Get("/course_membership", s.handleListCourseMemberships)
	r.With(s.authMiddleware).Get("/session", s.handleListSessions)
	r.With(s.authMiddleware).Get("/session_request", s.handleListSessionRequests)
	r.With(s.authMiddleware).Get("/session_request_response", s.handleListSessionRequestResponses)
	r.With(s.authMiddleware).Get("/committment", s.handleListCommittments)
	r.With(s.authMiddleware).Get("/committment_response", s.handleListCommittmentResponses)

	return r
}

type identity struct {
	user model.User
	key  model.ApiKey
}

type identityKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		key, user, err := s.credentials.ValidateApiKey(r.Context(), token)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, identity{user: user, key: key})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromContext(ctx context.Context) (identity, bool) {
	id, ok := ctx.Value(identityKey{}).(identity)
	return id, ok
}

// authenticate resolves the caller on routes that skip the middleware, like
// /password/new where the RESET kind carries its own secret.
func (s *Server) authenticate(r *http.Request) (identity, error) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return identity{}, model.ErrUnauthenticated
	}
	key, user, err := s.credentials.ValidateApiKey(r.Context(), token)
	if err != nil {
		return identity{}, err
	}
	return identity{user: user, key: key}, nil
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrUnauthorized), errors.Is(err, model.ErrDenylisted):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrWouldOrphan):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	code := model.ErrorCode(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	failuresTotal.WithLabelValues(code).Inc()
	writeError(w, status, code)
}

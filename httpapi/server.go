// Package httpapi exposes the requirement marketplace over JSON/HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kidwon/lifetree-app-api/auth"
	"github.com/kidwon/lifetree-app-api/matching"
	"github.com/kidwon/lifetree-app-api/metrics"
	"github.com/kidwon/lifetree-app-api/requirement"
	"github.com/kidwon/lifetree-app-api/result"
)

type Authenticator interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (auth.Claims, error)
}

type Passkeys interface {
	BeginRegistration(ctx context.Context, userID string) (auth.RegistrationOptions, error)
	FinishRegistration(ctx context.Context, userID string, res auth.RegistrationResult) (auth.Credential, error)
	BeginLogin(ctx context.Context, email string) (auth.LoginOptions, error)
	FinishLogin(ctx context.Context, a auth.Assertion) (auth.LoginResult, error)
}

type Requirements interface {
	Create(ctx context.Context, params requirement.CreateParams) (requirement.View, error)
	Get(ctx context.Context, id string) (requirement.View, error)
	List(ctx context.Context, filters requirement.Filters) (requirement.ListResult, error)
	Update(ctx context.Context, actorID, id string, params requirement.UpdateParams) (requirement.View, error)
	UpdateAgreement(ctx context.Context, actorID, id string, params requirement.AgreementParams) (requirement.View, error)
	Complete(ctx context.Context, actorID, id string) (requirement.View, error)
	Cancel(ctx context.Context, actorID, id string) (requirement.View, error)
	Delete(ctx context.Context, actorID, id string) error
}

type Matching interface {
	Apply(ctx context.Context, requirementID, applicantID string) (requirement.View, error)
	Approve(ctx context.Context, requirementID, approverID, applicationID string) (requirement.View, error)
	Reject(ctx context.Context, requirementID, approverID, applicationID string) (requirement.View, error)
	ListApplicationsForOwner(ctx context.Context, ownerID string) ([]matching.OwnerRow, error)
	ListApplicationsForApplicant(ctx context.Context, applicantID string) ([]matching.ApplicantRow, error)
}

type Results interface {
	Create(ctx context.Context, creatorID string, params result.CreateParams) (result.Record, error)
	Get(ctx context.Context, id string) (result.Record, error)
	ListByCreator(ctx context.Context, userID string) ([]result.Record, error)
	ListByRequirement(ctx context.Context, requirementID string) ([]result.Record, error)
	Update(ctx context.Context, actorID, id string, params result.UpdateParams) (result.Record, error)
	ChangeStatus(ctx context.Context, actorID, id string, status result.Status) (result.Record, error)
	Delete(ctx context.Context, actorID, id string) error
}

// Users covers profile reads and edits. ListUsers is only routed behind the
// admin role check.
type Users interface {
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
	UpdateProfile(ctx context.Context, userID string, update auth.ProfileUpdate) (*auth.User, error)
	ListUsers(ctx context.Context) ([]auth.User, error)
}

// Server holds the collaborators behind each route group. A nil Passkeys,
// Results or Users leaves those routes unregistered.
type Server struct {
	authService  Authenticator
	passkeys     Passkeys
	requirements Requirements
	matching     Matching
	results      Results
	users        Users

	metrics *metrics.Metrics
	limiter *RateLimiter
	log     logrus.FieldLogger
}

type Option func(*Server)

func WithPasskeys(p Passkeys) Option { return func(s *Server) { s.passkeys = p } }

func WithResults(r Results) Option { return func(s *Server) { s.results = r } }

func WithUsers(u Users) Option { return func(s *Server) { s.users = u } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Server) { s.metrics = m } }

func WithRateLimiter(l *RateLimiter) Option { return func(s *Server) { s.limiter = l } }

func WithLogger(log logrus.FieldLogger) Option { return func(s *Server) { s.log = log } }

func NewServer(authService Authenticator, requirements Requirements, engine Matching, opts ...Option) *Server {
	s := &Server{
		authService:  authService,
		requirements: requirements,
		matching:     engine,
		log:          logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router. Everything under /api except health and the
// login endpoints requires a bearer token.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestID, s.accessLog)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found", Kind: "not_found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Kind: "validation"})
	})

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	public := api.PathPrefix("/auth").Subrouter()
	public.Handle("/register", s.limited(s.handleRegister)).Methods(http.MethodPost)
	public.Handle("/login", s.limited(s.handleLogin)).Methods(http.MethodPost)
	if s.passkeys != nil {
		public.Handle("/passkeys/login/options", s.limited(s.handlePasskeyLoginOptions)).Methods(http.MethodPost)
		public.Handle("/passkeys/login", s.limited(s.handlePasskeyLogin)).Methods(http.MethodPost)
	}

	private := api.NewRoute().Subrouter()
	private.Use(s.authenticate)
	private.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)
	if s.passkeys != nil {
		private.HandleFunc("/auth/passkeys/register/options", s.handlePasskeyRegisterOptions).Methods(http.MethodPost)
		private.HandleFunc("/auth/passkeys/register", s.handlePasskeyRegister).Methods(http.MethodPost)
	}

	if s.users != nil {
		private.HandleFunc("/users/me", s.handleGetProfile).Methods(http.MethodGet)
		private.HandleFunc("/users/me", s.handleUpdateProfile).Methods(http.MethodPut)
		private.Handle("/users", s.requireRole(auth.RoleAdmin, s.handleListUsers)).Methods(http.MethodGet)
		private.HandleFunc("/users/{id}", s.handleGetUser).Methods(http.MethodGet)
		private.Handle("/admin/users", s.requireRole(auth.RoleAdmin, s.handleListUsers)).Methods(http.MethodGet)
	}

	private.HandleFunc("/requirements", s.handleListRequirements).Methods(http.MethodGet)
	private.HandleFunc("/requirements", s.handleCreateRequirement).Methods(http.MethodPost)
	private.HandleFunc("/requirements/{id}", s.handleGetRequirement).Methods(http.MethodGet)
	private.HandleFunc("/requirements/{id}", s.handleUpdateRequirement).Methods(http.MethodPut)
	private.HandleFunc("/requirements/{id}", s.handleDeleteRequirement).Methods(http.MethodDelete)
	private.HandleFunc("/requirements/{id}/agreement", s.handleUpdateAgreement).Methods(http.MethodPut)
	private.HandleFunc("/requirements/{id}/complete", s.handleCompleteRequirement).Methods(http.MethodPost)
	private.HandleFunc("/requirements/{id}/cancel", s.handleCancelRequirement).Methods(http.MethodPost)

	private.Handle("/requirements/{id}/applications", s.limited(s.handleApply)).Methods(http.MethodPost)
	private.HandleFunc("/requirements/{id}/applications/{applicationId}/approve", s.handleApprove).Methods(http.MethodPost)
	private.HandleFunc("/requirements/{id}/applications/{applicationId}/reject", s.handleReject).Methods(http.MethodPost)
	private.HandleFunc("/me/requirements/applications", s.handleOwnerApplications).Methods(http.MethodGet)
	private.HandleFunc("/me/applications", s.handleApplicantApplications).Methods(http.MethodGet)

	if s.results != nil {
		private.HandleFunc("/results", s.handleListResults).Methods(http.MethodGet)
		private.HandleFunc("/results", s.handleCreateResult).Methods(http.MethodPost)
		private.HandleFunc("/results/{id}", s.handleGetResult).Methods(http.MethodGet)
		private.HandleFunc("/results/{id}", s.handleUpdateResult).Methods(http.MethodPut)
		private.HandleFunc("/results/{id}", s.handleDeleteResult).Methods(http.MethodDelete)
		private.HandleFunc("/results/{id}/status", s.handleResultStatus).Methods(http.MethodPut)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) limited(h http.HandlerFunc) http.Handler {
	if s.limiter == nil {
		return h
	}
	return s.limiter.Handler(h)
}

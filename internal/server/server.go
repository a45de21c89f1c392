package server

import (
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"pulsepoint/internal/backend"
	"pulsepoint/internal/identity"
	"pulsepoint/internal/metrics"
	"pulsepoint/internal/payment"
	"pulsepoint/internal/session"
	"pulsepoint/pkg/types"

	"github.com/alexedwards/flow"
	"github.com/go-playground/form/v4"
	"github.com/gorilla/securecookie"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

//go:embed templates
var uiFS embed.FS
var decoder = form.NewDecoder()

// Identity is the part of the identity adapter the handlers drive.
type Identity interface {
	SignInWithPassword(ctx context.Context, sessionID, email, password string) (*types.Identity, error)
	SignUp(ctx context.Context, sessionID string, in identity.SignUpInput) (*types.Identity, error)
	ConfirmSignUp(ctx context.Context, email, code string) error
	UpdateProfile(ctx context.Context, sessionID string, update identity.ProfileUpdate) error
	SignOut(ctx context.Context, sessionID string)
	BeginPopup(sessionID string) (string, error)
	CompletePopup(ctx context.Context, sessionID, state, code, providerError string) (*types.Identity, error)
	Credential(sessionID string) types.Credential
}

type ImageStore interface {
	UploadImage(ctx context.Context, folder string, file io.Reader) (string, error)
	PublicURL(key string) string
}

type PaymentVerifier interface {
	Verify(ctx context.Context, id string, amountCents int64) (*payment.Intent, error)
}

type Options struct {
	Config    *types.Config
	Logger    *logrus.Logger
	Sessions  *session.Manager
	Exchanger *session.Exchanger
	Identity  Identity
	Backend   *backend.Client
	Registry  *prometheus.Registry

	// Images and Payments are optional; the routes that need them answer
	// 503 without them.
	Images   ImageStore
	Payments PaymentVerifier
}

type Service struct {
	logger    *logrus.Logger
	config    *types.Config
	templates *template.Template

	sessions  *session.Manager
	exchanger *session.Exchanger
	identity  Identity
	backend   *backend.Client
	images    ImageStore
	payments  PaymentVerifier
	registry  *prometheus.Registry

	cookie  *securecookie.SecureCookie
	limiter *rateLimiter

	server *http.Server
}

func New(opts Options) (*Service, error) {
	config := opts.Config
	mux := flow.New()

	hashKey, err := base64.StdEncoding.DecodeString(config.CookieHashKey)
	if err != nil {
		return nil, fmt.Errorf("decode cookie hash key: %w", err)
	}
	blockKey, err := base64.StdEncoding.DecodeString(config.CookieBlockKey)
	if err != nil {
		return nil, fmt.Errorf("decode cookie block key: %w", err)
	}
	if len(hashKey) == 0 {
		return nil, fmt.Errorf("cookie hash key is required")
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}

	cookie := securecookie.New(hashKey, blockKey)
	cookie.MaxAge(config.SessionMaxAgeSec)

	s := &Service{
		logger:    opts.Logger,
		config:    config,
		sessions:  opts.Sessions,
		exchanger: opts.Exchanger,
		identity:  opts.Identity,
		backend:   opts.Backend,
		images:    opts.Images,
		payments:  opts.Payments,
		registry:  opts.Registry,
		cookie:    cookie,
		limiter:   newRateLimiter(config.AuthRatePerMinute),
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.ServerPort),
			Handler:           mux,
			ReadTimeout:       time.Duration(config.ReadTimeoutSec) * time.Second,
			ReadHeaderTimeout: time.Duration(config.ReadTimeoutSec) * time.Second,
			WriteTimeout:      time.Duration(config.WriteTimeoutSec) * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	s.templates = templates

	s.buildRouter(mux)

	return s, nil
}

func (s *Service) Start() error {
	return s.server.ListenAndServe()
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Service) Handler() http.Handler {
	return s.server.Handler
}

func (s *Service) buildRouter(r *flow.Mux) {
	r.Use(s.StripTrailingSlash)
	r.Use(s.LoggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth, http.MethodGet)
	if s.registry != nil {
		r.Handle("/metrics", metrics.Handler(s.registry), http.MethodGet)
	}

	r.Group(func(r *flow.Mux) {
		r.Use(s.SessionMiddleware)

		r.HandleFunc("/", s.handleHome, http.MethodGet)
		r.HandleFunc("/session", s.handleGetSession, http.MethodGet)

		r.HandleFunc("/login", s.handleGetLogin, http.MethodGet)
		r.HandleFunc("/register", s.handleGetRegister, http.MethodGet)
		r.HandleFunc("/register/confirm", s.handleGetRegisterConfirm, http.MethodGet)
		r.HandleFunc("/logout", s.handlePostLogout, http.MethodPost)
		r.HandleFunc("/auth/popup", s.handleGetAuthPopup, http.MethodGet)
		r.HandleFunc("/auth/callback", s.handleGetAuthCallback, http.MethodGet)

		r.Group(func(r *flow.Mux) {
			r.Use(s.RateLimit)

			r.HandleFunc("/login", s.handlePostLogin, http.MethodPost)
			r.HandleFunc("/register", s.handlePostRegister, http.MethodPost)
			r.HandleFunc("/register/confirm", s.handlePostRegisterConfirm, http.MethodPost)
		})

		r.HandleFunc("/donation-requests", s.handleGetPendingDonationRequests, http.MethodGet)
		r.HandleFunc("/blogs", s.handleGetPublishedBlogs, http.MethodGet)
		r.HandleFunc("/blogs/:id", s.handleGetBlog, http.MethodGet)
		r.HandleFunc("/donors/search", s.handleGetDonorSearch, http.MethodGet)

		r.Group(func(r *flow.Mux) {
			r.Use(s.RequireAuthenticated)

			r.HandleFunc("/dashboard", s.handleGetDashboard, http.MethodGet)
			r.HandleFunc("/dashboard/profile", s.handleGetProfile, http.MethodGet)
			r.HandleFunc("/dashboard/profile", s.handlePostProfile, http.MethodPost)
			r.HandleFunc("/dashboard/profile/refresh-role", s.handlePostRefreshRole, http.MethodPost)

			r.HandleFunc("/dashboard/my-donation-requests", s.handleGetMyDonationRequests, http.MethodGet)
			r.HandleFunc("/dashboard/create-donation-request", s.handlePostCreateDonationRequest, http.MethodPost)
			r.HandleFunc("/donation-requests/:id", s.handleGetDonationRequest, http.MethodGet)
			r.HandleFunc("/donation-requests/:id/donate", s.handlePostDonate, http.MethodPost)

			r.HandleFunc("/dashboard/fundings", s.handleGetFundings, http.MethodGet)
			r.HandleFunc("/dashboard/fundings", s.handlePostFunding, http.MethodPost)
			r.HandleFunc("/dashboard/fundings/intent", s.handlePostFundingIntent, http.MethodPost)
		})

		r.Group(func(r *flow.Mux) {
			r.Use(s.RequireRole(types.RoleAdmin))

			r.HandleFunc("/dashboard/all-users", s.handleGetAllUsers, http.MethodGet)
			r.HandleFunc("/dashboard/all-users/:id/status", s.handlePostUserStatus, http.MethodPost)
			r.HandleFunc("/dashboard/all-users/:id/role", s.handlePostUserRole, http.MethodPost)

			r.HandleFunc("/dashboard/all-donation-requests", s.handleGetAllDonationRequests, http.MethodGet)
			r.HandleFunc("/dashboard/all-donation-requests/:id/status", s.handlePostDonationRequestStatus, http.MethodPost)
			r.HandleFunc("/dashboard/all-donation-requests/:id/delete", s.handlePostDeleteDonationRequest, http.MethodPost)

			r.HandleFunc("/dashboard/content-management", s.handleGetAllBlogs, http.MethodGet)
			r.HandleFunc("/dashboard/content-management", s.handlePostBlog, http.MethodPost)
			r.HandleFunc("/dashboard/content-management/:id/status", s.handlePostBlogStatus, http.MethodPost)
			r.HandleFunc("/dashboard/content-management/:id/delete", s.handlePostDeleteBlog, http.MethodPost)
		})

		r.Group(func(r *flow.Mux) {
			r.Use(s.RequireRole(types.RoleVolunteer))

			r.HandleFunc("/dashboard/volunteer/donation-requests", s.handleGetAllDonationRequests, http.MethodGet)
			r.HandleFunc("/dashboard/volunteer/donation-requests/:id/status", s.handlePostDonationRequestStatus, http.MethodPost)
			r.HandleFunc("/dashboard/volunteer/content-management", s.handleGetAllBlogs, http.MethodGet)
		})
	})
}

func loadTemplates() (*template.Template, error) {
	funcMap := template.FuncMap{
		"fieldError": func(errs map[string]string, field string) string {
			return errs[field]
		},
		"selected": func(a, b any) bool {
			return fmt.Sprint(a) == fmt.Sprint(b)
		},
	}

	t := template.New("").Funcs(funcMap)
	err := fs.WalkDir(uiFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}

		data, err := fs.ReadFile(uiFS, path)
		if err != nil {
			return fmt.Errorf("read template %s: %w", path, err)
		}

		if _, err := t.Parse(string(data)); err != nil {
			return fmt.Errorf("parse template %s: %w", path, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return t, nil
}

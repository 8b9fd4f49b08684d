package adapthttp

import (
	"net/http"

	"go.uber.org/zap"

	"gigmarket/internal/app"
	"gigmarket/internal/config"
)

// Options configures the HTTP adapter.
type Options struct {
	WebDir             string
	Cookies            config.CookiePolicy
	OIDC               OIDCConfig
	LoginRatePerMinute int
	Logger             *zap.SugaredLogger
}

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	jobs    *app.JobService
	authSvc *app.AuthService
	guard   *app.SessionGuard

	webDir     string
	cookies    config.CookiePolicy
	oidcConfig OIDCConfig
	limiter    *ipLimiter
	log        *zap.SugaredLogger
}

// New creates a Server wired to the given application services.
func New(jobs *app.JobService, authSvc *app.AuthService, guard *app.SessionGuard, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{
		jobs:       jobs,
		authSvc:    authSvc,
		guard:      guard,
		webDir:     opts.WebDir,
		cookies:    opts.Cookies,
		oidcConfig: opts.OIDC,
		limiter:    newIPLimiter(opts.LoginRatePerMinute),
		log:        log.Named("http"),
	}
}

// publicPaths skip the single-session guard so a stale cookie never blocks
// logging in again.
var publicPaths = map[string]bool{
	"/health":            true,
	"/config":            true,
	"/login":             true,
	"/register":          true,
	"/setup":             true,
	"/auth/sso/login":    true,
	"/auth/sso/callback": true,
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	api.HandleFunc("/config", s.handleConfig)

	api.Handle("/login", s.rateLimit(http.HandlerFunc(s.handleLogin)))
	api.Handle("/register", s.rateLimit(http.HandlerFunc(s.handleRegister)))
	api.HandleFunc("/setup", s.handleSetupUser)
	api.HandleFunc("/logout", s.handleLogout)
	api.HandleFunc("/auth/sso/login", s.handleSSOLogin)
	api.HandleFunc("/auth/sso/callback", s.handleSSOCallback)
	api.HandleFunc("/me", requireUser(s.handleMe))

	api.HandleFunc("/jobs", s.handleJobs)
	api.HandleFunc("/my-jobs", requireUser(s.handleMyJobs))
	api.HandleFunc("/jobs/{id}", s.handleJob)
	api.HandleFunc("/jobs/{id}/publish-check", s.handlePublishCheck)
	api.HandleFunc("/jobs/{id}/advance", requireUser(s.handleAdvanceJob))
	api.HandleFunc("/job-status/{id}", requireUser(s.handleJobStatus))
	api.HandleFunc("/edit-job/{id}", requireUser(s.handleEditJob))
	api.HandleFunc("/delete-job/{id}", requireUser(s.handleDeleteJob))

	guarded := s.loadSession(s.sessionGuard(api))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", guarded))
	root.Handle("/", spaFromDisk(s.webDir))

	return s.loggingMiddleware(withNoCache(root))
}

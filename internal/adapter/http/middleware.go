package adapthttp

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"gigmarket/internal/app"
	"gigmarket/internal/domain"
	"gigmarket/internal/logger"
)

type contextKey string

const sessionContextKey contextKey = "session"

const sessionCookieName = "session"

// requestSession is the authenticated session attached to a request.
type requestSession struct {
	token string
	user  *domain.User
}

func sessionFromContext(r *http.Request) *requestSession {
	rs, _ := r.Context().Value(sessionContextKey).(*requestSession)
	return rs
}

func userFromContext(r *http.Request) *domain.User {
	if rs := sessionFromContext(r); rs != nil {
		return rs.user
	}
	return nil
}

// loadSession resolves the session cookie. Requests without a usable
// session continue anonymously; routes that need a user reject them.
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := s.authSvc.ValidateSession(r.Context(), cookie.Value)
		switch {
		case err == nil:
			ctx := context.WithValue(r.Context(), sessionContextKey, &requestSession{token: cookie.Value, user: user})
			next.ServeHTTP(w, r.WithContext(ctx))
		case errors.Is(err, app.ErrSessionNotFound), errors.Is(err, app.ErrSessionExpired), errors.Is(err, app.ErrUserNotFound):
			next.ServeHTTP(w, r)
		default:
			s.log.Errorw("session lookup failed", logger.FieldError, err)
			writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		}
	})
}

// sessionGuard rejects sessions superseded by a newer login. The stale
// session is destroyed and its cookie cleared with the login attributes.
func (s *Server) sessionGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs := sessionFromContext(r)
		if rs == nil || rs.user == nil || publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		err := s.guard.Check(r.Context(), rs.user.ID, rs.token)
		if errors.Is(err, app.ErrSessionInvalidated) {
			if derr := s.authSvc.DestroySession(r.Context(), rs.token); derr != nil {
				s.log.Warnw("failed to destroy stale session", logger.FieldUserID, rs.user.ID, logger.FieldError, derr)
			}
			http.SetCookie(w, s.sessionCookie("", -1))
			writeAppError(w, err)
			return
		}
		if err != nil {
			s.log.Errorw("session guard failed", logger.FieldUserID, rs.user.ID, logger.FieldError, err)
			writeError(w, http.StatusInternalServerError, errors.New("internal error"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireUser rejects anonymous requests.
func requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if userFromContext(r) == nil {
			writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next(w, r)
	}
}

// sessionCookie builds the session cookie. Setting and clearing share it so
// the browser treats them as the same cookie.
func (s *Server) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookies.Secure,
		SameSite: s.cookies.SameSite,
		MaxAge:   maxAge,
	}
}

type wrappedWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *wrappedWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// loggingMiddleware tags each request with an id and logs its outcome.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", reqID)

		wrapped := &wrappedWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		s.log.Infow("request",
			logger.FieldRequestID, reqID,
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, wrapped.statusCode,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
	})
}

// ipLimiter hands out one token bucket per client address.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newIPLimiter(perMinute int) *ipLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &ipLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// rateLimit throttles credential endpoints per client address.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many attempts, try again later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package server

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pulsepoint/internal/guard"
	"pulsepoint/internal/metrics"
	"pulsepoint/internal/session"
	"pulsepoint/pkg/types"

	"github.com/sirupsen/logrus"
)

// Context key types to avoid collisions
type contextKey string

const (
	contextKeyStore   contextKey = "session_store"
	contextKeySession contextKey = "session"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Service) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		metrics.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(rw.statusCode)).Inc()

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("http request")
	})
}

// SessionMiddleware attaches the browser's session store to the request,
// issuing a new browser session id when the request carries none.
func (s *Service) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := s.sessionID(w, r)
		cred := s.readIdentityCookie(r)

		store := s.sessions.Attach(r.Context(), sessionID, cred)

		ctx := context.WithValue(r.Context(), contextKeyStore, store)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) RequireAuthenticated(next http.Handler) http.Handler {
	return s.guarded(guard.Authenticated())(next)
}

func (s *Service) RequireRole(role types.Role) func(http.Handler) http.Handler {
	return s.guarded(guard.RequireRole(role))
}

func (s *Service) guarded(req guard.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			store := storeFromContext(ctx)

			sess := s.settle(ctx, store)
			if ctx.Err() != nil {
				// The browser went away while the session was settling.
				return
			}

			decision := guard.Decide(sess, req, r.URL.RequestURI())
			metrics.GuardDecisions.WithLabelValues(req.String(), decision.Outcome.String()).Inc()

			switch decision.Outcome {
			case guard.Suspend:
				s.renderLoading(w, r)
			case guard.RedirectSignIn:
				s.setRedirectCookie(w, decision.From, 5*time.Minute)
				http.Redirect(w, r, decision.Location+"?"+url.Values{"redirect_uri": {decision.From}}.Encode(), http.StatusSeeOther)
			case guard.RedirectForbidden:
				s.logger.WithFields(logrus.Fields{
					"session_id":  store.ID(),
					"path":        r.URL.Path,
					"requirement": req.String(),
				}).Info("role does not satisfy route")
				http.Redirect(w, r, decision.Location, http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, contextKeySession, sess)))
			}
		})
	}
}

// settle waits a short while for a session that is still being established.
func (s *Service) settle(ctx context.Context, store *session.Store) types.Session {
	sess := store.Snapshot()
	if sess.State != types.SessionUnknown || s.config.GuardWaitMS <= 0 {
		return sess
	}

	wctx, cancel := context.WithTimeout(ctx, time.Duration(s.config.GuardWaitMS)*time.Millisecond)
	defer cancel()

	sess, _ = store.Ready(wctx)
	return sess
}

func (s *Service) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientAddr(r)) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "too many attempts, try again in a minute", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Service) StripTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path != "/" && strings.HasSuffix(path, "/") {
			newURL := *r.URL
			newURL.Path = strings.TrimSuffix(path, "/")

			http.Redirect(w, r, newURL.String(), http.StatusMovedPermanently)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func storeFromContext(ctx context.Context) *session.Store {
	store, _ := ctx.Value(contextKeyStore).(*session.Store)
	return store
}

// sessionFromContext returns the snapshot a guard admitted the request with,
// falling back to the store's current state on unguarded routes.
func sessionFromContext(ctx context.Context) types.Session {
	if sess, ok := ctx.Value(contextKeySession).(types.Session); ok {
		return sess
	}
	if store := storeFromContext(ctx); store != nil {
		return store.Snapshot()
	}
	return types.Session{State: types.SessionAnonymous}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

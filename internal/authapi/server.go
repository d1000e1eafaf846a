// Package authapi is a reference implementation of the back-office
// sign-in endpoints. It exchanges Google authorization codes, keeps
// users in bbolt and issues HS256 session tokens.
package authapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alexjbarnes/backoffice/internal/models"
	"github.com/alexjbarnes/backoffice/internal/state"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
)

const (
	// usedCodeTTL outlives any authorization code Google would accept.
	usedCodeTTL = 10 * time.Minute

	// cleanupInterval is how often expired revocations are pruned.
	cleanupInterval = 15 * time.Minute

	maxRequestBytes = 64 * 1024
)

// Config holds the server dependencies.
type Config struct {
	OAuth       *oauth2.Config
	UserInfoURL string
	JWTSecret   []byte
	TokenTTL    time.Duration

	// HTTPClient is used for provider calls. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Server implements the sign-in endpoints.
type Server struct {
	cfg       Config
	state     *state.State
	usedCodes *gocache.Cache
	logger    *slog.Logger
	now       func() time.Time
	stopGC    chan struct{}
}

// NewServer creates a Server and starts pruning expired revocations.
// Call Stop to end the background goroutine.
func NewServer(cfg Config, st *state.State, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		state:     st,
		usedCodes: gocache.New(usedCodeTTL, time.Minute),
		logger:    logger,
		now:       time.Now,
		stopGC:    make(chan struct{}),
	}
	go s.gcLoop()

	return s
}

// Stop terminates the background cleanup goroutine.
func (s *Server) Stop() {
	close(s.stopGC)
}

func (s *Server) gcLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n, err := s.state.PruneRevoked(); err != nil {
				s.logger.Warn("pruning revoked tokens", slog.String("error", err.Error()))
			} else if n > 0 {
				s.logger.Debug("pruned revoked tokens", slog.Int("count", n))
			}
		case <-s.stopGC:
			return
		}
	}
}

// Routes returns the API mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/google/url", s.handleAuthorizationURL)
	mux.HandleFunc("POST /auth/google/login", s.handleLogin)
	mux.Handle("GET /auth/me", s.requireToken(http.HandlerFunc(s.handleMe)))
	mux.Handle("POST /auth/logout", s.requireToken(http.HandlerFunc(s.handleLogout)))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeOK(w, nil, "ok")
	})

	return mux
}

func (s *Server) handleAuthorizationURL(w http.ResponseWriter, _ *http.Request) {
	authURL := s.cfg.OAuth.AuthCodeURL(uuid.NewString(),
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)

	writeOK(w, authURL, "")
}

type loginRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		writeFail(w, http.StatusBadRequest, "code is required")
		return
	}

	// Codes are single use. Remember them before the provider call so a
	// concurrent replay loses too.
	if err := s.usedCodes.Add(code, struct{}{}, gocache.DefaultExpiration); err != nil {
		s.logger.Warn("authorization code replayed")
		writeFail(w, http.StatusBadRequest, "authorization code already used")

		return
	}

	p, err := s.exchange(r.Context(), code)
	if err != nil {
		s.logger.Warn("google sign-in failed", slog.String("error", err.Error()))
		writeFail(w, http.StatusUnauthorized, "Invalid code")

		return
	}

	rec, created, err := s.state.UpsertUser(p.Subject, p.Email, p.Name, p.Picture)
	if err != nil {
		s.logger.Error("saving user", slog.String("error", err.Error()))
		writeFail(w, http.StatusInternalServerError, "internal error")

		return
	}

	token, err := issueToken(s.cfg.JWTSecret, rec.ID, rec.Email, s.now(), s.cfg.TokenTTL)
	if err != nil {
		s.logger.Error("issuing token", slog.String("error", err.Error()))
		writeFail(w, http.StatusInternalServerError, "internal error")

		return
	}

	s.logger.Info("user signed in",
		slog.Uint64("user_id", rec.ID),
		slog.Bool("new_user", created),
	)

	writeOK(w, models.LoginResult{
		Token:     token,
		User:      rec.Model(),
		IsNewUser: created,
	}, "")
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	id, err := claims.UserID()
	if err != nil {
		writeFail(w, http.StatusUnauthorized, "invalid token")
		return
	}

	rec, err := s.state.GetUser(id)
	if err != nil {
		s.logger.Error("loading user", slog.String("error", err.Error()))
		writeFail(w, http.StatusInternalServerError, "internal error")

		return
	}

	if rec == nil {
		writeFail(w, http.StatusNotFound, "user not found")
		return
	}

	writeOK(w, rec.Model(), "")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	if err := s.state.RevokeToken(claims.ID, claims.ExpiresAt.Time); err != nil {
		s.logger.Error("revoking token", slog.String("error", err.Error()))
		writeFail(w, http.StatusInternalServerError, "internal error")

		return
	}

	writeOK(w, nil, "logged out")
}

type claimsKey struct{}

func claimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// requireToken rejects requests without a valid, unrevoked bearer token.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeFail(w, http.StatusUnauthorized, "missing bearer token")

			return
		}

		claims, err := parseToken(s.cfg.JWTSecret, raw, s.now())
		if err != nil {
			s.logger.Debug("rejecting token", slog.String("error", err.Error()))
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeFail(w, http.StatusUnauthorized, "invalid token")

			return
		}

		if s.state.IsRevoked(claims.ID) {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeFail(w, http.StatusUnauthorized, "token revoked")

			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

// Package relay serves the page the identity provider redirects the
// popup to. The page turns the redirect query into an auth message,
// hands it to the window that opened the popup and closes the popup.
package relay

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexjbarnes/backoffice/internal/bridge"
	apperrors "github.com/alexjbarnes/backoffice/internal/errors"
	"github.com/alexjbarnes/backoffice/internal/metrics"
	"github.com/alexjbarnes/backoffice/internal/popup"
	gocache "github.com/patrickmn/go-cache"
)

const (
	// DefaultCloseDelay gives the opener time to take the message before
	// the popup goes away.
	DefaultCloseDelay = 200 * time.Millisecond

	// seenTTL bounds how long a callback query is remembered.
	seenTTL = 10 * time.Minute

	nonceBytes = 16
)

// Parent is the window that opened the popup. *bridge.Bus satisfies
// this interface.
type Parent interface {
	Post(data []byte, senderOrigin, targetOrigin string) error
}

// Config configures a Handler.
type Config struct {
	// Origin is the application origin the page is served from. It is
	// both the sender origin and the only target messages are sent to.
	Origin string

	// Opener returns the parent window and the popup it opened, or a nil
	// Parent when the popup has no opener.
	Opener func() (Parent, popup.Window)

	CloseDelay time.Duration
	Metrics    *metrics.Recorder
}

// Handler is the callback relay page.
type Handler struct {
	cfg    Config
	seen   *gocache.Cache
	logger *slog.Logger
}

// NewHandler creates the relay page handler.
func NewHandler(cfg Config, logger *slog.Logger) *Handler {
	if cfg.CloseDelay <= 0 {
		cfg.CloseDelay = DefaultCloseDelay
	}

	return &Handler{
		cfg:    cfg,
		seen:   gocache.New(seenTTL, time.Minute),
		logger: logger,
	}
}

// Outcome converts the provider redirect query into an auth message.
// An error parameter wins over a code; neither yields an error message
// with reason "missing code or error".
func Outcome(r *http.Request) bridge.AuthMessage {
	q := r.URL.Query()

	if reason := q.Get("error"); reason != "" {
		return bridge.Failure(reason)
	}

	if code := q.Get("code"); code != "" {
		return bridge.Success(code)
	}

	return bridge.Failure(apperrors.ErrMalformedCallback.Error())
}

// ServeHTTP handles GET on the callback path.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	msg := Outcome(r)

	// A reload must not deliver the same code again.
	if err := h.seen.Add(r.URL.RawQuery, struct{}{}, gocache.DefaultExpiration); err != nil {
		h.logger.Debug("callback already handled")
		h.cfg.Metrics.RelayCallback(metrics.RelayDuplicate)
		h.render(w, pageData{
			Title:  "Nothing to do",
			Detail: "This sign-in link has already been used.",
		})

		return
	}

	var (
		parent Parent
		win    popup.Window
	)
	if h.cfg.Opener != nil {
		parent, win = h.cfg.Opener()
	}

	if parent == nil {
		h.logger.Info("callback received with no sign-in waiting")
		h.cfg.Metrics.RelayCallback(metrics.RelayNoOpener)
		h.render(w, pageData{
			Title:  "No sign-in in progress",
			Detail: "Start the sign-in again from the application.",
		})

		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding auth message", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	if err := parent.Post(data, h.cfg.Origin, h.cfg.Origin); err != nil {
		h.logger.Error("posting auth message", slog.String("error", err.Error()))
		h.cfg.Metrics.RelayCallback(metrics.RelayRejected)
	} else {
		h.cfg.Metrics.RelayCallback(metrics.RelayPosted)
	}

	if win != nil {
		time.AfterFunc(h.cfg.CloseDelay, func() {
			if err := win.Close(); err != nil {
				h.logger.Debug("closing popup", slog.String("error", err.Error()))
			}
		})
	}

	pd := pageData{
		Title:        "Signed in",
		Message:      msg,
		Origin:       h.cfg.Origin,
		CloseDelayMS: h.cfg.CloseDelay.Milliseconds(),
	}
	if msg.Kind == bridge.KindError {
		pd.Title = "Sign-in failed"
		pd.Detail = msg.Reason
		pd.Failed = true
	}

	h.render(w, pd)
}

func (h *Handler) render(w http.ResponseWriter, pd pageData) {
	pd.Nonce = nonce()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Content-Security-Policy",
		"default-src 'none'; "+
			"style-src 'nonce-"+pd.Nonce+"'; "+
			"script-src 'nonce-"+pd.Nonce+"'; "+
			"base-uri 'none'; "+
			"frame-ancestors 'none'")

	if err := page.Execute(w, pd); err != nil {
		h.logger.Error("rendering relay page", slog.String("error", err.Error()))
	}
}

func nonce() string {
	b := make([]byte, nonceBytes)
	_, _ = rand.Read(b)

	return base64.RawURLEncoding.EncodeToString(b)
}

var _ Parent = (*bridge.Bus)(nil)

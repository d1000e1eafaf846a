package e2e_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexjbarnes/backoffice/internal/authapi"
	"github.com/alexjbarnes/backoffice/internal/backend"
	"github.com/alexjbarnes/backoffice/internal/bridge"
	"github.com/alexjbarnes/backoffice/internal/flow"
	"github.com/alexjbarnes/backoffice/internal/metrics"
	"github.com/alexjbarnes/backoffice/internal/models"
	"github.com/alexjbarnes/backoffice/internal/popup"
	"github.com/alexjbarnes/backoffice/internal/relay"
	"github.com/alexjbarnes/backoffice/internal/server"
	"github.com/alexjbarnes/backoffice/internal/state"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testJWTSecret = "e2e-jwt-secret-that-is-long-enough"

// provider is a fake Google: its consent endpoint immediately redirects
// back to the relay page, either with a fresh code or with the
// configured error.
type provider struct {
	srv       *httptest.Server
	deny      atomic.Bool
	issued    atomic.Int32
	exchanges atomic.Int32
}

func newProvider(t *testing.T) *provider {
	t.Helper()

	p := &provider{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		target, err := url.Parse(q.Get("redirect_uri"))
		if err != nil {
			http.Error(w, "bad redirect_uri", http.StatusBadRequest)
			return
		}

		back := url.Values{"state": {q.Get("state")}}
		if p.deny.Load() {
			back.Set("error", "access_denied")
		} else {
			n := p.issued.Add(1)
			back.Set("code", "code-"+strconv.Itoa(int(n)))
		}

		target.RawQuery = back.Encode()
		http.Redirect(w, r, target.String(), http.StatusFound)
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		p.exchanges.Add(1)

		if err := r.ParseForm(); err != nil || !strings.HasPrefix(r.PostForm.Get("code"), "code-") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"invalid_grant"}`)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"google-at","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"sub":   "google-123",
			"email": "admin@example.com",
			"name":  "Admin",
		})
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)

	return p
}

// browser opens popups by fetching the URL in the background and
// following redirects, the way the system browser would. With
// navigate false it opens the window and does nothing.
type browser struct {
	navigate bool

	mu      sync.Mutex
	windows []*popup.Handle
	pages   []string
}

func (b *browser) Open(_ context.Context, target string) (popup.Window, error) {
	w := popup.NewHandle()

	b.mu.Lock()
	b.windows = append(b.windows, w)
	b.mu.Unlock()

	if b.navigate {
		go func() {
			resp, err := http.Get(target) //nolint:noctx
			if err != nil {
				return
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)

			b.mu.Lock()
			b.pages = append(b.pages, string(body))
			b.mu.Unlock()
		}()
	}

	return w, nil
}

func (b *browser) lastWindow() *popup.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.windows[len(b.windows)-1]
}

// stack is the whole system: provider, reference API and the loopback
// control server running the flow.
type stack struct {
	provider *provider
	api      *httptest.Server
	apiState *state.State
	control  *httptest.Server
	callback string
	session  *state.State
	client   *backend.Client
	coord    *flow.Coordinator
	browser  *browser
}

func newStack(t *testing.T, navigate bool) *stack {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	dir := t.TempDir()
	p := newProvider(t)

	control := httptest.NewUnstartedServer(nil)
	origin := "http://" + control.Listener.Addr().String()
	callback := origin + "/oauth/callback"

	apiState, err := state.LoadAt(filepath.Join(dir, "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { apiState.Close() })

	apiServer := authapi.NewServer(authapi.Config{
		OAuth: &oauth2.Config{
			ClientID:     "e2e-client",
			ClientSecret: "e2e-secret",
			RedirectURL:  callback,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  p.srv.URL + "/auth",
				TokenURL: p.srv.URL + "/token",
			},
		},
		UserInfoURL: p.srv.URL + "/userinfo",
		JWTSecret:   []byte(testJWTSecret),
		TokenTTL:    time.Hour,
	}, apiState, logger)
	t.Cleanup(apiServer.Stop)

	api := httptest.NewServer(apiServer.Routes())
	t.Cleanup(api.Close)

	session, err := state.LoadAt(filepath.Join(dir, "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	client := backend.NewClient(api.URL, nil, logger)
	bus := bridge.NewBus(origin, logger)
	rec := metrics.NewRecorder()
	b := &browser{navigate: navigate}

	coord := flow.NewCoordinator(flow.Config{
		Origin:       origin,
		PollInterval: 20 * time.Millisecond,
		Timeout:      10 * time.Second,
		Opener:       b,
		Bus:          bus,
		Exchanger:    client,
		Session:      session,
		Observer:     rec,
	}, logger)
	t.Cleanup(coord.Close)

	control.Config.Handler = server.NewMux(server.MuxConfig{
		Origin:       origin,
		CallbackPath: "/oauth/callback",
		Relay: relay.NewHandler(relay.Config{
			Origin:     origin,
			Opener:     server.RelayOpener(bus, coord),
			CloseDelay: 20 * time.Millisecond,
			Metrics:    rec,
		}, logger),
		Coordinator: coord,
		Backend:     client,
		State:       session,
		Events:      server.NewHub(server.Snapshot(coord), logger),
		Metrics:     rec,
		Logger:      logger,
	})
	control.Start()
	t.Cleanup(control.Close)

	return &stack{
		provider: p,
		api:      api,
		apiState: apiState,
		control:  control,
		callback: callback,
		session:  session,
		client:   client,
		coord:    coord,
		browser:  b,
	}
}

// login runs a flow to completion and returns the flow with its result.
func (s *stack) login(ctx context.Context) (*flow.Flow, *models.LoginResult, error) {
	var started *flow.Flow

	res, err := s.coord.Login(ctx, s.client, func(f *flow.Flow) { started = f })

	return started, res, err
}

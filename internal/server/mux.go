// Package server builds the loopback control server: the relay page,
// endpoints to start and cancel a sign-in, the session, a WebSocket
// stream of flow events and metrics.
package server

import (
	"log/slog"
	"net/http"

	"github.com/alexjbarnes/backoffice/internal/bridge"
	"github.com/alexjbarnes/backoffice/internal/flow"
	"github.com/alexjbarnes/backoffice/internal/metrics"
	"github.com/alexjbarnes/backoffice/internal/popup"
	"github.com/alexjbarnes/backoffice/internal/relay"
	"github.com/alexjbarnes/backoffice/internal/state"
)

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Origin       string
	CallbackPath string
	Relay        http.Handler
	Coordinator  *flow.Coordinator
	Backend      Backend
	State        *state.State
	Events       *Hub
	Metrics      *metrics.Recorder
	Logger       *slog.Logger
}

// NewMux builds the control server mux. State-changing endpoints only
// accept requests from the application origin.
func NewMux(cfg MuxConfig) *http.ServeMux {
	m := cfg.Metrics
	guard := sameOrigin(cfg.Origin, cfg.Logger)

	mux := http.NewServeMux()
	mux.Handle("GET "+cfg.CallbackPath, m.Instrument(cfg.CallbackPath, cfg.Relay))
	mux.Handle("POST /login", m.Instrument("/login", guard(HandleLogin(cfg.Coordinator, cfg.Backend, cfg.Events, cfg.Logger))))
	mux.Handle("POST /flow/cancel", m.Instrument("/flow/cancel", guard(HandleCancel(cfg.Coordinator))))
	mux.Handle("GET /session", m.Instrument("/session", HandleSession(cfg.State, cfg.Logger)))
	mux.Handle("POST /logout", m.Instrument("/logout", guard(HandleLogout(cfg.State, cfg.Backend, cfg.Logger))))
	mux.Handle("GET /flow/events", cfg.Events)
	mux.Handle("GET /metrics", m.Handler())

	return mux
}

// sameOrigin rejects browser requests whose Origin header names another
// site. Requests without an Origin header (curl, the CLI) pass.
func sameOrigin(origin string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if o := r.Header.Get("Origin"); o != "" && o != origin {
				logger.Warn("rejecting cross-origin request",
					slog.String("origin", o),
					slog.String("path", r.URL.Path),
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "cross-origin request")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Snapshot reports the active flow for new event subscribers.
func Snapshot(coord *flow.Coordinator) func() Event {
	return func() Event {
		if f := coord.Active(); f != nil {
			return Event{Type: EventState, Flow: f.ID(), State: f.State().String()}
		}

		return Event{Type: EventState, State: flow.Idle.String()}
	}
}

// RelayOpener resolves the relay page's opener to the bus and the popup
// of the active flow. With no active flow the popup has no opener.
func RelayOpener(bus *bridge.Bus, coord *flow.Coordinator) func() (relay.Parent, popup.Window) {
	return func() (relay.Parent, popup.Window) {
		f := coord.Active()
		if f == nil {
			return nil, nil
		}

		return bus, f.Window()
	}
}

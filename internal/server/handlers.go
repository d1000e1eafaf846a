package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/alexjbarnes/backoffice/internal/errors"
	"github.com/alexjbarnes/backoffice/internal/flow"
	"github.com/alexjbarnes/backoffice/internal/models"
	"github.com/alexjbarnes/backoffice/internal/state"
)

// Backend is the part of the REST backend the control server calls.
// *backend.Client satisfies this interface.
type Backend interface {
	AuthorizationURL(ctx context.Context) (string, error)
	Logout(ctx context.Context, token string) error
}

type loginResponse struct {
	Flow             string `json:"flow"`
	State            string `json:"state"`
	AuthorizationURL string `json:"authorizationUrl"`
}

type sessionResponse struct {
	User       models.User `json:"user"`
	IsNewUser  bool        `json:"isNewUser"`
	LoggedInAt time.Time   `json:"loggedInAt"`
}

// HandleLogin starts a sign-in flow and returns immediately. Progress is
// reported on the event stream.
func HandleLogin(coord *flow.Coordinator, be Backend, hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authURL, err := be.AuthorizationURL(r.Context())
		if err != nil {
			logger.Warn("fetching authorization url", slog.String("error", err.Error()))
			writeJSONError(w, http.StatusBadGateway, "backend_unavailable", err.Error())

			return
		}

		f, err := coord.StartFlow(r.Context(), authURL, publishCallbacks(hub))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, apperrors.ErrPopupBlocked) {
				status = http.StatusServiceUnavailable
			}

			writeJSONError(w, status, "flow_not_started", err.Error())

			return
		}

		writeJSON(w, http.StatusAccepted, loginResponse{
			Flow:             f.ID(),
			State:            f.State().String(),
			AuthorizationURL: authURL,
		})
	}
}

// publishCallbacks mirrors a flow onto the event stream.
func publishCallbacks(hub *Hub) flow.Callbacks {
	return flow.Callbacks{
		OnState: func(id string, s flow.State) {
			hub.Publish(Event{Type: EventState, Flow: id, State: s.String()})
		},
		OnSuccess: func(res *models.LoginResult) {
			user := res.User
			hub.Publish(Event{Type: EventSuccess, User: &user, IsNewUser: res.IsNewUser})
		},
		OnError: func(err error) {
			hub.Publish(Event{Type: EventError, Error: err.Error()})
		},
	}
}

// HandleCancel closes the popup of the active flow. The flow then ends
// through its liveness check, as if the operator had closed the window.
func HandleCancel(coord *flow.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		f := coord.Active()
		if f == nil {
			writeJSONError(w, http.StatusNotFound, "no_flow", "no sign-in in progress")
			return
		}

		_ = f.Window().Close()
		w.WriteHeader(http.StatusAccepted)
	}
}

// HandleSession returns the signed-in user. The token is never exposed.
func HandleSession(st *state.State, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		sess, err := st.Session()
		if err != nil {
			logger.Error("reading session", slog.String("error", err.Error()))
			writeJSONError(w, http.StatusInternalServerError, "server_error", "reading session failed")

			return
		}

		if sess == nil {
			writeJSONError(w, http.StatusUnauthorized, "not_logged_in", apperrors.ErrNotLoggedIn.Error())
			return
		}

		writeJSON(w, http.StatusOK, sessionResponse{
			User:       sess.User,
			IsNewUser:  sess.IsNewUser,
			LoggedInAt: sess.LoggedInAt,
		})
	}
}

// HandleLogout revokes the session on the backend and forgets it
// locally. The local session is cleared even when the backend call
// fails.
func HandleLogout(st *state.State, be Backend, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := st.Token()
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, "not_logged_in", apperrors.ErrNotLoggedIn.Error())
			return
		}

		if err := be.Logout(r.Context(), token); err != nil {
			logger.Warn("backend logout failed", slog.String("error", err.Error()))
		}

		if err := st.ClearSession(); err != nil {
			logger.Error("clearing session", slog.String("error", err.Error()))
			writeJSONError(w, http.StatusInternalServerError, "server_error", "clearing session failed")

			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeJSONError(w http.ResponseWriter, status int, errCode, description string) {
	writeJSON(w, status, map[string]string{
		"error":             errCode,
		"error_description": description,
	})
}

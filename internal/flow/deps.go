package flow

//go:generate mockgen -source=deps.go -destination=mock_deps_test.go -package=flow

import (
	"context"
	"time"

	"github.com/alexjbarnes/backoffice/internal/models"
)

// Exchanger trades an authorization code for a session.
// *backend.Client satisfies this interface.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) (*models.LoginResult, error)
}

// SessionWriter stores the session of a successful sign-in.
// *state.State satisfies this interface.
type SessionWriter interface {
	SetLogin(res *models.LoginResult) error
}

// Observer is told when flows start and finish. *metrics.Recorder
// satisfies this interface.
type Observer interface {
	FlowStarted()
	FlowFinished(outcome string, elapsed time.Duration)
}

// URLSource supplies the provider consent URL. *backend.Client satisfies
// this interface.
type URLSource interface {
	AuthorizationURL(ctx context.Context) (string, error)
}

package errors

import "errors"

// Flow errors.
var (
	ErrPopupBlocked            = errors.New("popup blocked, enable popups for this site")
	ErrInvalidAuthorizationURL = errors.New("authorization URL must be a non-empty absolute URL")
	ErrProvider                = errors.New("identity provider error")
	ErrExchange                = errors.New("code exchange failed")
	ErrMalformedCallback       = errors.New("missing code or error")
	ErrFlowTimeout             = errors.New("sign-in timed out")
	ErrWildcardOrigin          = errors.New("target origin must be explicit")
)

// Session errors.
var (
	ErrNotLoggedIn  = errors.New("not logged in")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Server/transport errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)

// ProviderError carries the reason string the identity provider put in
// the redirect, e.g. "access_denied".
type ProviderError struct {
	Reason string
}

func (e *ProviderError) Error() string { return "identity provider error: " + e.Reason }
func (e *ProviderError) Unwrap() error { return ErrProvider }

// ExchangeError reports a rejected code or a failed exchange call.
// Message is what the backend said, or a generic message for network
// failures and unreadable responses.
type ExchangeError struct {
	Message string
	Err     error
}

func (e *ExchangeError) Error() string { return "code exchange failed: " + e.Message }

func (e *ExchangeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrExchange, e.Err}
	}

	return []error{ErrExchange}
}

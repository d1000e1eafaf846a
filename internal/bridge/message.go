package bridge

import (
	"encoding/json"

	apperrors "github.com/alexjbarnes/backoffice/internal/errors"
	"github.com/tidwall/gjson"
)

// Wire values of the "type" field.
const (
	TypeSuccess = "GOOGLE_AUTH_SUCCESS"
	TypeError   = "GOOGLE_AUTH_ERROR"
)

// Kind tells a successful relay from a failed one.
type Kind int

const (
	KindSuccess Kind = iota + 1
	KindError
)

// AuthMessage is what the relay page sends to its opener. Exactly one
// of Code and Reason is set, matching Kind.
type AuthMessage struct {
	Kind   Kind
	Code   string
	Reason string
}

// Success builds a message carrying an authorization code.
func Success(code string) AuthMessage {
	return AuthMessage{Kind: KindSuccess, Code: code}
}

// Failure builds a message carrying a provider error reason.
func Failure(reason string) AuthMessage {
	return AuthMessage{Kind: KindError, Reason: reason}
}

type wireMessage struct {
	Type  string `json:"type"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// MarshalJSON encodes the wire form
// {"type":"GOOGLE_AUTH_SUCCESS","code":...} or
// {"type":"GOOGLE_AUTH_ERROR","error":...}.
func (m AuthMessage) MarshalJSON() ([]byte, error) {
	if m.Kind == KindSuccess {
		return json.Marshal(wireMessage{Type: TypeSuccess, Code: m.Code})
	}

	return json.Marshal(wireMessage{Type: TypeError, Error: m.Reason})
}

// DecodeAuthMessage parses a posted payload. ok is false for anything
// that is not an auth message, so unrelated traffic on the bus can be
// ignored. A success message without a code decodes as a malformed
// callback error.
func DecodeAuthMessage(data []byte) (AuthMessage, bool) {
	if !gjson.ValidBytes(data) {
		return AuthMessage{}, false
	}

	switch gjson.GetBytes(data, "type").Str {
	case TypeSuccess:
		code := gjson.GetBytes(data, "code").Str
		if code == "" {
			return Failure(apperrors.ErrMalformedCallback.Error()), true
		}

		return Success(code), true
	case TypeError:
		reason := gjson.GetBytes(data, "error").Str
		if reason == "" {
			reason = apperrors.ErrMalformedCallback.Error()
		}

		return Failure(reason), true
	}

	return AuthMessage{}, false
}

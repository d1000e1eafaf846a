// Package models defines types shared across internal packages.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errUserID = errors.New("user id must be a JSON number or string")

// UserID holds the raw JSON token of a profile id. Backends issue
// either numbers or strings, and the token is written back exactly as
// it was read.
type UserID string

// String returns the id without JSON quoting.
func (id UserID) String() string {
	if len(id) > 0 && id[0] == '"' {
		var s string
		if err := json.Unmarshal([]byte(id), &s); err == nil {
			return s
		}
	}

	return string(id)
}

func (id UserID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}

	return []byte(id), nil
}

func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*id = UserID(data)
	case len(data) > 0 && (data[0] == '-' || (data[0] >= '0' && data[0] <= '9')) && json.Valid(data):
		*id = UserID(data)
	default:
		return errUserID
	}

	return nil
}

// User is the operator profile returned by the backend. Fields other
// than the known ones are kept in Extra and written back on encode.
type User struct {
	ID     UserID `json:"id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownUserFields = []string{"id", "email", "name", "avatar"}

type plainUser User

func (u *User) UnmarshalJSON(data []byte) error {
	var p plainUser
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	for _, k := range knownUserFields {
		delete(fields, k)
	}

	if len(fields) == 0 {
		fields = nil
	}

	p.Extra = fields
	*u = User(p)

	return nil
}

func (u User) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(plainUser(u))
	if err != nil || len(u.Extra) == 0 {
		return data, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}

	for k, v := range u.Extra {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}

	return json.Marshal(fields)
}

// LoginResult is the payload of a successful code exchange.
type LoginResult struct {
	Token     string `json:"token"`
	User      User   `json:"user"`
	IsNewUser bool   `json:"isNewUser"`
}

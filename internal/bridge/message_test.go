package bridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthMessage_WireForm(t *testing.T) {
	data, err := json.Marshal(Success("ABC123"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"GOOGLE_AUTH_SUCCESS","code":"ABC123"}`, string(data))

	data, err = json.Marshal(Failure("access_denied"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"GOOGLE_AUTH_ERROR","error":"access_denied"}`, string(data))
}

func TestDecodeAuthMessage(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		want   AuthMessage
		wantOK bool
	}{
		{"success", `{"type":"GOOGLE_AUTH_SUCCESS","code":"ABC123"}`, Success("ABC123"), true},
		{"error", `{"type":"GOOGLE_AUTH_ERROR","error":"access_denied"}`, Failure("access_denied"), true},
		{"success without code", `{"type":"GOOGLE_AUTH_SUCCESS"}`, Failure("missing code or error"), true},
		{"error without reason", `{"type":"GOOGLE_AUTH_ERROR"}`, Failure("missing code or error"), true},
		{"unknown type", `{"type":"webpackHotUpdate"}`, AuthMessage{}, false},
		{"no type", `{"code":"ABC123"}`, AuthMessage{}, false},
		{"not json", `hello`, AuthMessage{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeAuthMessage([]byte(tt.data))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

package popup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	apperrors "github.com/alexjbarnes/backoffice/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandle_CloseRunsHooksOnce(t *testing.T) {
	h := NewHandle()
	calls := 0
	h.OnClose(func() { calls++ })

	assert.False(t, h.Closed())
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	assert.True(t, h.Closed())
	assert.Equal(t, 1, calls)
}

func TestHandle_OnCloseAfterClose(t *testing.T) {
	h := NewHandle()
	require.NoError(t, h.Close())

	called := false
	h.OnClose(func() { called = true })
	assert.True(t, called)
}

func TestBrowserOpener_Blocked(t *testing.T) {
	o := NewBrowserOpener(testLogger())
	o.start = func(context.Context, string) error { return errors.New("exec: \"xdg-open\": not found") }

	w, err := o.Open(context.Background(), "https://accounts.google.com/o/oauth2/auth")
	assert.Nil(t, w)
	require.ErrorIs(t, err, apperrors.ErrPopupBlocked)
	assert.Contains(t, err.Error(), "xdg-open")
}

func TestBrowserOpener_Opens(t *testing.T) {
	var got string
	o := NewBrowserOpener(testLogger())
	o.start = func(_ context.Context, url string) error {
		got = url
		return nil
	}

	w, err := o.Open(context.Background(), "https://provider/auth?x=1")
	require.NoError(t, err)
	assert.Equal(t, "https://provider/auth?x=1", got)
	assert.False(t, w.Closed())
}

func TestBrowserCommand(t *testing.T) {
	assert.Equal(t, []string{"open", "https://p"}, browserCommand("darwin", "https://p").Args)
	assert.Equal(t, []string{"cmd", "/c", "start", "", "https://p"}, browserCommand("windows", "https://p").Args)
	assert.Equal(t, []string{"xdg-open", "https://p"}, browserCommand("linux", "https://p").Args)
}

func TestStartBrowser_EmptyURL(t *testing.T) {
	assert.Error(t, startBrowser(context.Background(), "  "))
}

func TestManualOpener_PrintsURL(t *testing.T) {
	var buf bytes.Buffer
	o := &ManualOpener{Out: &buf}

	w, err := o.Open(context.Background(), "https://provider/auth")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "https://provider/auth")
	assert.False(t, w.Closed())
}

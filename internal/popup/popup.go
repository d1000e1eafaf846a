// Package popup opens the child window a sign-in runs in.
package popup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	apperrors "github.com/alexjbarnes/backoffice/internal/errors"
)

// Window is a handle to an open popup.
type Window interface {
	Close() error
	Closed() bool
}

// Opener opens a popup pointed at url. Implementations return an error
// wrapping ErrPopupBlocked when no window could be created.
type Opener interface {
	Open(ctx context.Context, url string) (Window, error)
}

// Handle is a Window whose state is tracked in process. Close marks it
// closed and runs the registered close hooks once.
type Handle struct {
	closed atomic.Bool

	mu    sync.Mutex
	hooks []func()
}

// NewHandle returns an open handle.
func NewHandle() *Handle {
	return &Handle{}
}

// OnClose registers fn to run when the handle is closed. If the handle
// is already closed fn runs immediately.
func (h *Handle) OnClose(fn func()) {
	h.mu.Lock()
	if !h.closed.Load() {
		h.hooks = append(h.hooks, fn)
		h.mu.Unlock()

		return
	}
	h.mu.Unlock()

	fn()
}

// Close marks the window closed. Safe to call more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	if !h.closed.CompareAndSwap(false, true) {
		h.mu.Unlock()
		return nil
	}

	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	return nil
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	return h.closed.Load()
}

// BrowserOpener launches the system browser. The returned window cannot
// observe the real tab, so it is closed only through Close.
type BrowserOpener struct {
	logger *slog.Logger
	start  func(ctx context.Context, url string) error
}

// NewBrowserOpener creates an opener using open, xdg-open or start
// depending on the platform.
func NewBrowserOpener(logger *slog.Logger) *BrowserOpener {
	return &BrowserOpener{
		logger: logger,
		start:  startBrowser,
	}
}

// Open launches the browser at url.
func (o *BrowserOpener) Open(ctx context.Context, url string) (Window, error) {
	if err := o.start(ctx, url); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrPopupBlocked, err)
	}

	o.logger.Debug("browser launched")

	return NewHandle(), nil
}

func startBrowser(_ context.Context, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("empty url")
	}

	// Not bound to ctx: the browser must outlive the command that
	// launched it.
	return browserCommand(runtime.GOOS, target).Start()
}

func browserCommand(goos, target string) *exec.Cmd {
	switch goos {
	case "darwin":
		return exec.Command("open", target)
	case "windows":
		return exec.Command("cmd", "/c", "start", "", target)
	default:
		return exec.Command("xdg-open", target)
	}
}

// ManualOpener asks the operator to open the URL themselves. Used when
// no browser can be launched from this machine.
type ManualOpener struct {
	Out io.Writer
}

// Open prints url and returns an open window.
func (o *ManualOpener) Open(_ context.Context, url string) (Window, error) {
	if _, err := fmt.Fprintf(o.Out, "Open this URL in your browser to sign in:\n\n  %s\n\n", url); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrPopupBlocked, err)
	}

	return NewHandle(), nil
}

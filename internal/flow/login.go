package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexjbarnes/backoffice/internal/models"
)

// ErrCancelled is returned by Login when the popup was closed, or ctx
// ended, before the flow produced a result. Callbacks never see it.
var ErrCancelled = errors.New("sign-in cancelled")

// Login runs a whole flow and waits for it. The consent URL comes from
// src. Ending ctx closes the popup, which finalizes the flow through the
// liveness monitor exactly like a manual close. If the code is already
// being exchanged, Login keeps waiting until the exchange finishes or
// Coordinator.Close interrupts it. onStart, if set, sees the flow once
// it is armed.
func (c *Coordinator) Login(ctx context.Context, src URLSource, onStart func(*Flow)) (*models.LoginResult, error) {
	authURL, err := src.AuthorizationURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching authorization url: %w", err)
	}

	var (
		res     *models.LoginResult
		flowErr error
	)

	f, err := c.StartFlow(ctx, authURL, Callbacks{
		OnSuccess: func(r *models.LoginResult) { res = r },
		OnError:   func(err error) { flowErr = err },
	})
	if err != nil {
		return nil, err
	}

	if onStart != nil {
		onStart(f)
	}

	select {
	case <-f.Done():
	case <-ctx.Done():
		_ = f.Window().Close()
		<-f.Done()
	}

	switch {
	case flowErr != nil:
		return nil, flowErr
	case res != nil:
		return res, nil
	default:
		return nil, ErrCancelled
	}
}

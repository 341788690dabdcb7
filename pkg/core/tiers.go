package core

import (
	"context"
	"errors"
	"time"

	"github.com/oceanbase/agentmem-go/pkg/storage"
)

// opConnect labels tier failures while building a client.
const opConnect = "connect"

const (
	resultOK      = "ok"
	resultError   = "error"
	resultTimeout = "timeout"
)

// tiers returns the configured backends in fallback order.
func (c *Client) tiers() []storage.Backend {
	out := make([]storage.Backend, 0, 3)
	if c.semantic != nil {
		out = append(out, c.semantic)
	}
	if c.durable != nil {
		out = append(out, c.durable)
	}
	return append(out, c.terminal)
}

// callTier runs fn against one tier under its own timeout and records the
// outcome. A timeout is reported as ErrBackendUnavailable.
func (c *Client) callTier(ctx context.Context, op string, tier storage.Backend, fn func(context.Context) error) error {
	tctx, cancel := context.WithTimeout(ctx, c.tierTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- fn(tctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-tctx.Done():
		err = ErrBackendUnavailable
	}
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		c.metrics.observe(op, tier.Name(), resultOK, elapsed)
	case errors.Is(err, ErrBackendUnavailable) || errors.Is(err, context.DeadlineExceeded):
		c.metrics.observe(op, tier.Name(), resultTimeout, elapsed)
	default:
		c.metrics.observe(op, tier.Name(), resultError, elapsed)
	}
	return err
}

// fallThrough logs a tier transition at warn level.
func (c *Client) fallThrough(op string, tier storage.Backend, reason string, err error) {
	c.metrics.fallback(op, tier.Name())
	ev := c.logger.Warn().Str("operation", op).Str("tier", tier.Name()).Str("reason", reason)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("memory tier fell through")
}

// skipTier records a tier left out of the chain because it was unreachable
// at startup. Calls then go straight to the remaining tiers.
func (c *Client) skipTier(tier string, err error) {
	c.metrics.fallback(opConnect, tier)
	c.logger.Warn().Err(err).Str("tier", tier).Msg("memory tier unavailable at startup, continuing without it")
}

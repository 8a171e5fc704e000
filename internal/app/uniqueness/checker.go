// Package uniqueness answers whether a candidate identifier is still free.
//
// The answer is advisory. Two devices can both see "available" for the same
// identifier; the profile store's own constraint decides who gets it.
package uniqueness

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/eskate/storefront-api/internal/platform/metrics"
	"github.com/eskate/storefront-api/internal/ports/out/profilestore"
)

// DefaultQueryTimeout bounds one shared store query.
const DefaultQueryTimeout = 10 * time.Second

// ErrEmptyIdentifier is returned for blank identifiers; they are never checked remotely.
var ErrEmptyIdentifier = errors.New("identifier is empty")

type Checker struct {
	store   profilestore.Store
	log     *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	inflight singleflight.Group
}

type Option func(*Checker)

func WithLogger(log *zap.Logger) Option {
	return func(c *Checker) {
		if log != nil {
			c.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Checker) { c.metrics = m }
}

// WithQueryTimeout sets how long a shared store query may run. Non-positive
// values keep the default.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewChecker(store profilestore.Store, opts ...Option) *Checker {
	c := &Checker{store: store, log: zap.NewNop(), timeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsAvailable reports whether no profile carries identifier. An empty query
// result means available.
//
// Concurrent checks for the same identifier share one store query. The query
// is not cancelled when ctx is; it runs under its own query timeout. A caller
// that gives up detaches the identifier so later checks query afresh.
func (c *Checker) IsAvailable(ctx context.Context, identifier string) (bool, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return false, ErrEmptyIdentifier
	}

	ch := c.inflight.DoChan(id, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		profiles, err := c.store.QueryByField(qctx, profilestore.FieldIdentifier, id)
		if err != nil {
			return false, err
		}
		return len(profiles) == 0, nil
	})

	select {
	case <-ctx.Done():
		c.inflight.Forget(id)
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.metrics.IncrementUniquenessCheck("error")
			c.log.Warn("identifier availability check failed", zap.String("identifier", id), zap.Error(res.Err))
			return false, res.Err
		}
		available := res.Val.(bool)
		if available {
			c.metrics.IncrementUniquenessCheck("available")
		} else {
			c.metrics.IncrementUniquenessCheck("taken")
		}
		return available, nil
	}
}

package idempotency

import (
	"context"
	"sync"
	"time"

	clockport "github.com/eskate/storefront-api/internal/ports/out/clock"
	"github.com/eskate/storefront-api/internal/ports/out/idempotency"
)

// Store is an in-memory implementation of idempotency.Store.
// It is safe for concurrent use.
//
// Records older than the retention window are treated as absent and dropped
// lazily on the next Put.
type Store struct {
	mu        sync.RWMutex
	m         map[idempotency.Fingerprint]idempotency.Record
	clk       clockport.Clock
	retention time.Duration
}

// NewStore returns a store that keeps records for retention. A zero retention
// keeps records forever; a nil clock disables expiry.
func NewStore(clk clockport.Clock, retention time.Duration) *Store {
	return &Store{
		m:         make(map[idempotency.Fingerprint]idempotency.Record),
		clk:       clk,
		retention: retention,
	}
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.m[fp]
	if !ok || s.expired(rec) {
		return idempotency.Record{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.m {
		if s.expired(v) {
			delete(s.m, k)
		}
	}
	if rec.CreatedAt.IsZero() && s.clk != nil {
		rec.CreatedAt = s.clk.Now().UTC()
	}
	s.m[fp] = cloneRecord(rec)
	return nil
}

func (s *Store) expired(rec idempotency.Record) bool {
	if s.clk == nil || s.retention <= 0 || rec.CreatedAt.IsZero() {
		return false
	}
	return s.clk.Now().Sub(rec.CreatedAt) > s.retention
}

func cloneRecord(rec idempotency.Record) idempotency.Record {
	out := rec
	out.Body = append([]byte(nil), rec.Body...)
	return out
}

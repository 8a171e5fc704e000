package orphanreport

import (
	"context"
	"sync"

	"github.com/eskate/storefront-api/internal/ports/out/orphanreport"
)

// Reporter keeps reported orphans in memory so operators (and tests) can list them.
// It is safe for concurrent use.
type Reporter struct {
	mu      sync.Mutex
	orphans []orphanreport.Orphan
}

func NewReporter() *Reporter {
	return &Reporter{}
}

func (r *Reporter) ReportOrphan(ctx context.Context, o orphanreport.Orphan) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphans = append(r.orphans, o)
	return nil
}

// Orphans returns a copy of every reported orphan in report order.
func (r *Reporter) Orphans() []orphanreport.Orphan {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]orphanreport.Orphan, len(r.orphans))
	copy(out, r.orphans)
	return out
}

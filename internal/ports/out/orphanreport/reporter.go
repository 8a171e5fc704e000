package orphanreport

import (
	"context"
	"time"

	"github.com/eskate/storefront-api/internal/domain"
)

// Orphan describes an identity that was created without a matching profile
// and could not be rolled back.
type Orphan struct {
	Subject      domain.SubjectID `json:"subject"`
	Email        string           `json:"email"`
	Identifier   string           `json:"identifier"`
	Cause        string           `json:"cause"`
	Compensation string           `json:"compensation"`
	DetectedAt   time.Time        `json:"detectedAt"`
}

// Reporter hands orphaned identities to whoever follows them up.
type Reporter interface {
	ReportOrphan(ctx context.Context, o Orphan) error
}

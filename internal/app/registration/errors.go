package registration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eskate/storefront-api/internal/app/validation"
	"github.com/eskate/storefront-api/internal/domain"
)

var ErrUnknownField = errors.New("unknown field")

// BlockedError is returned by Submit when the freshest validation pass failed.
// Nothing is handed to provisioning.
type BlockedError struct {
	Outcome validation.Outcome
}

func (e *BlockedError) Error() string {
	failed := e.Outcome.Failed()
	names := make([]string, 0, len(failed))
	for _, f := range failed {
		names = append(names, string(f))
	}
	return fmt.Sprintf("registration blocked: invalid %s", strings.Join(names, ", "))
}

// OnlyIdentifierTaken reports whether the single blocking reason is an
// identifier that is already in use.
func (e *BlockedError) OnlyIdentifierTaken() bool {
	failed := e.Outcome.Failed()
	if len(failed) != 1 || failed[0] != domain.FieldIdentifier {
		return false
	}
	r, _ := e.Outcome.Result(domain.FieldIdentifier)
	return r.Code == validation.CodeIdentifierTaken
}

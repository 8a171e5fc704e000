package registration

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/eskate/storefront-api/internal/app/provisioning"
	"github.com/eskate/storefront-api/internal/app/session"
	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/platform/logging"
)

// Provisioner performs the account writes for a submitted draft.
type Provisioner interface {
	Provision(ctx context.Context, draft domain.RegistrationDraft) (domain.UserProfile, error)
	CompleteProfile(ctx context.Context, draft domain.RegistrationDraft) (domain.UserProfile, error)
}

// Sessions resolves the device session after the writes.
type Sessions interface {
	Resolve(ctx context.Context) session.State
	Establish(ctx context.Context) (session.State, error)
}

// Workflow chains a form submission, the account writes and session
// establishment for one device.
type Workflow struct {
	form     *Form
	accounts Provisioner
	sessions Sessions
	log      *zap.Logger
}

func NewWorkflow(form *Form, accounts Provisioner, sessions Sessions, log *zap.Logger) *Workflow {
	return &Workflow{form: form, accounts: accounts, sessions: sessions, log: logging.OrNop(log)}
}

func (w *Workflow) Form() *Form { return w.form }

// Register submits the form and, if it is submittable, provisions the account
// and establishes the session. A blocked form never reaches provisioning.
func (w *Workflow) Register(ctx context.Context) (session.State, error) {
	return w.run(ctx, w.accounts.Provision)
}

// CompleteProfile submits the form and writes its profile under the identity
// already signed in. It is offered after a registration left an orphan.
func (w *Workflow) CompleteProfile(ctx context.Context) (session.State, error) {
	return w.run(ctx, w.accounts.CompleteProfile)
}

func (w *Workflow) run(ctx context.Context, write func(context.Context, domain.RegistrationDraft) (domain.UserProfile, error)) (session.State, error) {
	draft, err := w.form.Submit(ctx)
	if err != nil {
		return session.Anonymous(), err
	}

	profile, err := write(ctx, draft)
	if err != nil {
		var pe *provisioning.Error
		if errors.As(err, &pe) && pe.Retained() {
			// The identity exists and is signed in; show it as such.
			return w.sessions.Resolve(ctx), err
		}
		return session.Anonymous(), err
	}

	w.form.Reset()
	st, err := w.sessions.Establish(ctx)
	if err != nil {
		w.log.Warn("account created but session not established",
			zap.String("subject", string(profile.SubjectID)),
			zap.Error(err),
		)
		return st, err
	}
	return st, nil
}

// Package device keeps the registration form, identity session and session
// marker of each device apart. A device is created on first use and lives
// until it has been idle longer than the prune window.
package device

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eskate/storefront-api/internal/app/provisioning"
	"github.com/eskate/storefront-api/internal/app/registration"
	"github.com/eskate/storefront-api/internal/app/session"
	"github.com/eskate/storefront-api/internal/app/uniqueness"
	"github.com/eskate/storefront-api/internal/app/validation"
	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/platform/logging"
	"github.com/eskate/storefront-api/internal/platform/metrics"
	clockport "github.com/eskate/storefront-api/internal/ports/out/clock"
	"github.com/eskate/storefront-api/internal/ports/out/identityprovider"
	"github.com/eskate/storefront-api/internal/ports/out/orphanreport"
	"github.com/eskate/storefront-api/internal/ports/out/profilestore"
	"github.com/eskate/storefront-api/internal/ports/out/sessioncache"
)

// IdentityFactory returns the identity provider for a device. The device's
// provider session must live in cache.
type IdentityFactory func(cache sessioncache.Cache) identityprovider.Provider

// Deps are shared by every device.
type Deps struct {
	Validator  *validation.Validator
	Checker    *uniqueness.Checker
	Profiles   profilestore.Store
	Sessions   sessioncache.Cache
	Identities IdentityFactory
	Orphans    orphanreport.Reporter
	Clock      clockport.Clock

	Logger  *zap.Logger
	Metrics *metrics.Metrics

	CompensationTimeout time.Duration
	CheckTimeout        time.Duration
	// Location is the zone birth dates are read in; nil means UTC.
	Location *time.Location
}

// Device is the per-device workflow.
type Device struct {
	ID       domain.DeviceID
	Form     *registration.Form
	Workflow *registration.Workflow
	Sessions *session.Bootstrapper

	lastSeen time.Time
}

type Registry struct {
	deps Deps

	mu      sync.Mutex
	devices map[domain.DeviceID]*Device
}

func NewRegistry(deps Deps) *Registry {
	deps.Logger = logging.OrNop(deps.Logger)
	return &Registry{deps: deps, devices: make(map[domain.DeviceID]*Device)}
}

// Get returns the device, creating it on first use.
func (r *Registry) Get(id domain.DeviceID) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.deps.Clock.Now()
	if d, ok := r.devices[id]; ok {
		d.lastSeen = now
		return d
	}
	d := r.build(id)
	d.lastSeen = now
	r.devices[id] = d
	return d
}

// Prune drops devices idle for longer than idle and returns how many were
// dropped. Their sessions survive in the session cache; only unsaved form
// input is lost.
func (r *Registry) Prune(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.deps.Clock.Now().Add(-idle)
	n := 0
	for id, d := range r.devices {
		if d.lastSeen.Before(cutoff) {
			delete(r.devices, id)
			n++
		}
	}
	return n
}

// Len returns the number of live devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

func (r *Registry) build(id domain.DeviceID) *Device {
	log := r.deps.Logger.With(zap.String("device_id", string(id)))
	cache := scope(r.deps.Sessions, id)
	idp := r.deps.Identities(cache)

	var checker registration.Checker
	if r.deps.Checker != nil {
		checker = r.deps.Checker
	}
	form := registration.NewForm(r.deps.Validator, checker,
		registration.WithLogger(log),
		registration.WithMetrics(r.deps.Metrics),
		registration.WithCheckTimeout(r.deps.CheckTimeout),
	)
	sessions := session.NewBootstrapper(idp, r.deps.Profiles, cache,
		session.WithLogger(log),
		session.WithMetrics(r.deps.Metrics),
	)
	accounts := provisioning.NewProvisioner(idp, r.deps.Profiles, r.deps.Orphans, r.deps.Clock,
		provisioning.WithLogger(log),
		provisioning.WithMetrics(r.deps.Metrics),
		provisioning.WithCompensationTimeout(r.deps.CompensationTimeout),
		provisioning.WithLocation(r.deps.Location),
	)
	return &Device{
		ID:       id,
		Form:     form,
		Workflow: registration.NewWorkflow(form, accounts, sessions, log),
		Sessions: sessions,
	}
}

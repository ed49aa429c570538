package engine

import (
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/oxmail/smtpauth/config"
	"github.com/oxmail/smtpauth/interfaces"
)

// Engine holds the process-wide authentication state: the mechanism
// policy, the registered backends and the mechanism ownership map. It
// is immutable after construction and shared by all sessions.
type Engine struct {
	policy   *config.MechanismPolicy
	backends []interfaces.Backend
	byMech   map[string]interfaces.Backend
	logger   *zap.Logger
	metrics  MetricsCollector
}

// New builds an engine from a policy and one or more backends. Every
// mechanism is owned by the first backend that claims it.
func New(policy *config.MechanismPolicy, backends []interfaces.Backend,
	logger *zap.Logger, metrics MetricsCollector) (*Engine, error) {
	if policy == nil {
		return nil, fmt.Errorf("engine requires a mechanism policy")
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("engine requires at least one backend")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}

	byMech := make(map[string]interfaces.Backend)
	for _, backend := range backends {
		for _, mech := range backend.Mechanisms() {
			mech = strings.ToUpper(mech)
			if _, taken := byMech[mech]; !taken {
				byMech[mech] = backend
			}
		}
	}

	if len(policy.Intersect(mechanismNames(byMech))) == 0 {
		return nil, fmt.Errorf("no enabled mechanism is claimed by any backend")
	}

	return &Engine{
		policy:   policy,
		backends: backends,
		byMech:   byMech,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

func mechanismNames(byMech map[string]interfaces.Backend) []string {
	out := make([]string, 0, len(byMech))
	for name := range byMech {
		out = append(out, name)
	}
	return out
}

// Mechanisms returns policy-enabled mechanisms claimed by a backend,
// in advertisement order.
func (e *Engine) Mechanisms() []string {
	return e.policy.Intersect(mechanismNames(e.byMech))
}

// initialized guards the process-wide Initialize call
var initialized atomic.Bool

// Initialize performs the once-per-process engine setup. Calling it a
// second time is a programming error and panics, the engine never
// re-initializes within one process lifetime.
func Initialize(policy *config.MechanismPolicy, backends []interfaces.Backend,
	logger *zap.Logger, metrics MetricsCollector) (*Engine, error) {
	if !initialized.CompareAndSwap(false, true) {
		panic("smtpauth: repeated engine initialization")
	}
	engine, err := New(policy, backends, logger, metrics)
	if err != nil {
		initialized.Store(false)
		return nil, err
	}
	return engine, nil
}

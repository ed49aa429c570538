package auth

import (
	"fmt"
	"sort"

	"github.com/emersion/go-sasl"
	"go.uber.org/zap"

	autherr "github.com/oxmail/smtpauth/errors"
	"github.com/oxmail/smtpauth/interfaces"
)

// SuccessFunc records the identity a negotiator established
type SuccessFunc func(username string)

// Factory builds a fresh negotiator for one authentication attempt,
// bound to the peer identity. The factory must arrange for success to
// be called with the verified username before the negotiator reports
// completion.
type Factory func(info interfaces.ConnInfo, success SuccessFunc) sasl.Server

// GenericBackend adapts go-sasl negotiators to the backend capability
// interface. It owns whatever mechanisms its factories provide.
type GenericBackend struct {
	factories map[string]Factory
	logger    *zap.Logger
}

// NewGenericBackend creates the generic backend. An empty factory set
// is an initialization failure: the server could never authenticate,
// so start-up must abort.
func NewGenericBackend(factories map[string]Factory, logger *zap.Logger) (*GenericBackend, error) {
	if len(factories) == 0 {
		return nil, fmt.Errorf("sasl backend initialization failed: no mechanisms registered")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenericBackend{factories: factories, logger: logger}, nil
}

// Name returns the backend name
func (b *GenericBackend) Name() string {
	return "sasl"
}

// Mechanisms returns whatever the registered negotiators provide
func (b *GenericBackend) Mechanisms() []string {
	out := make([]string, 0, len(b.factories))
	for name := range b.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NewConn creates the per-connection context, bound to the peer
func (b *GenericBackend) NewConn(info interfaces.ConnInfo) (interfaces.BackendConn, error) {
	return &genericConn{backend: b, info: info}, nil
}

type genericConn struct {
	backend *GenericBackend
	info    interfaces.ConnInfo

	server   sasl.Server
	username string
}

func (c *genericConn) Begin(mechanism string, initial []byte, hasInitial bool) interfaces.StepResult {
	factory, ok := c.backend.factories[mechanism]
	if !ok {
		return interfaces.FailureStep(autherr.NewMechanismUnsupported(mechanism))
	}

	c.username = ""
	c.server = factory(c.info, func(username string) { c.username = username })

	// A nil response tells the negotiator there was no initial
	// response, which is different from an empty one.
	var response []byte
	if hasInitial {
		response = initial
		if response == nil {
			response = []byte{}
		}
	}
	return c.step(response)
}

func (c *genericConn) Continue(response []byte) interfaces.StepResult {
	if c.server == nil {
		return interfaces.FailureStep(autherr.NewMalformedResponse("response",
			fmt.Errorf("no negotiation in progress")))
	}
	return c.step(response)
}

// step translates the library's iterative protocol: "more data needed"
// becomes a challenge, "done" becomes success or failure.
func (c *genericConn) step(response []byte) interfaces.StepResult {
	challenge, done, err := c.server.Next(response)
	if err != nil {
		c.server = nil
		return interfaces.FailureStep(autherr.AsAuthError(err))
	}
	if done {
		c.server = nil
		if c.username == "" {
			return interfaces.FailureStep(autherr.NewBackendUnavailable(
				fmt.Errorf("negotiator finished without an identity")))
		}
		return interfaces.SuccessStep(c.username)
	}
	return interfaces.ChallengeStep(challenge)
}

func (c *genericConn) Close() error {
	c.server = nil
	c.username = ""
	return nil
}

// PlainFactory builds PLAIN negotiators verifying against store.
// The authorization identity is ignored.
func PlainFactory(store interfaces.CredentialStore) Factory {
	return func(info interfaces.ConnInfo, success SuccessFunc) sasl.Server {
		return sasl.NewPlainServer(func(identity, username, password string) error {
			pwd := []byte(password)
			defer wipe(pwd)
			if err := store.VerifyPlain(username, pwd); err != nil {
				return err
			}
			success(username)
			return nil
		})
	}
}

// LoginFactory builds LOGIN negotiators verifying against store
func LoginFactory(store interfaces.CredentialStore) Factory {
	return func(info interfaces.ConnInfo, success SuccessFunc) sasl.Server {
		return newLoginServer(func(username, password string) error {
			pwd := []byte(password)
			defer wipe(pwd)
			if err := store.VerifyPlain(username, pwd); err != nil {
				return err
			}
			success(username)
			return nil
		})
	}
}

// DefaultFactories returns the stock factory set over store
func DefaultFactories(store interfaces.CredentialStore) map[string]Factory {
	return map[string]Factory{
		"PLAIN": PlainFactory(store),
		"LOGIN": LoginFactory(store),
	}
}

// Package smtpauth implements the server side of the SMTP AUTH
// extension (RFC 4954): the per-connection challenge/response state
// machine, pluggable credential-verification backends and the strict
// reply-code mapping the dialogue requires.
//
// The engine package drives the dialogue; the auth package provides a
// native directory backend (LOGIN, PLAIN, CRAM-MD5 against a local
// credential store) and a generic backend over go-sasl negotiators.
// The smtpd package is a minimal SMTP front end wiring it all up.
package smtpauth

import (
	"go.uber.org/zap"

	"github.com/oxmail/smtpauth/auth"
	"github.com/oxmail/smtpauth/codec"
	"github.com/oxmail/smtpauth/config"
	"github.com/oxmail/smtpauth/engine"
	"github.com/oxmail/smtpauth/interfaces"
)

const (
	Version = "0.1.0"
	Product = "oxmail smtpauth"
)

// NewEngine builds an engine from a validated configuration, wiring
// the backend the configuration selects over its credential store.
func NewEngine(cfg *config.Config, logger *zap.Logger, collector engine.MetricsCollector) (*engine.Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := cfg.Policy()
	store := auth.NewFileStore(cfg.Auth.UserFile, logger)

	var backends []interfaces.Backend
	switch cfg.Auth.Backend {
	case config.BackendSASL:
		generic, err := auth.NewGenericBackend(auth.DefaultFactories(store), logger)
		if err != nil {
			return nil, err
		}
		backends = append(backends, generic)
	default:
		challenges := codec.NewChallengeSource(cfg.Server.Hostname, logger)
		backends = append(backends, auth.NewDirectoryBackend(
			store, challenges, auth.DirectoryOptionsFromPolicy(policy), logger))
	}

	return engine.New(policy, backends, logger, collector)
}

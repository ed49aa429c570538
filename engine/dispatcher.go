package engine

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oxmail/smtpauth/codec"
	autherr "github.com/oxmail/smtpauth/errors"
	"github.com/oxmail/smtpauth/interfaces"
)

// abortLine is the client token that gives up a dialogue at any step
const abortLine = "*"

// Authenticate drives one authentication attempt to a terminal state.
// mechanism is the name from the AUTH command; initial is the optional
// initial response (still base64), with hasInitial false when the
// command carried none. An empty initial response is treated the same
// as an absent one.
//
// Re-authenticating a session that already holds an identity is a
// caller contract violation and panics; the connection layer must
// logout first.
func (s *Session) Authenticate(mechanism, initial string, hasInitial bool) Outcome {
	if s.identity != nil {
		panic("smtpauth: session already authenticated")
	}
	if s.disconnected {
		panic("smtpauth: authenticate on disconnected session")
	}

	mech := strings.ToUpper(mechanism)
	started := time.Now()
	s.engine.metrics.RecordAttemptStarted(mech)

	outcome := s.dispatch(mech, initial, hasInitial)

	s.engine.metrics.RecordAttemptFinished(mech, outcome.State.String(), time.Since(started))
	return outcome
}

func (s *Session) dispatch(mech, initial string, hasInitial bool) Outcome {
	// Policy gate first: a disabled mechanism is rejected before any
	// backend is consulted.
	if !s.engine.policy.Enabled(mech) {
		return s.reject(mech, autherr.NewMechanismDisabled(mech))
	}
	backend, ok := s.engine.byMech[mech]
	if !ok {
		return s.reject(mech, autherr.NewMechanismUnsupported(mech))
	}
	bconn, ok := s.backendConns[backend.Name()]
	if !ok {
		return s.reject(mech, autherr.NewBackendUnavailable(nil))
	}

	// Decode the optional initial response. Empty means absent, which
	// triggers the challenge round trip instead of a decode failure.
	var initialBytes []byte
	hasInitial = hasInitial && initial != ""
	if hasInitial {
		decoded, err := codec.Decode(initial)
		if err != nil {
			return s.reject(mech, autherr.NewMalformedResponse("initial response", err))
		}
		initialBytes = decoded
		defer wipe(initialBytes)
	}

	step := bconn.Begin(mech, initialBytes, hasInitial)

	for step.Kind == interfaces.StepChallenge {
		s.engine.metrics.RecordChallengeIssued(mech)
		if err := s.conn.Reply(autherr.CodeContinue, codec.Encode(step.Challenge)); err != nil {
			return s.dropped(mech, err)
		}

		line, err := s.conn.ReadLine()
		if err != nil {
			// Timeout or teardown while awaiting the client: the
			// attempt resolves as aborted, never left dangling.
			return s.dropped(mech, err)
		}
		if line == abortLine {
			return s.aborted(mech)
		}

		response, err := codec.Decode(line)
		if err != nil {
			return s.reject(mech, autherr.NewMalformedResponse("response", err))
		}
		step = bconn.Continue(response)
		wipe(response)
	}

	switch step.Kind {
	case interfaces.StepSuccess:
		return s.succeed(mech, step.Username)
	default:
		return s.reject(mech, autherr.AsAuthError(step.Err))
	}
}

func (s *Session) succeed(mech, username string) Outcome {
	s.identity = &interfaces.Identity{Username: username, Mechanism: mech}
	s.logger.Info("authentication successful",
		zap.String("mechanism", mech),
		zap.String("username", username))
	if err := s.conn.Reply(autherr.CodeAuthSuccessful, "2.7.0 Authentication successful"); err != nil {
		s.logger.Warn("success reply failed", zap.Error(err))
	}
	return Outcome{State: StateAuthenticated, Identity: s.identity}
}

func (s *Session) reject(mech string, err *autherr.AuthError) Outcome {
	switch err.Reason {
	case autherr.ReasonBackendUnavailable:
		s.logger.Error("authentication backend unavailable",
			zap.String("mechanism", mech),
			zap.Error(err))
	default:
		s.logger.Warn("authentication failed",
			zap.String("mechanism", mech),
			zap.String("reason", err.Reason.String()),
			zap.Error(err))
	}
	if replyErr := s.conn.Reply(err.Code, err.ReplyText()); replyErr != nil {
		s.logger.Warn("failure reply failed", zap.Error(replyErr))
	}
	return Outcome{State: StateRejected, Err: err}
}

// aborted handles the client's explicit "*" give-up token
func (s *Session) aborted(mech string) Outcome {
	err := autherr.NewAborted(nil)
	s.logger.Info("authentication aborted by client", zap.String("mechanism", mech))
	if replyErr := s.conn.Reply(err.Code, err.ReplyText()); replyErr != nil {
		s.logger.Warn("abort reply failed", zap.Error(replyErr))
	}
	return Outcome{State: StateAborted, Err: err}
}

// dropped handles a connection that timed out or went away while the
// dialogue was in progress. No reply is attempted.
func (s *Session) dropped(mech string, cause error) Outcome {
	s.logger.Info("authentication dialogue interrupted",
		zap.String("mechanism", mech),
		zap.Error(cause))
	return Outcome{State: StateAborted, Err: autherr.NewAborted(cause)}
}

// wipe zeroes a credential buffer once the backend is done with it
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

package engine

import (
	"go.uber.org/zap"

	autherr "github.com/oxmail/smtpauth/errors"
	"github.com/oxmail/smtpauth/interfaces"
)

// DialogueState tracks one authentication attempt through the state
// machine. Terminal states are Authenticated, Aborted and Rejected.
type DialogueState int

const (
	StateIdle DialogueState = iota
	StateMechanismChosen
	StateAwaitingClientResponse
	StateAuthenticated
	StateAborted
	StateRejected
)

func (s DialogueState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMechanismChosen:
		return "mechanism_chosen"
	case StateAwaitingClientResponse:
		return "awaiting_client_response"
	case StateAuthenticated:
		return "authenticated"
	case StateAborted:
		return "aborted"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one authentication attempt
type Outcome struct {
	State    DialogueState
	Identity *interfaces.Identity
	Err      *autherr.AuthError
}

// Session is the per-connection authentication state. Exactly one
// worker drives a session; none of its methods are safe for concurrent
// use on the same session.
type Session struct {
	engine *Engine
	conn   interfaces.LineConn
	info   interfaces.ConnInfo
	logger *zap.Logger

	mechanisms   []string
	identity     *interfaces.Identity
	backendConns map[string]interfaces.BackendConn
	disconnected bool
}

// NewSession performs the per-connection initialization: backend
// contexts are allocated and the advertised mechanism list is computed
// from policy intersected with backend capabilities.
func (e *Engine) NewSession(conn interfaces.LineConn, info interfaces.ConnInfo) (*Session, error) {
	s := &Session{
		engine:       e,
		conn:         conn,
		info:         info,
		logger:       e.logger.With(zap.String("client", info.String())),
		mechanisms:   e.Mechanisms(),
		backendConns: make(map[string]interfaces.BackendConn, len(e.backends)),
	}
	for _, backend := range e.backends {
		bconn, err := backend.NewConn(info)
		if err != nil {
			s.Disconnect()
			return nil, err
		}
		s.backendConns[backend.Name()] = bconn
	}
	e.metrics.RecordSessionOpened()
	return s, nil
}

// Mechanisms returns the mechanism list advertised to this client.
// Fixed at connect time.
func (s *Session) Mechanisms() []string {
	out := make([]string, len(s.mechanisms))
	copy(out, s.mechanisms)
	return out
}

// Identity returns the authenticated identity, or nil
func (s *Session) Identity() *interfaces.Identity {
	return s.identity
}

// Logout clears the authenticated identity. Backend contexts stay
// live for reuse within the same connection. A logout without a prior
// authentication is a no-op.
func (s *Session) Logout() {
	if s.identity != nil {
		s.logger.Debug("logout", zap.String("username", s.identity.Username))
		s.identity = nil
	}
}

// Disconnect releases all backend contexts. Idempotent.
func (s *Session) Disconnect() {
	if s.disconnected {
		return
	}
	s.disconnected = true
	s.identity = nil
	for name, bconn := range s.backendConns {
		if err := bconn.Close(); err != nil {
			s.logger.Warn("backend context close failed",
				zap.String("backend", name),
				zap.Error(err))
		}
	}
	s.backendConns = nil
	s.engine.metrics.RecordSessionClosed()
}

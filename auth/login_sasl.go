package auth

import (
	"github.com/emersion/go-sasl"
)

// loginAuthenticator validates a username and password pair
type loginAuthenticator func(username, password string) error

type loginState int

const (
	loginNotStarted loginState = iota
	loginWaitingUsername
	loginWaitingPassword
)

// loginServer is a server implementation of the LOGIN mechanism, as
// described in draft-murchison-sasl-login-00. LOGIN is obsolete and
// kept for legacy clients that cannot use PLAIN; upstream go-sasl
// retired its server, so it lives here.
type loginServer struct {
	state              loginState
	username, password string
	authenticate       loginAuthenticator
}

func newLoginServer(authenticator loginAuthenticator) sasl.Server {
	return &loginServer{authenticate: authenticator}
}

func (a *loginServer) Next(response []byte) (challenge []byte, done bool, err error) {
	switch a.state {
	case loginNotStarted:
		// Check for initial response field, as per RFC 4422 section 3
		if response == nil {
			challenge = []byte("Username:")
			break
		}
		a.state++
		fallthrough
	case loginWaitingUsername:
		a.username = string(response)
		challenge = []byte("Password:")
	case loginWaitingPassword:
		a.password = string(response)
		err = a.authenticate(a.username, a.password)
		done = true
	default:
		err = sasl.ErrUnexpectedClientResponse
	}
	a.state++
	return
}

package interfaces

// StepKind discriminates the outcome of a single dialogue step
type StepKind int

const (
	// StepChallenge means the backend needs another client response;
	// Challenge carries the raw (not yet base64-encoded) server data.
	StepChallenge StepKind = iota

	// StepSuccess means the backend verified the credentials;
	// Username carries the authenticated identity.
	StepSuccess

	// StepFailure means the attempt is over without an identity;
	// Err carries the typed failure.
	StepFailure
)

// StepResult is what a backend returns from Begin or Continue
type StepResult struct {
	Kind      StepKind
	Challenge []byte
	Username  string
	Err       error
}

// ChallengeStep builds a StepResult asking for another client response
func ChallengeStep(challenge []byte) StepResult {
	return StepResult{Kind: StepChallenge, Challenge: challenge}
}

// SuccessStep builds a StepResult carrying the authenticated username
func SuccessStep(username string) StepResult {
	return StepResult{Kind: StepSuccess, Username: username}
}

// FailureStep builds a StepResult carrying a typed failure
func FailureStep(err error) StepResult {
	return StepResult{Kind: StepFailure, Err: err}
}

// Backend is a pluggable credential verifier. The dispatcher selects a
// backend by the mechanism it claims and never branches on backend
// identity beyond that.
type Backend interface {
	// Name identifies the backend in logs and configuration
	Name() string

	// Mechanisms returns the mechanism names this backend claims
	Mechanisms() []string

	// NewConn creates the backend's per-connection context. It is
	// created once per network connection and closed at disconnect.
	NewConn(info ConnInfo) (BackendConn, error)
}

// BackendConn is a backend's per-connection context. All methods are
// called from the single worker owning the connection.
type BackendConn interface {
	// Begin starts an authentication attempt. hasInitial reports
	// whether the client supplied an initial response; initial holds
	// its decoded bytes (possibly empty).
	Begin(mechanism string, initial []byte, hasInitial bool) StepResult

	// Continue feeds the next decoded client response into the
	// running attempt. The dispatcher wipes the response buffer after
	// Continue returns, so implementations must copy what they keep.
	Continue(response []byte) StepResult

	// Close releases the context. It must be idempotent.
	Close() error
}

// ConnInfo describes the peer of one network connection
type ConnInfo struct {
	RemoteAddr string
	RemoteName string
	TLS        bool
}

// String returns the name[addr] form used in log lines
func (c ConnInfo) String() string {
	if c.RemoteName != "" {
		return c.RemoteName + "[" + c.RemoteAddr + "]"
	}
	return "unknown[" + c.RemoteAddr + "]"
}

// LineConn is the line-level primitive the connection layer provides.
// Reply writes a reply line; ReadLine blocks for one client line and
// honors the connection's read timeout.
type LineConn interface {
	Reply(code int, text string) error
	ReadLine() (string, error)
}

// Identity is the result of a successful authentication
type Identity struct {
	Username  string
	Mechanism string
}

// CredentialStore verifies credentials against an identity store. A
// single store handle is shared by all sessions and must support
// concurrent read-only verification.
type CredentialStore interface {
	// VerifyPlain checks a clear-text credential. The password buffer
	// is owned by the caller and wiped after the call returns.
	VerifyPlain(username string, password []byte) error

	// VerifyCRAMMD5 checks a CRAM-MD5 exchange. The store computes
	// the expected digest for the challenge itself; it never hands
	// out a plaintext secret.
	VerifyCRAMMD5(username, challenge, digest string) error
}

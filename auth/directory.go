package auth

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"

	"github.com/oxmail/smtpauth/codec"
	"github.com/oxmail/smtpauth/config"
	autherr "github.com/oxmail/smtpauth/errors"
	"github.com/oxmail/smtpauth/interfaces"
)

// DirectoryOptions gates the native mechanisms individually
type DirectoryOptions struct {
	EnableLogin   bool
	EnablePlain   bool
	EnableCRAMMD5 bool
}

// DirectoryOptionsFromPolicy derives the gate flags from a policy
func DirectoryOptionsFromPolicy(policy *config.MechanismPolicy) DirectoryOptions {
	return DirectoryOptions{
		EnableLogin:   policy.Enabled(config.MechanismLogin),
		EnablePlain:   policy.Enabled(config.MechanismPlain),
		EnableCRAMMD5: policy.Enabled(config.MechanismCRAMMD5),
	}
}

// DirectoryBackend verifies credentials against a local identity store.
// It implements exactly LOGIN, PLAIN and CRAM-MD5.
type DirectoryBackend struct {
	store      interfaces.CredentialStore
	challenges *codec.ChallengeSource
	opts       DirectoryOptions
	logger     *zap.Logger
}

// NewDirectoryBackend creates the native directory backend
func NewDirectoryBackend(store interfaces.CredentialStore, challenges *codec.ChallengeSource,
	opts DirectoryOptions, logger *zap.Logger) *DirectoryBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryBackend{
		store:      store,
		challenges: challenges,
		opts:       opts,
		logger:     logger,
	}
}

// Name returns the backend name
func (b *DirectoryBackend) Name() string {
	return "directory"
}

// Mechanisms returns the fixed set enabled by the gate flags
func (b *DirectoryBackend) Mechanisms() []string {
	var out []string
	if b.opts.EnableLogin {
		out = append(out, config.MechanismLogin)
	}
	if b.opts.EnablePlain {
		out = append(out, config.MechanismPlain)
	}
	if b.opts.EnableCRAMMD5 {
		out = append(out, config.MechanismCRAMMD5)
	}
	return out
}

// NewConn creates the per-connection context. The store handle itself
// stays lazy; nothing is opened until the first verification.
func (b *DirectoryBackend) NewConn(info interfaces.ConnInfo) (interfaces.BackendConn, error) {
	return &directoryConn{backend: b, info: info}, nil
}

// Dialogue stages of the native mechanisms
type directoryStage int

const (
	stageNone directoryStage = iota
	stageLoginUsername
	stageLoginPassword
	stagePlainResponse
	stageCRAMResponse
)

type directoryConn struct {
	backend *DirectoryBackend
	info    interfaces.ConnInfo

	stage     directoryStage
	username  []byte
	challenge string
}

func (c *directoryConn) reset() {
	wipe(c.username)
	c.stage = stageNone
	c.username = nil
	c.challenge = ""
}

func (c *directoryConn) Begin(mechanism string, initial []byte, hasInitial bool) interfaces.StepResult {
	c.reset()

	switch mechanism {
	case config.MechanismLogin:
		if !c.backend.opts.EnableLogin {
			return interfaces.FailureStep(autherr.NewMechanismDisabled(mechanism))
		}
		if hasInitial && len(initial) > 0 {
			// Initial response carries the username, skip the prompt
			c.username = append([]byte(nil), initial...)
			c.stage = stageLoginPassword
			return interfaces.ChallengeStep([]byte("Password:"))
		}
		c.stage = stageLoginUsername
		return interfaces.ChallengeStep([]byte("Username:"))

	case config.MechanismPlain:
		if !c.backend.opts.EnablePlain {
			return interfaces.FailureStep(autherr.NewMechanismDisabled(mechanism))
		}
		if !hasInitial || len(initial) == 0 {
			// Empty 334 round trip instead of requiring it inline
			c.stage = stagePlainResponse
			return interfaces.ChallengeStep(nil)
		}
		return c.verifyPlain(initial)

	case config.MechanismCRAMMD5:
		if !c.backend.opts.EnableCRAMMD5 {
			return interfaces.FailureStep(autherr.NewMechanismDisabled(mechanism))
		}
		c.challenge = c.backend.challenges.Next()
		c.stage = stageCRAMResponse
		return interfaces.ChallengeStep([]byte(c.challenge))
	}

	return interfaces.FailureStep(autherr.NewMechanismUnsupported(mechanism))
}

func (c *directoryConn) Continue(response []byte) interfaces.StepResult {
	stage := c.stage
	c.stage = stageNone

	switch stage {
	case stageLoginUsername:
		if len(response) == 0 {
			return interfaces.FailureStep(autherr.NewMalformedResponse("username", nil))
		}
		c.username = append([]byte(nil), response...)
		c.stage = stageLoginPassword
		return interfaces.ChallengeStep([]byte("Password:"))

	case stageLoginPassword:
		if len(response) == 0 {
			return interfaces.FailureStep(autherr.NewMalformedResponse("password", nil))
		}
		username := string(c.username)
		wipe(c.username)
		c.username = nil
		if err := c.backend.store.VerifyPlain(username, response); err != nil {
			return interfaces.FailureStep(err)
		}
		return interfaces.SuccessStep(username)

	case stagePlainResponse:
		return c.verifyPlain(response)

	case stageCRAMResponse:
		return c.verifyCRAM(response)
	}

	return interfaces.FailureStep(autherr.NewMalformedResponse("response", fmt.Errorf("no dialogue in progress")))
}

// verifyPlain parses authzid\0authcid\0password and checks the
// clear-text credential. The authzid is ignored.
func (c *directoryConn) verifyPlain(response []byte) interfaces.StepResult {
	parts := bytes.SplitN(response, []byte{0}, 3)
	if len(parts) != 3 {
		return interfaces.FailureStep(autherr.NewMalformedResponse("response",
			fmt.Errorf("expected 3 NUL-separated fields, got %d", len(parts))))
	}
	username := string(parts[1])
	password := parts[2]
	if username == "" || len(password) == 0 {
		return interfaces.FailureStep(autherr.NewMalformedResponse("response",
			fmt.Errorf("empty authentication identity or password")))
	}
	if err := c.backend.store.VerifyPlain(username, password); err != nil {
		return interfaces.FailureStep(err)
	}
	return interfaces.SuccessStep(username)
}

// verifyCRAM splits "username digest" on the first space and asks the
// store to check the digest against the issued challenge.
func (c *directoryConn) verifyCRAM(response []byte) interfaces.StepResult {
	challenge := c.challenge
	c.challenge = ""

	sep := bytes.IndexByte(response, ' ')
	if sep <= 0 || sep == len(response)-1 {
		return interfaces.FailureStep(autherr.NewMalformedResponse("response",
			fmt.Errorf("expected \"username digest\"")))
	}
	username := string(response[:sep])
	digest := string(response[sep+1:])

	if err := c.backend.store.VerifyCRAMMD5(username, challenge, digest); err != nil {
		return interfaces.FailureStep(err)
	}
	return interfaces.SuccessStep(username)
}

func (c *directoryConn) Close() error {
	c.reset()
	return nil
}

// wipe zeroes a credential buffer in place
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

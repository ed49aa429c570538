package auth

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/oxmail/smtpauth/codec"
	autherr "github.com/oxmail/smtpauth/errors"
	"github.com/oxmail/smtpauth/interfaces"
)

// fakeStore is a CredentialStore with call counting
type fakeStore struct {
	users      map[string]string // username -> password, also the CRAM secret
	plainCalls int
	cramCalls  int
}

func (f *fakeStore) VerifyPlain(username string, password []byte) error {
	f.plainCalls++
	if expected, ok := f.users[username]; ok && expected == string(password) {
		return nil
	}
	return autherr.NewPasswordMismatch()
}

func (f *fakeStore) VerifyCRAMMD5(username, challenge, digest string) error {
	f.cramCalls++
	secret, ok := f.users[username]
	if ok && digest == cramDigest(secret, challenge) {
		return nil
	}
	return autherr.NewPasswordMismatch()
}

func newTestBackend(t *testing.T, store interfaces.CredentialStore) *DirectoryBackend {
	t.Helper()
	challenges := codec.NewChallengeSource("mail.example.org", zap.NewNop())
	opts := DirectoryOptions{EnableLogin: true, EnablePlain: true, EnableCRAMMD5: true}
	return NewDirectoryBackend(store, challenges, opts, zap.NewNop())
}

func newTestConn(t *testing.T, store interfaces.CredentialStore) interfaces.BackendConn {
	t.Helper()
	conn, err := newTestBackend(t, store).NewConn(interfaces.ConnInfo{RemoteAddr: "192.0.2.1:4242"})
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	return conn
}

func TestDirectoryMechanisms(t *testing.T) {
	store := &fakeStore{}
	challenges := codec.NewChallengeSource("mail.example.org", zap.NewNop())

	full := NewDirectoryBackend(store, challenges,
		DirectoryOptions{EnableLogin: true, EnablePlain: true, EnableCRAMMD5: true}, nil)
	got := strings.Join(full.Mechanisms(), " ")
	if got != "LOGIN PLAIN CRAM-MD5" {
		t.Errorf("unexpected mechanism list: %q", got)
	}

	plainOnly := NewDirectoryBackend(store, challenges, DirectoryOptions{EnablePlain: true}, nil)
	got = strings.Join(plainOnly.Mechanisms(), " ")
	if got != "PLAIN" {
		t.Errorf("unexpected gated mechanism list: %q", got)
	}
}

func TestLoginDialogue(t *testing.T) {
	store := &fakeStore{users: map[string]string{"bob": "hunter2"}}
	conn := newTestConn(t, store)

	step := conn.Begin("LOGIN", nil, false)
	if step.Kind != interfaces.StepChallenge || string(step.Challenge) != "Username:" {
		t.Fatalf("expected Username: challenge, got %+v", step)
	}

	step = conn.Continue([]byte("bob"))
	if step.Kind != interfaces.StepChallenge || string(step.Challenge) != "Password:" {
		t.Fatalf("expected Password: challenge, got %+v", step)
	}

	step = conn.Continue([]byte("hunter2"))
	if step.Kind != interfaces.StepSuccess || step.Username != "bob" {
		t.Fatalf("expected success for bob, got %+v", step)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	store := &fakeStore{users: map[string]string{"bob": "hunter2"}}
	conn := newTestConn(t, store)

	conn.Begin("LOGIN", nil, false)
	conn.Continue([]byte("bob"))
	step := conn.Continue([]byte("wrong"))

	if step.Kind != interfaces.StepFailure {
		t.Fatalf("expected failure, got %+v", step)
	}
	if autherr.ReasonOf(step.Err) != autherr.ReasonPasswordMismatch {
		t.Errorf("expected password mismatch, got %v", step.Err)
	}
}

func TestLoginInitialResponseCarriesUsername(t *testing.T) {
	store := &fakeStore{users: map[string]string{"bob": "hunter2"}}
	conn := newTestConn(t, store)

	step := conn.Begin("LOGIN", []byte("bob"), true)
	if step.Kind != interfaces.StepChallenge || string(step.Challenge) != "Password:" {
		t.Fatalf("expected Password: challenge, got %+v", step)
	}
	step = conn.Continue([]byte("hunter2"))
	if step.Kind != interfaces.StepSuccess || step.Username != "bob" {
		t.Fatalf("expected success, got %+v", step)
	}
}

func TestLoginEmptyFields(t *testing.T) {
	store := &fakeStore{users: map[string]string{"bob": "hunter2"}}

	conn := newTestConn(t, store)
	conn.Begin("LOGIN", nil, false)
	step := conn.Continue([]byte(""))
	if autherr.ReasonOf(step.Err) != autherr.ReasonMalformedResponse {
		t.Errorf("expected malformed response for empty username, got %+v", step)
	}
	if store.plainCalls != 0 {
		t.Error("store contacted despite malformed username")
	}
}

func TestPlainInline(t *testing.T) {
	store := &fakeStore{users: map[string]string{"alice": "secret"}}
	conn := newTestConn(t, store)

	step := conn.Begin("PLAIN", []byte("\x00alice\x00secret"), true)
	if step.Kind != interfaces.StepSuccess || step.Username != "alice" {
		t.Fatalf("expected success for alice, got %+v", step)
	}
}

func TestPlainDelayedResponse(t *testing.T) {
	store := &fakeStore{users: map[string]string{"alice": "secret"}}
	conn := newTestConn(t, store)

	// No initial response: an empty challenge round trip
	step := conn.Begin("PLAIN", nil, false)
	if step.Kind != interfaces.StepChallenge || len(step.Challenge) != 0 {
		t.Fatalf("expected empty challenge, got %+v", step)
	}

	step = conn.Continue([]byte("authz\x00alice\x00secret"))
	if step.Kind != interfaces.StepSuccess || step.Username != "alice" {
		t.Fatalf("expected success with authzid ignored, got %+v", step)
	}
}

func TestPlainMalformed(t *testing.T) {
	cases := []struct {
		name     string
		response []byte
	}{
		{"no separators", []byte("alicesecret")},
		{"one separator", []byte("alice\x00secret")},
		{"empty username", []byte("\x00\x00secret")},
		{"empty password", []byte("\x00alice\x00")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{users: map[string]string{"alice": "secret"}}
			conn := newTestConn(t, store)

			step := conn.Begin("PLAIN", tc.response, true)
			if step.Kind != interfaces.StepFailure {
				t.Fatalf("expected failure, got %+v", step)
			}
			if autherr.ReasonOf(step.Err) != autherr.ReasonMalformedResponse {
				t.Errorf("expected malformed response, got %v", step.Err)
			}
			if store.plainCalls != 0 {
				t.Error("store contacted despite malformed response")
			}
		})
	}
}

func TestCRAMMD5Dialogue(t *testing.T) {
	store := &fakeStore{users: map[string]string{"carol": "tanstaaftanstaaf"}}
	conn := newTestConn(t, store)

	step := conn.Begin("CRAM-MD5", nil, false)
	if step.Kind != interfaces.StepChallenge {
		t.Fatalf("expected challenge, got %+v", step)
	}
	challenge := string(step.Challenge)
	if !strings.HasPrefix(challenge, "<") || !strings.HasSuffix(challenge, ">") {
		t.Errorf("challenge %q is not a bracketed token", challenge)
	}

	digest := cramDigest("tanstaaftanstaaf", challenge)
	step = conn.Continue([]byte("carol " + digest))
	if step.Kind != interfaces.StepSuccess || step.Username != "carol" {
		t.Fatalf("expected success for carol, got %+v", step)
	}
}

func TestCRAMMD5WrongDigest(t *testing.T) {
	store := &fakeStore{users: map[string]string{"carol": "tanstaaftanstaaf"}}
	conn := newTestConn(t, store)

	step := conn.Begin("CRAM-MD5", nil, false)
	digest := cramDigest("wrongkey", string(step.Challenge))
	step = conn.Continue([]byte("carol " + digest))

	if autherr.ReasonOf(step.Err) != autherr.ReasonPasswordMismatch {
		t.Errorf("expected password mismatch, got %+v", step)
	}
}

func TestCRAMMD5ChallengesNeverRepeat(t *testing.T) {
	store := &fakeStore{}
	conn := newTestConn(t, store)

	first := conn.Begin("CRAM-MD5", nil, false)
	second := conn.Begin("CRAM-MD5", nil, false)
	if string(first.Challenge) == string(second.Challenge) {
		t.Fatalf("consecutive attempts produced the same challenge %q", first.Challenge)
	}
}

func TestCRAMMD5Malformed(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{"no space", "caroldeadbeef"},
		{"leading space", " deadbeef"},
		{"trailing space only", "carol "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{users: map[string]string{"carol": "x"}}
			conn := newTestConn(t, store)

			conn.Begin("CRAM-MD5", nil, false)
			step := conn.Continue([]byte(tc.response))
			if autherr.ReasonOf(step.Err) != autherr.ReasonMalformedResponse {
				t.Errorf("expected malformed response, got %+v", step)
			}
			if store.cramCalls != 0 {
				t.Error("store contacted despite malformed response")
			}
		})
	}
}

func TestDirectoryDisabledMechanism(t *testing.T) {
	store := &fakeStore{}
	challenges := codec.NewChallengeSource("mail.example.org", zap.NewNop())
	backend := NewDirectoryBackend(store, challenges, DirectoryOptions{EnablePlain: true}, nil)
	conn, _ := backend.NewConn(interfaces.ConnInfo{})

	step := conn.Begin("LOGIN", nil, false)
	if autherr.ReasonOf(step.Err) != autherr.ReasonMechanismDisabled {
		t.Errorf("expected mechanism disabled, got %+v", step)
	}
}

func TestDirectoryUnknownMechanism(t *testing.T) {
	conn := newTestConn(t, &fakeStore{})
	step := conn.Begin("GSSAPI", nil, false)
	if autherr.ReasonOf(step.Err) != autherr.ReasonMechanismUnsupported {
		t.Errorf("expected mechanism unsupported, got %+v", step)
	}
}

func TestContinueWithoutDialogue(t *testing.T) {
	conn := newTestConn(t, &fakeStore{})
	step := conn.Continue([]byte("stray"))
	if step.Kind != interfaces.StepFailure {
		t.Fatalf("expected failure, got %+v", step)
	}
}

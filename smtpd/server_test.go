package smtpd

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/oxmail/smtpauth/auth"
	"github.com/oxmail/smtpauth/codec"
	"github.com/oxmail/smtpauth/config"
	"github.com/oxmail/smtpauth/engine"
	"github.com/oxmail/smtpauth/interfaces"
)

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		line, verb, args string
	}{
		{"EHLO client.example.net", "EHLO", "client.example.net"},
		{"quit", "QUIT", ""},
		{"auth plain dGVzdA==", "AUTH", "plain dGVzdA=="},
		{"  NOOP  ", "NOOP", ""},
	}
	for _, tc := range cases {
		verb, args := splitCommand(tc.line)
		if verb != tc.verb || args != tc.args {
			t.Errorf("splitCommand(%q) = %q, %q; want %q, %q",
				tc.line, verb, args, tc.verb, tc.args)
		}
	}
}

func TestLineConnReply(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	lc := newLineConn(server, time.Second, time.Second, 2048)
	go lc.Reply(334, "UGFzc3dvcmQ6")

	reader := bufio.NewReader(client)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "334 UGFzc3dvcmQ6\r\n" {
		t.Errorf("unexpected reply line %q", line)
	}

	// Bare form for an empty challenge
	go lc.Reply(334, "")
	line, _ = reader.ReadString('\n')
	if line != "334\r\n" {
		t.Errorf("unexpected bare reply line %q", line)
	}
}

func TestLineConnReadLine(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	lc := newLineConn(server, time.Second, time.Second, 2048)
	go fmt.Fprintf(client, "AUTH PLAIN\r\n")

	line, err := lc.ReadLine()
	if err != nil {
		t.Fatal(err)
	}
	if line != "AUTH PLAIN" {
		t.Errorf("unexpected line %q", line)
	}
}

func TestLineConnRejectsOverlongLine(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	lc := newLineConn(server, time.Second, time.Second, 16)
	go fmt.Fprintf(client, "AUTH PLAIN %s\r\n", strings.Repeat("A", 64))

	if _, err := lc.ReadLine(); err == nil {
		t.Fatal("overlong line was accepted")
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	userFile := filepath.Join(t.TempDir(), "users.yaml")
	content := fmt.Sprintf("users:\n  - username: alice\n    password_hash: %q\n", hash)
	if err := os.WriteFile(userFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Server.Hostname = "mail.example.org"
	cfg.Auth.UserFile = userFile

	policy := cfg.Policy()
	store := auth.NewFileStore(userFile, zap.NewNop())
	challenges := codec.NewChallengeSource(cfg.Server.Hostname, zap.NewNop())
	backend := auth.NewDirectoryBackend(store, challenges,
		auth.DirectoryOptionsFromPolicy(policy), zap.NewNop())
	eng, err := engine.New(policy, []interfaces.Backend{backend}, zap.NewNop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(cfg, eng, zap.NewNop())
}

// readReply consumes one reply, following hyphen continuations
func readReply(t *testing.T, reader *bufio.Reader) string {
	t.Helper()
	var b strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		b.WriteString(line)
		if len(line) < 4 || line[3] != '-' {
			return b.String()
		}
	}
}

func TestServerCommandLoop(t *testing.T) {
	srv := newTestServer(t)

	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()
	go srv.handleConnection(serverSide)

	reader := bufio.NewReader(clientSide)
	send := func(format string, args ...interface{}) {
		fmt.Fprintf(clientSide, format+"\r\n", args...)
	}
	expect := func(prefix string) string {
		t.Helper()
		reply := readReply(t, reader)
		if !strings.HasPrefix(reply, prefix) {
			t.Fatalf("expected reply starting %q, got %q", prefix, reply)
		}
		return reply
	}

	expect("220 mail.example.org ESMTP")

	send("EHLO client.example.net")
	ehlo := expect("250")
	if !strings.Contains(ehlo, "AUTH LOGIN PLAIN CRAM-MD5") {
		t.Errorf("EHLO did not advertise mechanisms: %q", ehlo)
	}

	// Unknown command
	send("VRFY alice")
	expect("502")

	// AUTH without a mechanism
	send("AUTH")
	expect("501")

	// Wrong password, then inline success
	send("AUTH PLAIN %s", codec.Encode([]byte("\x00alice\x00wrong")))
	expect("535")
	send("AUTH PLAIN %s", codec.Encode([]byte("\x00alice\x00secret")))
	expect("235")

	// Second AUTH without RSET is refused at the command layer
	send("AUTH PLAIN %s", codec.Encode([]byte("\x00alice\x00secret")))
	expect("503")

	// RSET drops the identity, clearing the way for a new attempt
	send("RSET")
	expect("250")
	send("AUTH LOGIN")
	expect("334")
	send("%s", codec.Encode([]byte("alice")))
	expect("334")
	send("%s", codec.Encode([]byte("secret")))
	expect("235")

	send("QUIT")
	expect("221")
}

func TestServerAbortDialogue(t *testing.T) {
	srv := newTestServer(t)

	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()
	go srv.handleConnection(serverSide)

	reader := bufio.NewReader(clientSide)
	readReply(t, reader) // greeting

	fmt.Fprintf(clientSide, "AUTH CRAM-MD5\r\n")
	challenge := readReply(t, reader)
	if !strings.HasPrefix(challenge, "334 ") {
		t.Fatalf("expected challenge, got %q", challenge)
	}

	fmt.Fprintf(clientSide, "*\r\n")
	reply := readReply(t, reader)
	if !strings.HasPrefix(reply, "501 5.7.0 Authentication aborted") {
		t.Errorf("unexpected abort reply %q", reply)
	}

	// The session stays usable after an abort
	fmt.Fprintf(clientSide, "NOOP\r\n")
	if reply := readReply(t, reader); !strings.HasPrefix(reply, "250") {
		t.Errorf("connection unusable after abort: %q", reply)
	}
}

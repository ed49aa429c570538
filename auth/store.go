package auth

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	autherr "github.com/oxmail/smtpauth/errors"
)

// FileStore is a YAML-file backed credential store. The file is opened
// lazily on first verification and the parsed handle is reused across
// attempts. Verification is safe for concurrent sessions.
type FileStore struct {
	path   string
	logger *zap.Logger

	mutex  sync.RWMutex
	once   sync.Once
	users  map[string]*userEntry
	ldErr  error
}

// userEntry represents a user entry in the credential file
type userEntry struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt hash
	// CRAMSecret is the shared secret for CRAM-MD5. Absent means the
	// user cannot authenticate with challenge-response mechanisms.
	CRAMSecret string `yaml:"cram_secret,omitempty"`
}

// userFile represents the structure of the credential file
type userFile struct {
	Users []userEntry `yaml:"users"`
}

// NewFileStore creates a file-backed credential store. The file is not
// touched until the first verification call.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}
}

// ensureLoaded loads the file on first use. A load failure is sticky
// and reported as BackendUnavailable on every verification.
func (s *FileStore) ensureLoaded() error {
	s.once.Do(func() {
		s.ldErr = s.load()
		if s.ldErr != nil {
			s.logger.Error("failed to open credential store",
				zap.String("path", s.path),
				zap.Error(s.ldErr))
		}
	})
	return s.ldErr
}

// load reads and parses the credential file
func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read user file: %w", err)
	}

	var parsed userFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse user file: %w", err)
	}

	users := make(map[string]*userEntry, len(parsed.Users))
	for i := range parsed.Users {
		entry := &parsed.Users[i]
		users[entry.Username] = entry
	}

	s.mutex.Lock()
	s.users = users
	s.mutex.Unlock()
	return nil
}

// Reload re-reads the credential file from disk
func (s *FileStore) Reload() error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	return s.load()
}

func (s *FileStore) lookup(username string) *userEntry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.users[username]
}

// VerifyPlain validates a clear-text credential. Unknown users and
// wrong passwords are indistinguishable in the returned error.
func (s *FileStore) VerifyPlain(username string, password []byte) error {
	if err := s.ensureLoaded(); err != nil {
		return autherr.NewBackendUnavailable(err)
	}

	entry := s.lookup(username)
	if entry == nil || entry.PasswordHash == "" {
		return autherr.NewPasswordMismatch()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(entry.PasswordHash), password); err != nil {
		return autherr.NewPasswordMismatch()
	}
	return nil
}

// VerifyCRAMMD5 computes the expected HMAC-MD5 digest for challenge
// and compares it against the client's hex digest in constant time.
func (s *FileStore) VerifyCRAMMD5(username, challenge, digest string) error {
	if err := s.ensureLoaded(); err != nil {
		return autherr.NewBackendUnavailable(err)
	}

	entry := s.lookup(username)
	if entry == nil || entry.CRAMSecret == "" {
		return autherr.NewPasswordMismatch()
	}

	mac := hmac.New(md5.New, []byte(entry.CRAMSecret))
	mac.Write([]byte(challenge))
	expected := hex.EncodeToString(mac.Sum(nil))

	if len(digest) != len(expected) ||
		subtle.ConstantTimeCompare([]byte(expected), []byte(digest)) != 1 {
		return autherr.NewPasswordMismatch()
	}
	return nil
}

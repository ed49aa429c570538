package codec

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

const randomTokenLength = 16

const alnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// ChallengeSource generates single-use CRAM-MD5 challenges. A challenge
// is a bracketed token derived from the process id, a random component,
// a timestamp and the server host name, unique across attempts with
// overwhelming probability.
type ChallengeSource struct {
	hostname string
	pid      int
	entropy  io.Reader
	logger   *zap.Logger
	now      func() time.Time

	degraded sync.Once
}

// NewChallengeSource creates a challenge source bound to hostname.
// An empty hostname falls back to the OS hostname.
func NewChallengeSource(hostname string, logger *zap.Logger) *ChallengeSource {
	if hostname == "" {
		hostname, _ = os.Hostname()
		if hostname == "" {
			hostname = "localhost"
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChallengeSource{
		hostname: hostname,
		pid:      os.Getpid(),
		entropy:  rand.Reader,
		logger:   logger,
		now:      time.Now,
	}
}

// Next returns a fresh challenge, e.g. <1234.-a9Xk....-1719422213-@-mail.example.org>
func (s *ChallengeSource) Next() string {
	return fmt.Sprintf("<%d.-%s.-%d-@-%s>", s.pid, s.randomToken(), s.now().Unix(), s.hostname)
}

// randomToken draws alphanumeric characters from the entropy source.
// When no secure source is available it degrades to a time-derived
// value, logging the degradation once.
func (s *ChallengeSource) randomToken() string {
	buf := make([]byte, randomTokenLength)
	if _, err := io.ReadFull(s.entropy, buf); err != nil {
		s.degraded.Do(func() {
			s.logger.Warn("no secure randomness source, challenges degrade to time-based values",
				zap.Error(err))
		})
		return fmt.Sprintf("%d", s.now().UnixMicro())
	}
	for i, b := range buf {
		buf[i] = alnum[int(b)%len(alnum)]
	}
	return string(buf)
}

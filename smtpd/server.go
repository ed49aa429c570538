package smtpd

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/oxmail/smtpauth/config"
	"github.com/oxmail/smtpauth/engine"
	"github.com/oxmail/smtpauth/interfaces"
)

const serverProduct = "oxmail smtpauth"

// Server is a minimal SMTP front end exercising the AUTH engine. It
// owns the sockets and the command loop; the engine owns the
// authentication dialogue.
type Server struct {
	Addr     string
	Listener net.Listener
	Engine   *engine.Engine
	Config   *config.Config
	Log      *zap.Logger

	mutex    sync.Mutex
	shutdown bool
}

// NewServer creates a front-end server around an engine
func NewServer(cfg *config.Config, eng *engine.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Addr:   cfg.Network.Address,
		Engine: eng,
		Config: cfg,
		Log:    logger,
	}
}

// Start listens and serves until Stop is called
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.mutex.Lock()
	s.Listener = listener
	s.mutex.Unlock()

	s.Log.Info("SMTP AUTH server listening", zap.String("addr", s.Addr))

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mutex.Lock()
			done := s.shutdown
			s.mutex.Unlock()
			if done {
				return nil
			}
			s.Log.Error("error accepting connection", zap.Error(err))
			continue
		}
		go s.handleConnection(conn)
	}
}

// Stop closes the listener; in-flight connections finish their command
func (s *Server) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.shutdown {
		return
	}
	s.shutdown = true
	if s.Listener != nil {
		s.Listener.Close()
	}
}

func (s *Server) hostname() string {
	if s.Config.Server.Hostname != "" {
		return s.Config.Server.Hostname
	}
	return "localhost"
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	lc := newLineConn(conn,
		s.Config.Network.ReadTimeout,
		s.Config.Network.WriteTimeout,
		s.Config.Network.MaxLineLength)

	info := interfaces.ConnInfo{RemoteAddr: conn.RemoteAddr().String()}
	session, err := s.Engine.NewSession(lc, info)
	if err != nil {
		s.Log.Error("session initialization failed",
			zap.String("client", info.String()),
			zap.Error(err))
		lc.Reply(421, fmt.Sprintf("%s Service not available", s.hostname()))
		return
	}
	defer session.Disconnect()

	if err := lc.Reply(220, fmt.Sprintf("%s ESMTP %s", s.hostname(), serverProduct)); err != nil {
		return
	}

	for {
		line, err := lc.ReadLine()
		if err != nil {
			s.Log.Debug("connection closed",
				zap.String("client", info.String()),
				zap.Error(err))
			return
		}
		if quit := s.handleCommand(lc, session, line); quit {
			return
		}
	}
}

// handleCommand dispatches one SMTP command; it returns true on QUIT
func (s *Server) handleCommand(lc *lineConn, session *engine.Session, line string) bool {
	verb, args := splitCommand(line)

	switch verb {
	case "EHLO":
		lines := []string{s.hostname()}
		if mechs := session.Mechanisms(); len(mechs) > 0 {
			lines = append(lines, "AUTH "+strings.Join(mechs, " "))
		}
		lines = append(lines, "8BITMIME")
		lc.ReplyLines(250, lines)

	case "HELO":
		lc.Reply(250, s.hostname())

	case "AUTH":
		s.handleAuth(lc, session, args)

	case "NOOP":
		lc.Reply(250, "2.0.0 Ok")

	case "RSET":
		session.Logout()
		lc.Reply(250, "2.0.0 Ok")

	case "QUIT":
		lc.Reply(221, "2.0.0 Bye")
		return true

	default:
		lc.Reply(502, "5.5.2 Error: command not recognized")
	}
	return false
}

// handleAuth guards the engine's one-AUTH-per-session contract and
// hands the dialogue to the dispatcher.
func (s *Server) handleAuth(lc *lineConn, session *engine.Session, args string) {
	if session.Identity() != nil {
		lc.Reply(503, "5.5.1 Error: already authenticated")
		return
	}
	if args == "" {
		lc.Reply(501, "5.5.4 Syntax: AUTH mechanism")
		return
	}

	mechanism, initial := splitCommand(args)
	session.Authenticate(mechanism, initial, initial != "")
}

func splitCommand(line string) (verb, args string) {
	verb, args, _ = strings.Cut(strings.TrimSpace(line), " ")
	return strings.ToUpper(verb), strings.TrimSpace(args)
}

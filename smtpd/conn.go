package smtpd

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
)

// lineConn is the line-level view of one client connection. It
// implements the engine's LineConn contract: Reply writes one reply
// line, ReadLine blocks for one client line under the read deadline.
type lineConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxLine      int
}

func newLineConn(conn net.Conn, readTimeout, writeTimeout time.Duration, maxLine int) *lineConn {
	return &lineConn{
		conn:         conn,
		reader:       bufio.NewReaderSize(conn, maxLine),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		maxLine:      maxLine,
	}
}

// Reply writes "<code> <text>\r\n", or "<code>\r\n" when text is
// empty, the bare form used for empty 334 challenges.
func (c *lineConn) Reply(code int, text string) error {
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	var err error
	if text == "" {
		_, err = fmt.Fprintf(c.conn, "%d\r\n", code)
	} else {
		_, err = fmt.Fprintf(c.conn, "%d %s\r\n", code, text)
	}
	return err
}

// ReplyLines writes a multi-line reply, hyphen-continued per RFC 5321
func (c *lineConn) ReplyLines(code int, lines []string) error {
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	for i, line := range lines {
		sep := "-"
		if i == len(lines)-1 {
			sep = " "
		}
		if _, err := fmt.Fprintf(c.conn, "%d%s%s\r\n", code, sep, line); err != nil {
			return err
		}
	}
	return nil
}

// ReadLine reads one client line, CRLF stripped
func (c *lineConn) ReadLine() (string, error) {
	if c.readTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) > c.maxLine {
		return "", fmt.Errorf("line longer than %d bytes", c.maxLine)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *lineConn) Close() error {
	return c.conn.Close()
}

package gateway

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxLineLen   = 1024
	writeTimeout = 10 * time.Second
)

var ErrLineTooLong = errors.New("input line too long")

// LineConn is one client transport: a stream of text lines. The TCP
// flavor frames with CRLF; the websocket flavor maps one text message
// to one line.
type LineConn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	RemoteAddr() string
}

type tcpLineConn struct {
	conn net.Conn
	r    *bufio.Reader
}

// NewTCPLineConn wraps a stream socket. Works for plain TCP and TLS
// alike, since both satisfy net.Conn.
func NewTCPLineConn(conn net.Conn) LineConn {
	return &tcpLineConn{conn: conn, r: bufio.NewReaderSize(conn, maxLineLen*2)}
}

func (t *tcpLineConn) ReadLine() (string, error) {
	line, err := t.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) > maxLineLen {
		return "", ErrLineTooLong
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (t *tcpLineConn) WriteLine(line string) error {
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := t.conn.Write([]byte(line + "\r\n"))
	return err
}

func (t *tcpLineConn) Close() error {
	return t.conn.Close()
}

func (t *tcpLineConn) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

type wsLineConn struct {
	conn *websocket.Conn
}

// NewWSLineConn adapts an upgraded websocket connection.
func NewWSLineConn(conn *websocket.Conn) LineConn {
	conn.SetReadLimit(maxLineLen * 2)
	return &wsLineConn{conn: conn}
}

func (w *wsLineConn) ReadLine() (string, error) {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
}

func (w *wsLineConn) WriteLine(line string) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (w *wsLineConn) Close() error {
	return w.conn.Close()
}

func (w *wsLineConn) RemoteAddr() string {
	return w.conn.RemoteAddr().String()
}

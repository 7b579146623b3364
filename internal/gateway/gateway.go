package gateway

import (
	"errors"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"blackjack-lite/internal/command"
	"blackjack-lite/internal/protocol"
	"blackjack-lite/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict origins in production
	},
}

// Gateway owns the live connections and runs each one's read loop
// against the command dispatcher.
type Gateway struct {
	dispatcher *command.Registry
	greeting   protocol.Code

	mu    sync.RWMutex
	conns map[string]*Connection
}

func New(dispatcher *command.Registry, serverVersion string) *Gateway {
	return &Gateway{
		dispatcher: dispatcher,
		greeting:   protocol.New(protocol.CodeVersion, serverVersion),
		conns:      make(map[string]*Connection),
	}
}

// Serve accepts stream connections until the listener closes.
func (g *Gateway) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go g.Handle(NewTCPLineConn(conn))
	}
}

// HandleWebSocket upgrades an HTTP request and runs the same protocol
// over text messages.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] upgrade error: %v", err)
		return
	}
	go g.Handle(NewWSLineConn(conn))
}

// Handle runs one client's full lifecycle and returns when the
// connection is gone.
func (g *Gateway) Handle(t LineConn) {
	c := newConnection(t)

	g.mu.Lock()
	g.conns[c.id] = c
	total := len(g.conns)
	g.mu.Unlock()
	log.Printf("[Gateway] client connected: %s from %s, total: %d", c.id, t.RemoteAddr(), total)

	go c.writePump()
	c.reply(g.greeting)
	g.readLoop(c)
}

// A client gets this many oversize lines before the connection is
// dropped as abusive. The transport consumes the offending line in
// full, so the stream stays aligned and reading can continue.
const maxOversizeLines = 3

func (g *Gateway) readLoop(c *Connection) {
	defer g.cleanup(c)

	oversize := 0
	for {
		line, err := c.transport.ReadLine()
		if err != nil {
			if errors.Is(err, ErrLineTooLong) {
				oversize++
				c.reply(protocol.New(protocol.CodeSyntaxError, "line too long"))
				if oversize < maxOversizeLines {
					log.Printf("[Gateway] oversize line from %s, discarded", c.id)
					continue
				}
				log.Printf("[Gateway] dropping %s after repeated oversize lines", c.id)
			}
			return
		}
		c.Touch()

		code := g.dispatcher.Dispatch(c, line)
		if code.IsSuccess() {
			c.MarkSuccess()
		}
		c.reply(code)
		if code.Number == protocol.CodeGoodbye {
			return
		}
		if c.State() == protocol.StateDisconnected {
			return
		}
	}
}

// cleanup detaches a finished connection: leave any session, drop the
// registry entry, close the transport.
func (g *Gateway) cleanup(c *Connection) {
	if s, u := c.Session(), c.User(); s != nil && u != nil {
		if err := s.Leave(u.Username); err != nil && !errors.Is(err, session.ErrNotMember) {
			log.Printf("[Gateway] leave on disconnect %s: %v", c.id, err)
		}
		c.SetSession(nil)
	}
	c.SetState(protocol.StateDisconnected)
	c.shutdown()

	g.mu.Lock()
	delete(g.conns, c.id)
	total := len(g.conns)
	g.mu.Unlock()
	log.Printf("[Gateway] client disconnected: %s, total: %d", c.id, total)
}

// Connections snapshots the live set, for the idle sweeper.
func (g *Gateway) Connections() []*Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Connection, 0, len(g.conns))
	for _, c := range g.conns {
		out = append(out, c)
	}
	return out
}

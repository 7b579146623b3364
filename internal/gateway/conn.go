package gateway

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"blackjack-lite/internal/auth"
	"blackjack-lite/internal/protocol"
	"blackjack-lite/internal/session"
)

const sendBuffer = 256

// Connection is one client: a transport, a protocol state, and the
// identity accumulated through the login handshake. It implements both
// the command layer's Conn and the session layer's Messenger.
type Connection struct {
	id        string
	transport LineConn
	send      chan protocol.Code
	done      chan struct{}
	closeOnce sync.Once
	wmu       sync.Mutex

	mu           sync.Mutex
	state        protocol.State
	lastActivity time.Time
	lastSuccess  time.Time
	stateEntered time.Time
	pending      string
	user         *auth.User
	sess         *session.Session
}

func newConnection(t LineConn) *Connection {
	now := time.Now()
	return &Connection{
		id:           uuid.NewString(),
		transport:    t,
		send:         make(chan protocol.Code, sendBuffer),
		done:         make(chan struct{}),
		state:        protocol.StateAwaitingUsername,
		lastActivity: now,
		stateEntered: now,
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) State() protocol.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState moves the protocol state and restarts the state timer.
// Disconnected is sticky: once entered no transition leaves it, and
// entering it shuts the transport down.
func (c *Connection) SetState(s protocol.State) {
	c.mu.Lock()
	if c.state == protocol.StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.stateEntered = time.Now()
	c.mu.Unlock()

	if s == protocol.StateDisconnected {
		c.shutdown()
	}
}

// shutdown closes the transport exactly once, no matter how many
// paths (QUIT, read error, sweeper expiry) race into it. Queued pushes
// are flushed first so a final notice still reaches the client.
func (c *Connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.flushPending()
		if err := c.transport.Close(); err != nil {
			log.Printf("[Gateway] close %s: %v", c.id, err)
		}
	})
}

// flushPending drains whatever remains in the send buffer onto the
// transport. The write pump may be racing on the same channel; either
// way each queued code is written once.
func (c *Connection) flushPending() {
	for {
		select {
		case code := <-c.send:
			if err := c.writeCode(code); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Touch records client activity for the idle sweeper.
func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// MarkSuccess records the completion time of an accepted command.
func (c *Connection) MarkSuccess() {
	c.mu.Lock()
	c.lastSuccess = time.Now()
	c.mu.Unlock()
}

// Alive reports whether the transport is still open.
func (c *Connection) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *Connection) LastSuccess() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSuccess
}

func (c *Connection) StateEntered() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateEntered
}

func (c *Connection) User() *auth.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *Connection) SetUser(u *auth.User) {
	c.mu.Lock()
	c.user = u
	c.mu.Unlock()
}

func (c *Connection) PendingUsername() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Connection) SetPendingUsername(name string) {
	c.mu.Lock()
	c.pending = name
	c.mu.Unlock()
}

func (c *Connection) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *Connection) SetSession(s *session.Session) {
	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()
}

// Push queues an asynchronous notification. A full buffer drops the
// push rather than stall a session driver on one slow client.
func (c *Connection) Push(code protocol.Code) {
	select {
	case c.send <- code:
	case <-c.done:
	default:
		log.Printf("[Gateway] %s send buffer full, dropping %d", c.id, code.Number)
	}
}

// reply writes a command response in the read loop's own goroutine,
// so a reply is always flushed before the loop acts on the new state.
func (c *Connection) reply(code protocol.Code) {
	if err := c.writeCode(code); err != nil {
		c.SetState(protocol.StateDisconnected)
	}
}

// writePump drains asynchronous pushes from session drivers and the
// sweeper onto the transport.
func (c *Connection) writePump() {
	for {
		select {
		case code := <-c.send:
			if err := c.writeCode(code); err != nil {
				c.SetState(protocol.StateDisconnected)
				return
			}
		case <-c.done:
			return
		}
	}
}

// writeCode renders one response. Multiline codes emit the status line,
// each body row as its own line, and a blank terminator line. The lock
// keeps replies and pushes from interleaving mid-response.
func (c *Connection) writeCode(code protocol.Code) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	wire := protocol.Format(code)
	if !code.IsMultiline() {
		return c.transport.WriteLine(wire)
	}
	for _, line := range strings.Split(wire, "\n") {
		if err := c.transport.WriteLine(line); err != nil {
			return err
		}
	}
	return c.transport.WriteLine("")
}

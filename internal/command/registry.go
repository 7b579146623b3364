package command

import (
	"log"
	"strings"

	"blackjack-lite/internal/auth"
	"blackjack-lite/internal/protocol"
	"blackjack-lite/internal/session"
)

// Conn is the slice of a client connection a handler may touch. The
// gateway's connection type implements it.
type Conn interface {
	ID() string
	State() protocol.State
	SetState(state protocol.State)
	User() *auth.User
	SetUser(u *auth.User)
	PendingUsername() string
	SetPendingUsername(name string)
	Session() *session.Session
	SetSession(s *session.Session)
	Push(code protocol.Code)
}

// Handler binds a command word to an action plus the gate that guards
// it. A command received outside its states is refused with WrongState
// and must leave the connection untouched.
type Handler struct {
	Word         string
	States       map[protocol.State]bool
	MinArgs      int
	MaxArgs      int
	RequiresAuth bool
	WrongState   int // reply code when received in a disallowed state
	Run          func(c Conn, args []string) protocol.Code
}

// Registry maps command words to handlers and applies the dispatch
// contract: tokenize, resolve, gate by state, gate by arity, run.
type Registry struct {
	handlers map[string]*Handler
	fallback func(c Conn, word string, args []string) protocol.Code
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]*Handler)}
}

func (r *Registry) Register(h *Handler) {
	word := strings.ToUpper(h.Word)
	if _, dup := r.handlers[word]; dup {
		log.Printf("[Command] duplicate registration for %s ignored", word)
		return
	}
	if h.WrongState == 0 {
		h.WrongState = protocol.CodeNotAuthenticated
	}
	r.handlers[word] = h
}

// SetFallback installs the unknown-command handler. The first
// registrant wins; later attempts are logged and dropped.
func (r *Registry) SetFallback(fn func(c Conn, word string, args []string) protocol.Code) {
	if r.fallback != nil {
		log.Printf("[Command] fallback already set, ignoring second registration")
		return
	}
	r.fallback = fn
}

// Dispatch runs one input line against the registry. A request that
// tokenizes to nothing is a protocol violation, answered with an
// internal error rather than silence.
func (r *Registry) Dispatch(c Conn, line string) protocol.Code {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return protocol.New(protocol.CodeInternalError, "empty request")
	}
	word := strings.ToUpper(fields[0])
	args := fields[1:]

	h, ok := r.handlers[word]
	if !ok {
		if r.fallback != nil {
			return r.fallback(c, word, args)
		}
		return protocol.New(protocol.CodeUnknownCommand, word)
	}

	state := c.State()
	if h.RequiresAuth &&
		(state == protocol.StateAwaitingUsername || state == protocol.StateAwaitingPassword) {
		return protocol.New(protocol.CodeNotAuthenticated, "log in first")
	}
	if !h.States[state] {
		return protocol.New(h.WrongState, "")
	}
	if len(args) < h.MinArgs || len(args) > h.MaxArgs {
		return protocol.New(protocol.CodeSyntaxError, word+" argument count")
	}
	return h.Run(c, args)
}

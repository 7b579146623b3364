package command

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"blackjack-lite/internal/auth"
	"blackjack-lite/internal/games"
	"blackjack-lite/internal/protocol"
	"blackjack-lite/internal/session"
)

// Deps carries the services the handlers operate on.
type Deps struct {
	Users    auth.Store
	Games    games.Store
	Sessions *session.Registry
	Version  string
}

var lobbyStates = map[protocol.State]bool{protocol.StateInLobby: true}

func inSessionStates() map[protocol.State]bool {
	return map[protocol.State]bool{
		protocol.StateObserving:       true,
		protocol.StateAwaitingBet:     true,
		protocol.StateWaitingTurn:     true,
		protocol.StateMyTurn:          true,
		protocol.StateTurnDone:        true,
		protocol.StateDealerResolving: true,
	}
}

func allStates() map[protocol.State]bool {
	m := inSessionStates()
	m[protocol.StateAwaitingUsername] = true
	m[protocol.StateAwaitingPassword] = true
	m[protocol.StateInLobby] = true
	return m
}

// RegisterAll wires every protocol command into the registry.
func RegisterAll(r *Registry, d Deps) {
	r.Register(usernameHandler(d))
	r.Register(passwordHandler(d))
	r.Register(versionHandler(d))
	r.Register(capabilitiesHandler())
	r.Register(listGamesHandler(d))
	r.Register(joinSessionHandler(d))
	r.Register(leaveSessionHandler())
	r.Register(accountHandler())
	r.Register(gameStatusHandler(d))
	r.Register(betHandler())
	r.Register(hitHandler())
	r.Register(standHandler())
	r.Register(quitHandler())
	r.SetFallback(func(c Conn, word string, args []string) protocol.Code {
		return protocol.New(protocol.CodeUnknownCommand, word)
	})
}

func usernameHandler(d Deps) *Handler {
	return &Handler{
		Word: "USERNAME",
		States: map[protocol.State]bool{
			protocol.StateAwaitingUsername: true,
			protocol.StateAwaitingPassword: true,
		},
		MinArgs:    1,
		MaxArgs:    1,
		WrongState: protocol.CodeAlreadyAuthed,
		Run: func(c Conn, args []string) protocol.Code {
			// Mid-handshake the server is waiting on PASSWORD, and
			// "already authenticated" would be a lie.
			if c.State() == protocol.StateAwaitingPassword {
				return protocol.New(protocol.CodeNotAuthenticated, "password expected")
			}
			c.SetPendingUsername(args[0])
			c.SetState(protocol.StateAwaitingPassword)
			return protocol.New(protocol.CodePasswordRequired, "password required")
		},
	}
}

func passwordHandler(d Deps) *Handler {
	return &Handler{
		Word: "PASSWORD",
		States: map[protocol.State]bool{
			protocol.StateAwaitingUsername: true,
			protocol.StateAwaitingPassword: true,
		},
		MinArgs:    1,
		MaxArgs:    1,
		WrongState: protocol.CodeAlreadyAuthed,
		Run: func(c Conn, args []string) protocol.Code {
			if c.State() == protocol.StateAwaitingUsername {
				return protocol.New(protocol.CodeNotAuthenticated, "username expected")
			}
			pending := c.PendingUsername()
			c.SetPendingUsername("")
			u, err := d.Users.Lookup(pending, args[0])
			if err != nil {
				c.SetState(protocol.StateAwaitingUsername)
				log.Printf("[Command] auth failed for %q on %s", pending, c.ID())
				return protocol.New(protocol.CodeAuthFailed, "bad credentials")
			}
			c.SetUser(u)
			c.SetState(protocol.StateInLobby)
			log.Printf("[Command] %s authenticated on %s", u.Username, c.ID())
			return protocol.New(protocol.CodeOK, fmt.Sprintf("welcome %s", u.Username))
		},
	}
}

func versionHandler(d Deps) *Handler {
	return &Handler{
		Word:    "VERSION",
		States:  allStates(),
		MaxArgs: 0,
		Run: func(c Conn, args []string) protocol.Code {
			return protocol.New(protocol.CodeVersion, d.Version)
		},
	}
}

func capabilitiesHandler() *Handler {
	caps := strings.Join([]string{
		"USERNAME", "PASSWORD", "VERSION", "CAPABILITIES", "LISTGAMES",
		"JOINSESSION", "LEAVESESSION", "ACCOUNT", "GAMESTATUS",
		"BET", "HIT", "STAND", "QUIT",
	}, " ")
	return &Handler{
		Word:    "CAPABILITIES",
		States:  allStates(),
		MaxArgs: 0,
		Run: func(c Conn, args []string) protocol.Code {
			return protocol.New(protocol.CodeCapabilities, caps)
		},
	}
}

func listGamesHandler(d Deps) *Handler {
	return &Handler{
		Word:         "LISTGAMES",
		States:       lobbyStates,
		MaxArgs:      0,
		RequiresAuth: true,
		WrongState:   protocol.CodeAlreadyInSession,
		Run: func(c Conn, args []string) protocol.Code {
			list, err := d.Games.ListAll()
			if err != nil {
				log.Printf("[Command] list games: %v", err)
				return protocol.New(protocol.CodeInternalError, "game list unavailable")
			}
			var b strings.Builder
			fmt.Fprintf(&b, "%d games", len(list))
			for i := range list {
				writeGameBody(&b, &list[i], nil)
			}
			return protocol.New(protocol.CodeGameList, b.String())
		},
	}
}

func joinSessionHandler(d Deps) *Handler {
	return &Handler{
		Word:         "JOINSESSION",
		States:       lobbyStates,
		MinArgs:      1,
		MaxArgs:      1,
		RequiresAuth: true,
		WrongState:   protocol.CodeAlreadyInSession,
		Run: func(c Conn, args []string) protocol.Code {
			meta, err := d.Games.Lookup(args[0])
			if err != nil {
				return protocol.New(protocol.CodeNoSuchGame, args[0])
			}
			s, err := d.Sessions.Join(*meta, c.User(), c)
			switch {
			case err == nil:
			case errors.Is(err, session.ErrSessionFull):
				return protocol.New(protocol.CodeSessionFull, meta.ID)
			case errors.Is(err, session.ErrAlreadyMember):
				return protocol.New(protocol.CodeAlreadyInSession, meta.ID)
			default:
				log.Printf("[Command] join %s: %v", meta.ID, err)
				return protocol.New(protocol.CodeInternalError, "join failed")
			}
			c.SetSession(s)
			c.SetState(protocol.StateObserving)
			return protocol.New(protocol.CodeJoinedGame, meta.ID)
		},
	}
}

func leaveSessionHandler() *Handler {
	return &Handler{
		Word:         "LEAVESESSION",
		States:       inSessionStates(),
		MaxArgs:      0,
		RequiresAuth: true,
		WrongState:   protocol.CodeNotInSession,
		Run: func(c Conn, args []string) protocol.Code {
			s := c.Session()
			if s == nil {
				return protocol.New(protocol.CodeNotInSession, "")
			}
			if err := s.Leave(c.User().Username); err != nil && !errors.Is(err, session.ErrNotMember) {
				log.Printf("[Command] leave %s: %v", s.Meta.ID, err)
			}
			c.SetSession(nil)
			c.SetState(protocol.StateInLobby)
			return protocol.New(protocol.CodeLeftGame, s.Meta.ID)
		},
	}
}

func accountHandler() *Handler {
	states := inSessionStates()
	states[protocol.StateInLobby] = true
	return &Handler{
		Word:         "ACCOUNT",
		States:       states,
		MaxArgs:      0,
		RequiresAuth: true,
		Run: func(c Conn, args []string) protocol.Code {
			u := c.User()
			return protocol.New(protocol.CodeAccountInfo, fmt.Sprintf("%s %d", u.Username, u.Balance()))
		},
	}
}

func gameStatusHandler(d Deps) *Handler {
	states := inSessionStates()
	states[protocol.StateInLobby] = true
	return &Handler{
		Word:         "GAMESTATUS",
		States:       states,
		MaxArgs:      1,
		RequiresAuth: true,
		Run: func(c Conn, args []string) protocol.Code {
			var id string
			if len(args) == 1 {
				id = args[0]
			} else if s := c.Session(); s != nil {
				id = s.Meta.ID
			} else {
				return protocol.New(protocol.CodeSyntaxError, "GAMESTATUS needs a game id outside a session")
			}
			meta, err := d.Games.Lookup(id)
			if err != nil {
				return protocol.New(protocol.CodeNoSuchGame, id)
			}
			var b strings.Builder
			live, ok := d.Sessions.Lookup(id)
			if !ok {
				fmt.Fprintf(&b, "%s idle", id)
				writeGameBody(&b, meta, nil)
				return protocol.New(protocol.CodeGameStatus, b.String())
			}
			snap := live.Snapshot()
			fmt.Fprintf(&b, "%s round %d", id, snap.Round)
			writeGameBody(&b, meta, &snap)
			return protocol.New(protocol.CodeGameStatus, b.String())
		},
	}
}

// writeGameBody appends the multiline body rows for one game: the GAME
// marker, its static attributes and rules, live table rows when a
// snapshot is present, and the ENDGAME terminator.
func writeGameBody(b *strings.Builder, g *games.Metadata, snap *session.Snapshot) {
	fmt.Fprintf(b, "\n%s %s", protocol.KeywordGame, g.ID)
	fmt.Fprintf(b, "\n%s DECKS %d", protocol.KeywordAttribute, g.NumDecks)
	fmt.Fprintf(b, "\n%s MINBET %d", protocol.KeywordAttribute, g.MinBet)
	fmt.Fprintf(b, "\n%s MAXBET %d", protocol.KeywordAttribute, g.MaxBet)
	fmt.Fprintf(b, "\n%s PLAYERS %d %d", protocol.KeywordAttribute, g.MinPlayers, g.MaxPlayers)
	for _, rule := range g.Rules {
		fmt.Fprintf(b, "\n%s %s", protocol.KeywordRule, rule)
	}
	if snap != nil {
		fmt.Fprintf(b, "\n%s DEALER %s", protocol.KeywordAttribute, snap.DealerHand)
		for _, p := range snap.Players {
			fmt.Fprintf(b, "\n%s PLAYER %s %s %d %s",
				protocol.KeywordAttribute, p.Username, p.Status, p.Bet, p.Hand)
		}
	}
	fmt.Fprintf(b, "\n%s %s", protocol.KeywordEndGame, g.ID)
}

func betHandler() *Handler {
	return &Handler{
		Word:         "BET",
		States:       map[protocol.State]bool{protocol.StateAwaitingBet: true},
		MinArgs:      1,
		MaxArgs:      1,
		RequiresAuth: true,
		WrongState:   protocol.CodeBetNotExpected,
		Run: func(c Conn, args []string) protocol.Code {
			amount, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || amount <= 0 {
				return protocol.New(protocol.CodeSyntaxError, "BET amount must be a positive integer")
			}
			s := c.Session()
			if s == nil {
				return protocol.New(protocol.CodeNotInSession, "")
			}
			if amount < s.Meta.MinBet || amount > s.Meta.MaxBet {
				return protocol.New(protocol.CodeBetOutOfRange,
					fmt.Sprintf("%d %d", s.Meta.MinBet, s.Meta.MaxBet))
			}
			u := c.User()
			if u.Balance() < amount {
				return protocol.New(protocol.CodeInsufficientFunds, fmt.Sprintf("%d", u.Balance()))
			}
			if err := s.RecordBet(u.Username, amount); err != nil {
				return protocol.New(protocol.CodeBetNotExpected, "")
			}
			c.SetState(protocol.StateWaitingTurn)
			return protocol.New(protocol.CodeBetAccepted, fmt.Sprintf("%d", amount))
		},
	}
}

func hitHandler() *Handler {
	return &Handler{
		Word:         "HIT",
		States:       map[protocol.State]bool{protocol.StateMyTurn: true},
		MaxArgs:      0,
		RequiresAuth: true,
		WrongState:   protocol.CodeNotYourTurn,
		Run: func(c Conn, args []string) protocol.Code {
			s := c.Session()
			if s == nil {
				return protocol.New(protocol.CodeNotInSession, "")
			}
			dealt, totals, busted, err := s.Hit(c.User().Username)
			if err != nil {
				return protocol.New(protocol.CodeNotYourTurn, "")
			}
			payload := fmt.Sprintf("%s %s", dealt, joinInts(totals))
			if busted {
				c.SetState(protocol.StateTurnDone)
				return protocol.New(protocol.CodeBusted, payload)
			}
			return protocol.New(protocol.CodeCardDealt, payload)
		},
	}
}

func standHandler() *Handler {
	return &Handler{
		Word:         "STAND",
		States:       map[protocol.State]bool{protocol.StateMyTurn: true},
		MaxArgs:      0,
		RequiresAuth: true,
		WrongState:   protocol.CodeNotYourTurn,
		Run: func(c Conn, args []string) protocol.Code {
			s := c.Session()
			if s == nil {
				return protocol.New(protocol.CodeNotInSession, "")
			}
			totals, err := s.Stand(c.User().Username)
			if err != nil {
				return protocol.New(protocol.CodeNotYourTurn, "")
			}
			c.SetState(protocol.StateTurnDone)
			return protocol.New(protocol.CodeStandingPat, joinInts(totals))
		},
	}
}

// The goodbye reply itself signals the end of the connection; the
// caller disconnects after flushing it, so the client always sees the
// farewell before the close.
func quitHandler() *Handler {
	return &Handler{
		Word:    "QUIT",
		States:  allStates(),
		MaxArgs: 0,
		Run: func(c Conn, args []string) protocol.Code {
			if s := c.Session(); s != nil && c.User() != nil {
				if err := s.Leave(c.User().Username); err != nil && !errors.Is(err, session.ErrNotMember) {
					log.Printf("[Command] quit leave %s: %v", s.Meta.ID, err)
				}
				c.SetSession(nil)
			}
			return protocol.New(protocol.CodeGoodbye, "goodbye")
		},
	}
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, " ")
}

package session

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"blackjack-lite/blackjack"
	"blackjack-lite/card"
	"blackjack-lite/internal/auth"
	"blackjack-lite/internal/games"
	"blackjack-lite/internal/history"
	"blackjack-lite/internal/protocol"
)

var (
	ErrSessionFull    = errors.New("session is full")
	ErrSessionClosed  = errors.New("session closed")
	ErrAlreadyMember  = errors.New("already in this session")
	ErrNotMember      = errors.New("not a member of this session")
	ErrBetNotExpected = errors.New("bet not expected")
	ErrNotYourTurn    = errors.New("not your turn")
)

// Status is a member's standing within the current round.
type Status int

const (
	StatusObserver Status = iota
	StatusActive
)

func (s Status) String() string {
	if s == StatusActive {
		return "ACTIVE"
	}
	return "OBSERVER"
}

// Messenger is the per-member delivery contract. Pushes are
// best-effort: a member whose transport is gone is simply skipped.
type Messenger interface {
	Push(code protocol.Code)
	SetState(state protocol.State)
}

// Config tunes the driver's pacing. Tests shrink the ceilings.
type Config struct {
	BetCeiling       time.Duration
	TurnCeiling      time.Duration
	PollInterval     time.Duration
	DealerPause      time.Duration
	ShuffleThreshold float64
}

func DefaultConfig() Config {
	return Config{
		BetCeiling:       60 * time.Second,
		TurnCeiling:      45 * time.Second,
		PollInterval:     500 * time.Millisecond,
		DealerPause:      750 * time.Millisecond,
		ShuffleThreshold: 0.75,
	}
}

type member struct {
	user   *auth.User
	msgr   Messenger
	status Status
	hasBet bool
	bet    int64
	hand   *blackjack.Hand
	done   bool // stood, busted or auto-stood this round
}

// Session is one table of players. Every mutation happens inside one
// critical section: command goroutines and the driver goroutine race on
// the same fields.
type Session struct {
	Meta games.Metadata

	users auth.Store
	hist  history.Service
	cfg   Config

	mu      sync.Mutex
	members map[string]*member
	order   []string // usernames in join order; fixes turn order
	dealer  *blackjack.Hand
	shoe    blackjack.Shoe
	round   int
	turn    string // username holding the turn, "" otherwise
	settled bool   // current round already resolved
	closed  bool

	onEmpty  func(*Session)
	stopOnce sync.Once
}

// New builds a session around a shoe. The driver is not started until
// Start; the registry adds the first member in between.
func New(meta games.Metadata, shoe blackjack.Shoe, users auth.Store, hist history.Service, cfg Config, onEmpty func(*Session)) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Session{
		Meta:    meta,
		users:   users,
		hist:    hist,
		cfg:     cfg,
		members: make(map[string]*member),
		dealer:  blackjack.NewHand(),
		shoe:    shoe,
		onEmpty: onEmpty,
	}
}

// Start launches the session driver.
func (s *Session) Start() {
	go s.run()
}

// Join adds a user as an observer; the next round start promotes them.
func (s *Session) Join(user *auth.User, msgr Messenger) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if _, exists := s.members[user.Username]; exists {
		s.mu.Unlock()
		return ErrAlreadyMember
	}
	if len(s.members) >= s.Meta.MaxPlayers {
		s.mu.Unlock()
		return ErrSessionFull
	}
	s.members[user.Username] = &member{
		user:   user,
		msgr:   msgr,
		status: StatusObserver,
		hand:   blackjack.NewHand(),
	}
	s.order = append(s.order, user.Username)
	s.mu.Unlock()

	log.Printf("[Session %s] %s joined", s.Meta.ID, user.Username)
	s.broadcast(protocol.New(protocol.CodePlayerJoined, user.Username))
	return nil
}

// Leave removes a member. A member who leaves with a live bet forfeits
// it; the debit is persisted immediately.
func (s *Session) Leave(username string) error {
	s.mu.Lock()
	m, ok := s.members[username]
	if !ok {
		s.mu.Unlock()
		return ErrNotMember
	}
	forfeit := int64(0)
	if m.status == StatusActive && m.hasBet && !s.settled {
		forfeit = m.bet
	}
	delete(s.members, username)
	for i, name := range s.order {
		if name == username {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.turn == username {
		s.turn = ""
		m.done = true
	}
	s.mu.Unlock()

	if forfeit > 0 {
		m.user.Adjust(-forfeit)
		if err := s.users.Persist(m.user); err != nil {
			log.Printf("[Session %s] persist forfeit for %s failed: %v", s.Meta.ID, username, err)
		}
		log.Printf("[Session %s] %s left mid-hand, forfeiting %d", s.Meta.ID, username, forfeit)
	} else {
		log.Printf("[Session %s] %s left", s.Meta.ID, username)
	}
	s.broadcast(protocol.New(protocol.CodePlayerLeft, username))
	return nil
}

// RecordBet stores a player's stake for the round. Validation of range
// and balance happens in the command handler; the session only guards
// its own consistency. The balance is untouched until resolution.
func (s *Session) RecordBet(username string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[username]
	if !ok {
		return ErrNotMember
	}
	if m.status != StatusActive || m.hasBet || s.settled {
		return ErrBetNotExpected
	}
	m.hasBet = true
	m.bet = amount
	log.Printf("[Session %s] %s bet %d", s.Meta.ID, username, amount)
	return nil
}

// Hit deals one face-up card to the acting player.
func (s *Session) Hit(username string) (card.Card, []int, bool, error) {
	s.mu.Lock()
	m, ok := s.members[username]
	if !ok {
		s.mu.Unlock()
		return card.CardInvalid, nil, false, ErrNotMember
	}
	if s.turn != username || m.done {
		s.mu.Unlock()
		return card.CardInvalid, nil, false, ErrNotYourTurn
	}
	c, err := s.drawLocked()
	if err != nil {
		s.mu.Unlock()
		return card.CardInvalid, nil, false, err
	}
	m.hand.Receive(c, true)
	busted := m.hand.Busted()
	if busted {
		m.done = true
	}
	totals := m.hand.Totals()
	s.mu.Unlock()

	s.broadcastHand(username)
	return c, totals, busted, nil
}

// Stand ends the acting player's turn.
func (s *Session) Stand(username string) ([]int, error) {
	s.mu.Lock()
	m, ok := s.members[username]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotMember
	}
	if s.turn != username || m.done {
		s.mu.Unlock()
		return nil, ErrNotYourTurn
	}
	m.done = true
	totals := m.hand.Totals()
	s.mu.Unlock()
	return totals, nil
}

// drawLocked takes the next card, reshuffling an exhausted shoe.
// Caller holds s.mu.
func (s *Session) drawLocked() (card.Card, error) {
	c, ok := s.shoe.Draw()
	if ok {
		return c, nil
	}
	s.shoe.Reshuffle()
	c, ok = s.shoe.Draw()
	if !ok {
		return card.CardInvalid, fmt.Errorf("shoe produced no card after reshuffle")
	}
	return c, nil
}

func (s *Session) memberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// broadcast fans a push out to a stable snapshot of the membership.
func (s *Session) broadcast(code protocol.Code) {
	s.mu.Lock()
	messengers := make([]Messenger, 0, len(s.members))
	for _, m := range s.members {
		messengers = append(messengers, m.msgr)
	}
	s.mu.Unlock()

	for _, msgr := range messengers {
		msgr.Push(code)
	}
}

// broadcastHand announces a player's hand to the whole table. Everyone
// sees the table view (hole card masked); the owner additionally gets a
// private update with the full hand and totals.
func (s *Session) broadcastHand(username string) {
	s.mu.Lock()
	m, ok := s.members[username]
	if !ok {
		s.mu.Unlock()
		return
	}
	tableView := fmt.Sprintf("%s %s", username, m.hand.String())
	ownerView := fmt.Sprintf("%s %s TOTALS %s", username, revealedString(m.hand), totalsString(m.hand.Totals()))
	owner := m.msgr
	others := make([]Messenger, 0, len(s.members))
	for name, mm := range s.members {
		if name != username {
			others = append(others, mm.msgr)
		}
	}
	s.mu.Unlock()

	owner.Push(protocol.New(protocol.CodeHandUpdate, ownerView))
	for _, msgr := range others {
		msgr.Push(protocol.New(protocol.CodeHandUpdate, tableView))
	}
}

func (s *Session) broadcastDealer() {
	s.mu.Lock()
	payload := fmt.Sprintf("dealer %s", s.dealer.String())
	s.mu.Unlock()
	s.broadcast(protocol.New(protocol.CodeDealerHandUpdate, payload))
}

func revealedString(h *blackjack.Hand) string {
	out := ""
	for i, dc := range h.Cards() {
		if i > 0 {
			out += " "
		}
		out += dc.Card.String()
	}
	return out
}

func totalsString(totals []int) string {
	out := ""
	for i, t := range totals {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%d", t)
	}
	return out
}

// PlayerView is one member's slice of a status snapshot.
type PlayerView struct {
	Username string `json:"username"`
	Status   string `json:"status"`
	Bet      int64  `json:"bet"`
	Hand     string `json:"hand"`
	Done     bool   `json:"done"`
}

// Snapshot is a consistent view of the table, safe to format outside
// the session lock.
type Snapshot struct {
	GameID     string       `json:"game_id"`
	Round      int          `json:"round"`
	DealerHand string       `json:"dealer_hand"`
	Players    []PlayerView `json:"players"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		GameID:     s.Meta.ID,
		Round:      s.round,
		DealerHand: s.dealer.String(),
	}
	for _, name := range s.order {
		m := s.members[name]
		if m == nil {
			continue
		}
		snap.Players = append(snap.Players, PlayerView{
			Username: name,
			Status:   m.status.String(),
			Bet:      m.bet,
			Hand:     m.hand.String(),
			Done:     m.done,
		})
	}
	return snap
}

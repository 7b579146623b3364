package session

import (
	"sync"
	"testing"
	"time"

	"blackjack-lite/blackjack"
	"blackjack-lite/card"
	"blackjack-lite/internal/auth"
	"blackjack-lite/internal/games"
	"blackjack-lite/internal/history"
	"blackjack-lite/internal/protocol"
)

// fakeMessenger records pushes and state changes for assertions.
type fakeMessenger struct {
	mu     sync.Mutex
	pushes []protocol.Code
	state  protocol.State
	states []protocol.State
}

func (f *fakeMessenger) Push(code protocol.Code) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, code)
}

func (f *fakeMessenger) SetState(state protocol.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.states = append(f.states, state)
}

// sawState reports whether the connection ever entered the given
// state, even transiently.
func (f *fakeMessenger) sawState(want protocol.State) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.states {
		if s == want {
			return true
		}
	}
	return false
}

func (f *fakeMessenger) currentState() protocol.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// waitForCode blocks until a push with the given number arrives.
func (f *fakeMessenger) waitForCode(t *testing.T, number int) protocol.Code {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for _, c := range f.pushes {
			if c.Number == number {
				f.mu.Unlock()
				return c
			}
		}
		f.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("no %d push arrived", number)
	return protocol.Code{}
}

// waitForCodeCount blocks until at least n pushes with the given
// number have arrived.
func (f *fakeMessenger) waitForCodeCount(t *testing.T, number, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		seen := 0
		for _, c := range f.pushes {
			if c.Number == number {
				seen++
			}
		}
		f.mu.Unlock()
		if seen >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("fewer than %d pushes of %d arrived", n, number)
}

func (f *fakeMessenger) waitForState(t *testing.T, want protocol.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if f.currentState() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state never reached %s, stuck at %s", want, f.currentState())
}

func (f *fakeMessenger) sawCode(number int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.pushes {
		if c.Number == number {
			return true
		}
	}
	return false
}

func testMeta() games.Metadata {
	return games.Metadata{
		ID:         "testtable",
		NumDecks:   1,
		MinBet:     10,
		MaxBet:     500,
		MinPlayers: 1,
		MaxPlayers: 4,
	}
}

func testConfig() Config {
	return Config{
		BetCeiling:       2 * time.Second,
		TurnCeiling:      2 * time.Second,
		PollInterval:     2 * time.Millisecond,
		DealerPause:      time.Millisecond,
		ShuffleThreshold: 2.0, // never reshuffle mid-test
	}
}

func testUser(t *testing.T, store *auth.MemoryStore, name string, balance int64) *auth.User {
	t.Helper()
	if err := store.Create(name, "hunter22", name, balance); err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	u, err := store.Lookup(name, "hunter22")
	if err != nil {
		t.Fatalf("lookup %s: %v", name, err)
	}
	return u
}

func newTestSession(shoe blackjack.Shoe, users *auth.MemoryStore, hist history.Service, done chan struct{}) *Session {
	return New(testMeta(), shoe, users, hist, testConfig(), func(*Session) { close(done) })
}

func waitClosed(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("driver never stopped after last member left")
	}
}

func TestRoundSettlement(t *testing.T) {
	// alice 9S 8H = 17, bob TD 6C then hits 4S = 20, dealer 9D 8C
	// stands on 17. Expect alice TIE, bob WIN.
	shoe := blackjack.NewStackedShoe(
		card.MustParse("9S"), card.MustParse("8H"),
		card.MustParse("TD"), card.MustParse("6C"),
		card.MustParse("9D"), card.MustParse("8C"),
		card.MustParse("4S"),
		card.MustParse("2C"), card.MustParse("2D"), card.MustParse("2H"), card.MustParse("2S"),
	)
	users := auth.NewMemoryStore()
	alice := testUser(t, users, "alice", 1000)
	bob := testUser(t, users, "bob", 1000)
	hist := history.NewMemoryService()
	done := make(chan struct{})
	s := newTestSession(shoe, users, hist, done)

	am, bm := &fakeMessenger{}, &fakeMessenger{}
	if err := s.Join(alice, am); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if err := s.Join(bob, bm); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	s.Start()

	am.waitForState(t, protocol.StateAwaitingBet)
	bm.waitForState(t, protocol.StateAwaitingBet)
	if err := s.RecordBet("alice", 50); err != nil {
		t.Fatalf("alice bet: %v", err)
	}
	if err := s.RecordBet("bob", 100); err != nil {
		t.Fatalf("bob bet: %v", err)
	}
	if got := alice.Balance(); got != 1000 {
		t.Fatalf("alice balance moved at bet time: %d", got)
	}

	am.waitForState(t, protocol.StateMyTurn)
	if _, err := s.Stand("alice"); err != nil {
		t.Fatalf("alice stand: %v", err)
	}
	bm.waitForState(t, protocol.StateMyTurn)
	c, totals, busted, err := s.Hit("bob")
	if err != nil {
		t.Fatalf("bob hit: %v", err)
	}
	if c != card.MustParse("4S") || busted {
		t.Fatalf("bob hit dealt %s busted=%v totals=%v", c, busted, totals)
	}
	if _, err := s.Stand("bob"); err != nil {
		t.Fatalf("bob stand: %v", err)
	}

	am.waitForCode(t, protocol.CodeRoundOver)
	if got := alice.Balance(); got != 1000 {
		t.Fatalf("alice pushed, expected balance 1000, got %d", got)
	}
	if got := bob.Balance(); got != 1100 {
		t.Fatalf("bob won 100, expected balance 1100, got %d", got)
	}

	recent := hist.Recent("testtable", 10)
	if len(recent) != 1 {
		t.Fatalf("expected 1 recorded round, got %d", len(recent))
	}
	if len(recent[0].Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(recent[0].Outcomes))
	}
	for _, o := range recent[0].Outcomes {
		switch o.Username {
		case "alice":
			if o.Result != history.ResultTie || o.Delta != 0 {
				t.Fatalf("alice outcome %+v", o)
			}
		case "bob":
			if o.Result != history.ResultWin || o.Delta != 100 {
				t.Fatalf("bob outcome %+v", o)
			}
		}
	}

	if err := s.Leave("alice"); err != nil {
		t.Fatalf("alice leave: %v", err)
	}
	if err := s.Leave("bob"); err != nil {
		t.Fatalf("bob leave: %v", err)
	}
	waitClosed(t, done)
}

func TestDealerBlackjackSettlesImmediately(t *testing.T) {
	// alice 5H 9C loses outright, bob AC JH holds a natural and pushes.
	shoe := blackjack.NewStackedShoe(
		card.MustParse("5H"), card.MustParse("9C"),
		card.MustParse("AC"), card.MustParse("JH"),
		card.MustParse("AS"), card.MustParse("KD"),
		card.MustParse("2C"), card.MustParse("2D"), card.MustParse("2H"),
		card.MustParse("2S"), card.MustParse("3C"), card.MustParse("3D"),
	)
	users := auth.NewMemoryStore()
	alice := testUser(t, users, "alice", 1000)
	bob := testUser(t, users, "bob", 1000)
	done := make(chan struct{})
	s := newTestSession(shoe, users, history.NewMemoryService(), done)

	am, bm := &fakeMessenger{}, &fakeMessenger{}
	if err := s.Join(alice, am); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if err := s.Join(bob, bm); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	s.Start()

	am.waitForState(t, protocol.StateAwaitingBet)
	bm.waitForState(t, protocol.StateAwaitingBet)
	if err := s.RecordBet("alice", 200); err != nil {
		t.Fatalf("alice bet: %v", err)
	}
	if err := s.RecordBet("bob", 200); err != nil {
		t.Fatalf("bob bet: %v", err)
	}

	am.waitForCode(t, protocol.CodeDealerBlackjack)
	am.waitForCode(t, protocol.CodeRoundOver)
	if got := alice.Balance(); got != 800 {
		t.Fatalf("alice should lose 200, balance %d", got)
	}
	if got := bob.Balance(); got != 1000 {
		t.Fatalf("bob's natural should push, balance %d", got)
	}
	if am.sawCode(protocol.CodeYourTurn) {
		t.Fatalf("no turn should be offered once the dealer shows a natural")
	}

	if err := s.Leave("alice"); err != nil {
		t.Fatalf("alice leave: %v", err)
	}
	if err := s.Leave("bob"); err != nil {
		t.Fatalf("bob leave: %v", err)
	}
	waitClosed(t, done)
}

func TestBetlessPlayerDemotedAndRoundProceeds(t *testing.T) {
	cfg := testConfig()
	cfg.BetCeiling = 20 * time.Millisecond

	shoe := blackjack.NewShoe(1, nil)
	users := auth.NewMemoryStore()
	carol := testUser(t, users, "carol", 500)
	done := make(chan struct{})
	s := New(testMeta(), shoe, users, history.NewMemoryService(), cfg, func(*Session) { close(done) })

	cm := &fakeMessenger{}
	if err := s.Join(carol, cm); err != nil {
		t.Fatalf("join carol: %v", err)
	}
	s.Start()

	cm.waitForState(t, protocol.StateAwaitingBet)
	cm.waitForCode(t, protocol.CodeDemotedObserver)
	cm.waitForCode(t, protocol.CodeRoundOver)
	// The Observing window is transient at this ceiling, so check the
	// recorded transitions rather than racing the live state.
	if !cm.sawState(protocol.StateObserving) {
		t.Fatalf("betless player never entered observing")
	}
	if got := carol.Balance(); got != 500 {
		t.Fatalf("observer balance moved: %d", got)
	}

	// Next round re-promotes the observer and asks for a bet again.
	cm.waitForCodeCount(t, protocol.CodeRoundStarting, 2)
	cm.waitForCodeCount(t, protocol.CodeEnterBet, 2)

	if err := s.Leave("carol"); err != nil {
		t.Fatalf("carol leave: %v", err)
	}
	waitClosed(t, done)
}

func TestLeaveMidHandForfeitsBet(t *testing.T) {
	shoe := blackjack.NewStackedShoe(
		card.MustParse("9S"), card.MustParse("8H"),
		card.MustParse("9D"), card.MustParse("8C"),
		card.MustParse("4S"), card.MustParse("5C"),
	)
	users := auth.NewMemoryStore()
	alice := testUser(t, users, "alice", 1000)
	done := make(chan struct{})
	s := newTestSession(shoe, users, history.NewMemoryService(), done)

	am := &fakeMessenger{}
	if err := s.Join(alice, am); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	s.Start()

	am.waitForState(t, protocol.StateAwaitingBet)
	if err := s.RecordBet("alice", 75); err != nil {
		t.Fatalf("alice bet: %v", err)
	}
	am.waitForState(t, protocol.StateMyTurn)
	if err := s.Leave("alice"); err != nil {
		t.Fatalf("alice leave: %v", err)
	}
	if got := alice.Balance(); got != 925 {
		t.Fatalf("mid-hand leave should forfeit 75, balance %d", got)
	}
	waitClosed(t, done)
}

func TestSessionGuards(t *testing.T) {
	users := auth.NewMemoryStore()
	alice := testUser(t, users, "alice", 1000)
	testUser(t, users, "bob", 1000) // in the store but never at the table
	s := New(testMeta(), blackjack.NewShoe(1, nil), users, history.NewMemoryService(), testConfig(), nil)

	am := &fakeMessenger{}
	if err := s.Join(alice, am); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if err := s.Join(alice, am); err != ErrAlreadyMember {
		t.Fatalf("double join: %v", err)
	}
	if err := s.RecordBet("bob", 10); err != ErrNotMember {
		t.Fatalf("non-member bet: %v", err)
	}
	if err := s.RecordBet("alice", 10); err != ErrBetNotExpected {
		t.Fatalf("observer bet should be refused, got %v", err)
	}
	if _, _, _, err := s.Hit("alice"); err != ErrNotYourTurn {
		t.Fatalf("hit out of turn: %v", err)
	}
	if _, err := s.Stand("alice"); err != ErrNotYourTurn {
		t.Fatalf("stand out of turn: %v", err)
	}
	if err := s.Leave("bob"); err != ErrNotMember {
		t.Fatalf("non-member leave: %v", err)
	}
}

func TestSessionFull(t *testing.T) {
	users := auth.NewMemoryStore()
	s := New(testMeta(), blackjack.NewShoe(1, nil), users, history.NewMemoryService(), testConfig(), nil)
	for i, name := range []string{"dave", "erin", "fred", "gina"} {
		u := testUser(t, users, name, 100)
		if err := s.Join(u, &fakeMessenger{}); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}
	extra := testUser(t, users, "hank", 100)
	if err := s.Join(extra, &fakeMessenger{}); err != ErrSessionFull {
		t.Fatalf("expected table full, got %v", err)
	}
}

func TestRegistryLifecycle(t *testing.T) {
	users := auth.NewMemoryStore()
	alice := testUser(t, users, "alice", 1000)
	cfg := testConfig()
	cfg.BetCeiling = 10 * time.Millisecond
	r := NewRegistry(users, history.NewMemoryService(), cfg)

	meta := testMeta()
	am := &fakeMessenger{}
	s, err := r.Join(meta, alice, am)
	if err != nil {
		t.Fatalf("registry join: %v", err)
	}
	if got, ok := r.Lookup(meta.ID); !ok || got != s {
		t.Fatalf("lookup should return the live session")
	}
	if _, err := r.Join(meta, alice, am); err != ErrAlreadyMember {
		t.Fatalf("rejoin same user: %v", err)
	}

	snaps := r.Snapshots()
	if len(snaps) != 1 || snaps[0].GameID != meta.ID {
		t.Fatalf("snapshots = %+v", snaps)
	}

	if err := s.Leave("alice"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := r.Lookup(meta.ID); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("empty session never removed from registry")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestTurnCeilingAutoStands(t *testing.T) {
	cfg := testConfig()
	cfg.TurnCeiling = 20 * time.Millisecond

	// alice 9S 8H = 17 never acts; dealer 9D 8C stands on 17. The
	// expired turn stands her automatically and the round ties.
	shoe := blackjack.NewStackedShoe(
		card.MustParse("9S"), card.MustParse("8H"),
		card.MustParse("9D"), card.MustParse("8C"),
		card.MustParse("4S"), card.MustParse("5C"),
	)
	users := auth.NewMemoryStore()
	alice := testUser(t, users, "alice", 1000)
	done := make(chan struct{})
	s := New(testMeta(), shoe, users, history.NewMemoryService(), cfg, func(*Session) { close(done) })

	am := &fakeMessenger{}
	if err := s.Join(alice, am); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	s.Start()

	am.waitForState(t, protocol.StateAwaitingBet)
	if err := s.RecordBet("alice", 50); err != nil {
		t.Fatalf("alice bet: %v", err)
	}
	am.waitForCode(t, protocol.CodeYourTurn)
	am.waitForCode(t, protocol.CodeStandingPat)
	am.waitForCode(t, protocol.CodeRoundOver)
	if got := alice.Balance(); got != 1000 {
		t.Fatalf("17 vs 17 should push, balance %d", got)
	}

	if err := s.Leave("alice"); err != nil {
		t.Fatalf("alice leave: %v", err)
	}
	waitClosed(t, done)
}

func TestJoinRacingShutdownKeepsSessionOpen(t *testing.T) {
	users := auth.NewMemoryStore()
	alice := testUser(t, users, "alice", 1000)
	done := make(chan struct{})
	s := newTestSession(blackjack.NewShoe(1, nil), users, history.NewMemoryService(), done)

	// The driver observes an empty table with the lock released; a
	// join that lands before the close commits must keep the session
	// alive instead of stranding the newcomer.
	am := &fakeMessenger{}
	if err := s.Join(alice, am); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if s.tryClose() {
		t.Fatalf("close must yield to the racing join")
	}

	s.Start()
	am.waitForState(t, protocol.StateAwaitingBet)
	if err := s.RecordBet("alice", 20); err != nil {
		t.Fatalf("bet after contested close: %v", err)
	}

	if err := s.Leave("alice"); err != nil {
		t.Fatalf("alice leave: %v", err)
	}
	waitClosed(t, done)

	// Once the close commits, late joins are turned away.
	if err := s.Join(alice, am); err != ErrSessionClosed {
		t.Fatalf("join after close: %v", err)
	}
}

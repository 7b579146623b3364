package sweeper

import (
	"log"
	"time"

	"blackjack-lite/internal/protocol"
)

// Target is the slice of a connection the sweeper may inspect and
// expire. Forcing a state and refreshing timers are the only
// mutations; whatever teardown a forced state implies belongs to the
// target, not the sweeper.
type Target interface {
	ID() string
	State() protocol.State
	LastActivity() time.Time
	StateEntered() time.Time
	SetState(state protocol.State)
	Touch()
	Push(code protocol.Code)
	Alive() bool
}

// Rule is one state's idle policy. FromStateEntry measures from the
// moment the state was entered; otherwise from the last client input.
// Notify of zero sends nothing.
type Rule struct {
	Timeout        time.Duration
	FromStateEntry bool
	NextState      protocol.State
	Notify         int
}

// DefaultPolicy maps every sweepable state to its idle rule. The
// handshake states run on a short state timer; everything else runs on
// client activity. In-session states are generous because the session
// driver already polices bet and turn ceilings itself.
func DefaultPolicy() map[protocol.State]Rule {
	expire := func(timeout time.Duration, fromEntry bool) Rule {
		return Rule{
			Timeout:        timeout,
			FromStateEntry: fromEntry,
			NextState:      protocol.StateDisconnected,
			Notify:         protocol.CodeIdleDisconnect,
		}
	}
	return map[protocol.State]Rule{
		protocol.StateAwaitingUsername: expire(30*time.Second, true),
		protocol.StateAwaitingPassword: expire(30*time.Second, true),
		protocol.StateInLobby:          expire(10*time.Minute, false),
		protocol.StateObserving:        expire(30*time.Minute, false),
		protocol.StateAwaitingBet:      expire(15*time.Minute, false),
		protocol.StateWaitingTurn:      expire(15*time.Minute, false),
		protocol.StateMyTurn:           expire(15*time.Minute, false),
		protocol.StateTurnDone:         expire(15*time.Minute, false),
		protocol.StateDealerResolving:  expire(15*time.Minute, false),
	}
}

// Sweeper periodically expires idle connections.
type Sweeper struct {
	source   func() []Target
	interval time.Duration
	policy   map[protocol.State]Rule
	stop     chan struct{}
}

func New(source func() []Target, interval time.Duration, policy map[protocol.State]Rule) *Sweeper {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Sweeper{
		source:   source,
		interval: interval,
		policy:   policy,
		stop:     make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) Stop() {
	close(s.stop)
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.Sweep(now)
		case <-s.stop:
			return
		}
	}
}

// Sweep applies the policy once: pure timestamp comparison and state
// overwrite, so sweeping an already-expired target again is a harmless
// no-op. Targets whose transport is already gone are left for their
// own read loop to deregister.
func (s *Sweeper) Sweep(now time.Time) {
	for _, t := range s.source() {
		if !t.Alive() {
			continue
		}
		state := t.State()
		if state == protocol.StateDisconnected {
			continue
		}
		rule, ok := s.policy[state]
		if !ok {
			continue
		}
		base := t.LastActivity()
		if rule.FromStateEntry {
			base = t.StateEntered()
		}
		if now.Sub(base) < rule.Timeout {
			continue
		}
		log.Printf("[Sweeper] expiring %s: idle in %s for %v, forcing %s",
			t.ID(), state, now.Sub(base).Round(time.Second), rule.NextState)
		if rule.Notify != 0 {
			t.Push(protocol.New(rule.Notify, "idle timeout"))
		}
		t.SetState(rule.NextState)
		t.Touch()
	}
}

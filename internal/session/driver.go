package session

import (
	"fmt"
	"log"
	"time"

	"blackjack-lite/internal/history"
	"blackjack-lite/internal/protocol"
)

// A round is a fixed sequence of phases. Each phase is an action the
// driver performs against whatever membership exists at that moment;
// an empty table makes every phase a no-op, and the driver only exits
// between rounds.
type phase struct {
	name string
	run  func() error
}

func (s *Session) run() {
	log.Printf("[Session %s] driver started", s.Meta.ID)
	defer log.Printf("[Session %s] driver stopped", s.Meta.ID)

	for {
		if s.memberCount() == 0 {
			if s.tryClose() {
				return
			}
			continue
		}
		if err := s.playRound(); err != nil {
			log.Printf("[Session %s] abandoning table: %v", s.Meta.ID, err)
			s.close()
			return
		}
	}
}

// tryClose shuts the session down only if the table is still empty.
// Re-checking under the lock means a join racing the driver's empty
// check either lands before the close (the driver stays up and deals
// to the newcomer) or sees closed and gets ErrSessionClosed.
func (s *Session) tryClose() bool {
	s.mu.Lock()
	if len(s.members) != 0 {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.mu.Unlock()
	s.finish()
	return true
}

func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.finish()
}

func (s *Session) finish() {
	s.stopOnce.Do(func() {
		if s.onEmpty != nil {
			s.onEmpty(s)
		}
	})
}

func (s *Session) playRound() error {
	s.mu.Lock()
	s.round++
	round := s.round
	s.settled = false
	s.mu.Unlock()

	phases := []phase{
		{"startRound", s.startRound},
		{"waitForBets", s.waitForBets},
		{"evictNonBetters", s.evictNonBetters},
		{"shuffleIfNeeded", s.shuffleIfNeeded},
		{"dealCards", s.dealCards},
		{"checkDealerBlackjack", s.checkDealerBlackjack},
		{"waitForTurns", s.waitForTurns},
		{"playDealerHand", s.playDealerHand},
		{"figureOutResults", s.figureOutResults},
	}
	for _, p := range phases {
		if err := p.run(); err != nil {
			return fmt.Errorf("round %d phase %s: %w", round, p.name, err)
		}
	}
	return nil
}

// startRound promotes every observer to active, resets hands and bets,
// and asks each active player for a stake.
func (s *Session) startRound() error {
	s.mu.Lock()
	s.dealer.Reset()
	s.turn = ""
	round := s.round
	actives := make([]Messenger, 0, len(s.members))
	for _, m := range s.members {
		m.status = StatusActive
		m.hasBet = false
		m.bet = 0
		m.done = false
		m.hand.Reset()
		actives = append(actives, m.msgr)
	}
	minBet, maxBet := s.Meta.MinBet, s.Meta.MaxBet
	s.mu.Unlock()

	betPrompt := protocol.New(protocol.CodeEnterBet, fmt.Sprintf("%d %d", minBet, maxBet))
	for _, msgr := range actives {
		msgr.SetState(protocol.StateAwaitingBet)
		msgr.Push(protocol.New(protocol.CodeRoundStarting, fmt.Sprintf("round %d", round)))
		msgr.Push(betPrompt)
	}
	return nil
}

// waitForBets polls until every active player has a recorded bet or
// the ceiling passes. Reaching the ceiling is not an error; the next
// phase deals with the holdouts.
func (s *Session) waitForBets() error {
	deadline := time.Now().Add(s.cfg.BetCeiling)
	for {
		if s.allActiveBetsIn() {
			return nil
		}
		if time.Now().After(deadline) {
			log.Printf("[Session %s] bet window closed with bets outstanding", s.Meta.ID)
			return nil
		}
		time.Sleep(s.cfg.PollInterval)
	}
}

func (s *Session) allActiveBetsIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.status == StatusActive && !m.hasBet {
			return false
		}
	}
	return true
}

// evictNonBetters demotes active players without a stake back to
// observer for the rest of the round.
func (s *Session) evictNonBetters() error {
	s.mu.Lock()
	demoted := make([]Messenger, 0)
	var names []string
	for name, m := range s.members {
		if m.status == StatusActive && !m.hasBet {
			m.status = StatusObserver
			demoted = append(demoted, m.msgr)
			names = append(names, name)
		}
	}
	s.mu.Unlock()

	for i, msgr := range demoted {
		msgr.SetState(protocol.StateObserving)
		msgr.Push(protocol.New(protocol.CodeDemotedObserver, "no bet placed, observing this round"))
		log.Printf("[Session %s] %s sat out, demoted to observer", s.Meta.ID, names[i])
	}
	return nil
}

func (s *Session) shuffleIfNeeded() error {
	s.mu.Lock()
	needed := s.shoe.Depletion() >= s.cfg.ShuffleThreshold
	if needed {
		s.shoe.Reshuffle()
	}
	s.mu.Unlock()

	if needed {
		log.Printf("[Session %s] shoe reshuffled", s.Meta.ID)
		s.broadcast(protocol.New(protocol.CodeShuffling, "shoe reshuffled"))
	}
	return nil
}

// dealCards gives each active player two cards (first down, second up)
// and then the dealer the same, in join order.
func (s *Session) dealCards() error {
	s.mu.Lock()
	actives := s.activeNamesLocked()
	if len(actives) == 0 {
		s.mu.Unlock()
		return nil
	}
	for _, name := range actives {
		m := s.members[name]
		for i := 0; i < 2; i++ {
			c, err := s.drawLocked()
			if err != nil {
				s.mu.Unlock()
				return err
			}
			m.hand.Receive(c, i == 1)
		}
	}
	for i := 0; i < 2; i++ {
		c, err := s.drawLocked()
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.dealer.Receive(c, i == 1)
	}
	s.mu.Unlock()

	for _, name := range actives {
		s.broadcastHand(name)
	}
	s.broadcastDealer()
	return nil
}

// checkDealerBlackjack peeks for a natural. On one the round resolves
// immediately: holders of a natural push, everyone else loses.
func (s *Session) checkDealerBlackjack() error {
	s.mu.Lock()
	if len(s.activeNamesLocked()) == 0 || !s.dealer.Blackjack() {
		s.mu.Unlock()
		return nil
	}
	s.dealer.Reveal()
	s.settled = true
	s.mu.Unlock()

	s.broadcastDealer()
	s.broadcast(protocol.New(protocol.CodeDealerBlackjack, "dealer has blackjack"))
	s.settleRound(func(m *member) string {
		if m.hand.Blackjack() {
			return history.ResultTie
		}
		return history.ResultLose
	})
	return nil
}

// waitForTurns gives each live active player the turn in join order,
// auto-standing anyone who outlasts the ceiling. Holders of a natural
// skip their turn.
func (s *Session) waitForTurns() error {
	if s.isSettled() {
		return nil
	}
	for {
		s.mu.Lock()
		var next *member
		var name string
		for _, candidate := range s.activeNamesLocked() {
			m := s.members[candidate]
			if m.done {
				continue
			}
			if m.hand.Blackjack() {
				m.done = true
				continue
			}
			next, name = m, candidate
			break
		}
		if next == nil {
			s.turn = ""
			s.mu.Unlock()
			return nil
		}
		s.turn = name
		msgr := next.msgr
		s.mu.Unlock()

		msgr.SetState(protocol.StateMyTurn)
		msgr.Push(protocol.New(protocol.CodeYourTurn, "your turn"))

		deadline := time.Now().Add(s.cfg.TurnCeiling)
		for {
			s.mu.Lock()
			done := next.done || s.members[name] == nil
			s.mu.Unlock()
			if done {
				break
			}
			if time.Now().After(deadline) {
				s.mu.Lock()
				if !next.done {
					next.done = true
					log.Printf("[Session %s] %s timed out, standing automatically", s.Meta.ID, name)
				}
				s.mu.Unlock()
				msgr.Push(protocol.New(protocol.CodeStandingPat, "turn expired, standing"))
				break
			}
			time.Sleep(s.cfg.PollInterval)
		}

		s.mu.Lock()
		stillHere := s.members[name] != nil
		s.turn = ""
		s.mu.Unlock()
		if stillHere {
			msgr.SetState(protocol.StateTurnDone)
		}
	}
}

// playDealerHand reveals the hole card and hits until the best
// non-busting total reaches 17, pausing between draws so watchers can
// follow along. Skipped when every player already busted.
func (s *Session) playDealerHand() error {
	if s.isSettled() {
		return nil
	}
	s.mu.Lock()
	anyLive := false
	for _, name := range s.activeNamesLocked() {
		if !s.members[name].hand.Busted() {
			anyLive = true
			break
		}
	}
	if !anyLive {
		s.mu.Unlock()
		return nil
	}
	s.dealer.Reveal()
	resolving := make([]Messenger, 0, len(s.members))
	for _, name := range s.activeNamesLocked() {
		resolving = append(resolving, s.members[name].msgr)
	}
	s.mu.Unlock()

	for _, msgr := range resolving {
		msgr.SetState(protocol.StateDealerResolving)
	}
	s.broadcastDealer()

	for {
		s.mu.Lock()
		hit := s.dealer.DealerShouldHit()
		s.mu.Unlock()
		if !hit {
			break
		}
		time.Sleep(s.cfg.DealerPause)

		s.mu.Lock()
		c, err := s.drawLocked()
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.dealer.Receive(c, true)
		total := s.dealer.BestTotal()
		busted := s.dealer.Busted()
		s.mu.Unlock()

		if busted {
			s.broadcast(protocol.New(protocol.CodeDealerAction, fmt.Sprintf("BUST %s %d", c, total)))
		} else {
			s.broadcast(protocol.New(protocol.CodeDealerAction, fmt.Sprintf("HIT %s %d", c, total)))
		}
	}

	s.mu.Lock()
	busted := s.dealer.Busted()
	total := s.dealer.BestTotal()
	s.mu.Unlock()
	if !busted {
		s.broadcast(protocol.New(protocol.CodeDealerAction, fmt.Sprintf("STAND %d", total)))
	}
	return nil
}

// figureOutResults compares each surviving hand to the dealer's and
// settles the round.
func (s *Session) figureOutResults() error {
	if s.isSettled() {
		return nil
	}
	s.mu.Lock()
	dealerBusted := s.dealer.Busted()
	dealerTotal := s.dealer.BestTotal()
	s.settled = true
	s.mu.Unlock()

	s.settleRound(func(m *member) string {
		switch {
		case m.hand.Busted():
			return history.ResultLose
		case m.hand.Blackjack():
			return history.ResultWin
		case dealerBusted:
			return history.ResultWin
		case m.hand.BestTotal() > dealerTotal:
			return history.ResultWin
		case m.hand.BestTotal() < dealerTotal:
			return history.ResultLose
		default:
			return history.ResultTie
		}
	})
	return nil
}

// settleRound applies a judge function to every active bettor, pays or
// collects stakes, persists balances, announces outcomes and records
// the round.
func (s *Session) settleRound(judge func(*member) string) {
	s.mu.Lock()
	round := s.round
	dealerHand := s.dealer.String()
	dealerTotal := s.dealer.BestTotal()
	type settlement struct {
		m      *member
		result string
		delta  int64
	}
	var settlements []settlement
	for _, name := range s.activeNamesLocked() {
		m := s.members[name]
		if !m.hasBet {
			continue
		}
		result := judge(m)
		var delta int64
		switch result {
		case history.ResultWin:
			delta = m.bet
		case history.ResultLose:
			delta = -m.bet
		}
		settlements = append(settlements, settlement{m: m, result: result, delta: delta})
	}
	s.mu.Unlock()

	summary := history.RoundSummary{
		GameID:      s.Meta.ID,
		Round:       round,
		DealerHand:  dealerHand,
		DealerTotal: dealerTotal,
		EndedAt:     time.Now(),
	}
	for _, st := range settlements {
		st.m.user.Adjust(st.delta)
		if err := s.users.Persist(st.m.user); err != nil {
			log.Printf("[Session %s] persist balance for %s failed: %v", s.Meta.ID, st.m.user.Username, err)
		}
		summary.Outcomes = append(summary.Outcomes, history.PlayerOutcome{
			Username: st.m.user.Username,
			Bet:      st.m.bet,
			Result:   st.result,
			Delta:    st.delta,
		})
		s.broadcast(protocol.New(protocol.CodeRoundOutcome,
			fmt.Sprintf("%s %s %d", st.m.user.Username, st.result, st.m.bet)))
	}
	if s.hist != nil && len(summary.Outcomes) > 0 {
		s.hist.RecordRound(summary)
	}
	s.broadcast(protocol.New(protocol.CodeRoundOver, fmt.Sprintf("round %d complete", round)))
}

func (s *Session) isSettled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settled
}

// activeNamesLocked returns active members in join order. Caller holds
// s.mu.
func (s *Session) activeNamesLocked() []string {
	names := make([]string, 0, len(s.order))
	for _, name := range s.order {
		if m := s.members[name]; m != nil && m.status == StatusActive {
			names = append(names, name)
		}
	}
	return names
}

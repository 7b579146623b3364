package blackjack

import (
	"sort"
	"strings"

	"blackjack-lite/card"
)

// DealtCard is a card together with its table orientation.
type DealtCard struct {
	Card   card.Card
	FaceUp bool
}

// Hand tracks dealt cards and every total the hand can legally count to.
// Each ace may count 1 or 11, so a hand with k aces has at most 2^k
// distinct totals.
type Hand struct {
	cards  []DealtCard
	totals []int // sorted ascending, deduplicated
}

func NewHand() *Hand {
	return &Hand{totals: []int{0}}
}

// Reset empties the hand for a fresh round.
func (h *Hand) Reset() {
	h.cards = h.cards[:0]
	h.totals = append(h.totals[:0], 0)
}

// Receive adds a card to the hand and reworks the running totals.
func (h *Hand) Receive(c card.Card, faceUp bool) {
	h.cards = append(h.cards, DealtCard{Card: c, FaceUp: faceUp})

	if !c.IsAce() {
		v := c.PipValue()
		for i := range h.totals {
			h.totals[i] += v
		}
		return
	}

	next := make(map[int]bool, len(h.totals)*2)
	for _, t := range h.totals {
		next[t+1] = true
		next[t+11] = true
	}
	h.totals = h.totals[:0]
	for t := range next {
		h.totals = append(h.totals, t)
	}
	sort.Ints(h.totals)
}

// Cards returns the dealt cards in dealing order.
func (h *Hand) Cards() []DealtCard {
	out := make([]DealtCard, len(h.cards))
	copy(out, h.cards)
	return out
}

func (h *Hand) Size() int {
	return len(h.cards)
}

// Totals returns every legal total, ascending.
func (h *Hand) Totals() []int {
	out := make([]int, len(h.totals))
	copy(out, h.totals)
	return out
}

// Busted reports whether every countable total exceeds 21.
func (h *Hand) Busted() bool {
	return len(h.totals) > 0 && h.totals[0] > 21
}

// Blackjack reports a natural: exactly two cards counting to 21.
func (h *Hand) Blackjack() bool {
	if len(h.cards) != 2 {
		return false
	}
	for _, t := range h.totals {
		if t == 21 {
			return true
		}
	}
	return false
}

// BestTotal returns the highest total not exceeding 21, or the lowest
// total when the hand is busted.
func (h *Hand) BestTotal() int {
	best := h.totals[0]
	for _, t := range h.totals {
		if t <= 21 {
			best = t
		}
	}
	return best
}

// DealerShouldHit applies the house rule: hit on 16 or less, stand on
// 17 or more, judged on the highest non-busting total. A busted hand
// stands; it has already lost.
func (h *Hand) DealerShouldHit() bool {
	if h.Busted() {
		return false
	}
	return h.BestTotal() < 17
}

// Reveal flips every card face up.
func (h *Hand) Reveal() {
	for i := range h.cards {
		h.cards[i].FaceUp = true
	}
}

// String renders the hand for wire payloads: face-down cards show as
// "XX" so a broadcast never leaks a hole card.
func (h *Hand) String() string {
	parts := make([]string, 0, len(h.cards))
	for _, dc := range h.cards {
		if dc.FaceUp {
			parts = append(parts, dc.Card.String())
		} else {
			parts = append(parts, card.CardHidden.String())
		}
	}
	return strings.Join(parts, " ")
}

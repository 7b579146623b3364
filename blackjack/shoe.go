package blackjack

import (
	"math/rand"

	"blackjack-lite/card"
)

// Shoe produces cards for a table. Implementations differ only in how
// the card order is built; the session driver treats them uniformly.
type Shoe interface {
	// Draw removes and returns the next card. ok is false once the
	// shoe is exhausted.
	Draw() (c card.Card, ok bool)
	// Depletion is dealt/(dealt+remaining) in [0,1].
	Depletion() float64
	// Reshuffle returns every dealt card and reorders the shoe.
	Reshuffle()
}

// deckShoe is the production shoe: numDecks shuffled 52-card decks.
type deckShoe struct {
	remaining []card.Card
	dealt     int
	numDecks  int
	rng       *rand.Rand
}

// NewShoe builds a shoe of numDecks shuffled decks. A non-nil rng makes
// the order reproducible; pass nil for a time-seeded order.
func NewShoe(numDecks int, rng *rand.Rand) Shoe {
	if numDecks < 1 {
		numDecks = 1
	}
	s := &deckShoe{numDecks: numDecks, rng: rng}
	s.Reshuffle()
	return s
}

func (s *deckShoe) Draw() (card.Card, bool) {
	if len(s.remaining) == 0 {
		return card.CardInvalid, false
	}
	c := s.remaining[0]
	s.remaining = s.remaining[1:]
	s.dealt++
	return c, true
}

func (s *deckShoe) Depletion() float64 {
	total := s.dealt + len(s.remaining)
	if total == 0 {
		return 1
	}
	return float64(s.dealt) / float64(total)
}

func (s *deckShoe) Reshuffle() {
	s.remaining = s.remaining[:0]
	for i := 0; i < s.numDecks; i++ {
		s.remaining = append(s.remaining, card.Deck()...)
	}
	s.dealt = 0
	shuffle := rand.Shuffle
	if s.rng != nil {
		shuffle = s.rng.Shuffle
	}
	shuffle(len(s.remaining), func(i, j int) {
		s.remaining[i], s.remaining[j] = s.remaining[j], s.remaining[i]
	})
}

// stackedShoe deals a fixed card order, for tests and replays.
// Reshuffle restores the original order.
type stackedShoe struct {
	order     []card.Card
	remaining []card.Card
}

func NewStackedShoe(cards ...card.Card) Shoe {
	order := make([]card.Card, len(cards))
	copy(order, cards)
	s := &stackedShoe{order: order}
	s.Reshuffle()
	return s
}

func (s *stackedShoe) Draw() (card.Card, bool) {
	if len(s.remaining) == 0 {
		return card.CardInvalid, false
	}
	c := s.remaining[0]
	s.remaining = s.remaining[1:]
	return c, true
}

func (s *stackedShoe) Depletion() float64 {
	if len(s.order) == 0 {
		return 1
	}
	return float64(len(s.order)-len(s.remaining)) / float64(len(s.order))
}

func (s *stackedShoe) Reshuffle() {
	s.remaining = make([]card.Card, len(s.order))
	copy(s.remaining, s.order)
}

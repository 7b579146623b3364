package card

type Suit byte

const (
	Spade Suit = iota
	Heart
	Club
	Diamond
)

// Letter is the single-letter wire form used in protocol payloads.
func (s Suit) Letter() string {
	switch s {
	case Spade:
		return "S"
	case Heart:
		return "H"
	case Club:
		return "C"
	case Diamond:
		return "D"
	}
	return "?"
}

func (s Suit) String() string {
	switch s {
	case Spade:
		return "Spades"
	case Heart:
		return "Hearts"
	case Club:
		return "Clubs"
	case Diamond:
		return "Diamonds"
	}
	return "?"
}

// Deck returns one ordered 52-card deck.
func Deck() []Card {
	cards := make([]Card, 0, 52)
	for suit := Card(0); suit < 4; suit++ {
		for rank := Card(1); rank <= 13; rank++ {
			cards = append(cards, suit<<4|rank)
		}
	}
	return cards
}

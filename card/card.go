package card

import (
	"fmt"
	"strings"
)

// Card is a compact playing-card encoding:
// high 4 bits carry the suit (0:Spade, 1:Heart, 2:Club, 3:Diamond),
// low 4 bits carry the rank (1:A, 2..9, 10:T, 11:J, 12:Q, 13:K).
type Card byte

const (
	CardInvalid Card = 0
	CardHidden  Card = 0xFF
)

// Rank returns the face value 1-13 (A=1, K=13).
func (c Card) Rank() byte {
	if c == CardInvalid || c == CardHidden {
		return 0
	}
	return byte(c & 0x0F)
}

// Suit returns the card's suit (0:Spade, 1:Heart, 2:Club, 3:Diamond).
func (c Card) Suit() Suit {
	return Suit(c >> 4)
}

func (c Card) IsAce() bool {
	return c.Rank() == 1
}

// PipValue returns the blackjack value of a card: face cards count ten,
// everything else counts its rank. Aces return 1; the hand decides
// between 1 and 11.
func (c Card) PipValue() int {
	r := int(c.Rank())
	if r > 10 {
		return 10
	}
	return r
}

func (c Card) String() string {
	if c == CardInvalid {
		return "??"
	}
	if c == CardHidden {
		return "XX"
	}
	return rankString(c.Rank()) + c.Suit().Letter()
}

func rankString(r byte) string {
	switch r {
	case 1:
		return "A"
	case 10:
		return "T"
	case 11:
		return "J"
	case 12:
		return "Q"
	case 13:
		return "K"
	default:
		return fmt.Sprintf("%d", r)
	}
}

// Parse converts a string such as "AS", "Td" or "10h" to a Card.
func Parse(s string) (Card, error) {
	if len(s) < 2 {
		return CardInvalid, fmt.Errorf("invalid card string: %q", s)
	}

	var suitBase Card
	switch s[len(s)-1] {
	case 's', 'S':
		suitBase = 0x00
	case 'h', 'H':
		suitBase = 0x10
	case 'c', 'C':
		suitBase = 0x20
	case 'd', 'D':
		suitBase = 0x30
	default:
		return CardInvalid, fmt.Errorf("invalid suit: %c", s[len(s)-1])
	}

	var rank Card
	switch strings.ToUpper(s[:len(s)-1]) {
	case "A":
		rank = 0x01
	case "2", "3", "4", "5", "6", "7", "8", "9":
		rank = Card(s[0] - '0')
	case "T", "10":
		rank = 0x0A
	case "J":
		rank = 0x0B
	case "Q":
		rank = 0x0C
	case "K":
		rank = 0x0D
	default:
		return CardInvalid, fmt.Errorf("invalid rank: %s", s[:len(s)-1])
	}

	return suitBase + rank, nil
}

// MustParse is Parse for test fixtures and static tables.
func MustParse(s string) Card {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

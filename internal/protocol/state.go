package protocol

// State is a connection's position in the protocol state machine. It
// decides which commands are legal and which idle-timeout policy is in
// force.
type State int

const (
	StateAwaitingUsername State = iota
	StateAwaitingPassword
	StateInLobby
	StateObserving
	StateAwaitingBet
	StateWaitingTurn
	StateMyTurn
	StateTurnDone
	StateDealerResolving
	StateDisconnected
)

var stateNames = map[State]string{
	StateAwaitingUsername: "AWAITING_USERNAME",
	StateAwaitingPassword: "AWAITING_PASSWORD",
	StateInLobby:          "IN_LOBBY",
	StateObserving:        "OBSERVING",
	StateAwaitingBet:      "AWAITING_BET",
	StateWaitingTurn:      "WAITING_TURN",
	StateMyTurn:           "MY_TURN",
	StateTurnDone:         "TURN_DONE",
	StateDealerResolving:  "DEALER_RESOLVING",
	StateDisconnected:     "DISCONNECTED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// InSession reports whether the state belongs to a joined game session.
func (s State) InSession() bool {
	switch s {
	case StateObserving, StateAwaitingBet, StateWaitingTurn,
		StateMyTurn, StateTurnDone, StateDealerResolving:
		return true
	}
	return false
}

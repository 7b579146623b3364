package protocol

// Numeric identities of every response the server emits. The leading
// digit is the class: 1xx informative, 2xx command completed, 3xx
// intermediate auth, 4xx client/session error, 5xx malformed or
// unsupported input, 6xx asynchronous game push, 7xx server-initiated
// action request.
const (
	CodeVersion      = 101
	CodeCapabilities = 102

	CodeOK           = 201
	CodeGameList     = 202
	CodeGameStatus   = 203
	CodeAccountInfo  = 204
	CodeGoodbye      = 205
	CodeBetAccepted  = 206
	CodeJoinedGame   = 207
	CodeLeftGame     = 208
	CodeCardDealt    = 221
	CodeStandingPat  = 222
	CodeBusted       = 223

	CodePasswordRequired = 301

	CodeNotAuthenticated  = 401
	CodeAuthFailed        = 402
	CodeInsufficientFunds = 403
	CodeNoSuchGame        = 404
	CodeSessionFull       = 405
	CodeNotInSession      = 406
	CodeBetNotExpected    = 407
	CodeNotYourTurn       = 408
	CodeAlreadyAuthed     = 409
	CodeAlreadyInSession  = 410
	CodeBetOutOfRange     = 411

	CodeSyntaxError    = 500
	CodeUnknownCommand = 501
	CodeInternalError  = 502

	CodeRoundStarting    = 601
	CodePlayerJoined     = 610
	CodePlayerLeft       = 611
	CodeHandUpdate       = 612
	CodeDealerHandUpdate = 613
	CodeShuffling        = 614
	CodeDemotedObserver  = 615
	CodeRoundOutcome     = 616
	CodeDealerBlackjack  = 617
	CodeDealerAction     = 618
	CodeIdleDisconnect   = 619
	CodeRoundOver        = 620

	CodeEnterBet = 701
	CodeYourTurn = 702
)

// Code is one wire response: a fixed numeric identity plus a payload
// that varies per instance.
type Code struct {
	Number  int
	Payload string
}

func New(number int, payload string) Code {
	return Code{Number: number, Payload: payload}
}

func (c Code) class() int {
	return c.Number / 100
}

// IsSuccess covers informative, completed and intermediate-auth classes.
func (c Code) IsSuccess() bool {
	switch c.class() {
	case 1, 2, 3:
		return true
	}
	return false
}

// IsError covers client/session errors and malformed-input rejections.
func (c Code) IsError() bool {
	return c.class() == 4 || c.class() == 5
}

// IsPush covers asynchronous state pushes and action requests.
func (c Code) IsPush() bool {
	return c.class() == 6 || c.class() == 7
}

// IsMultiline reports whether the code's payload carries a structured
// body after the status line. Classification depends only on the
// numeric identity.
func (c Code) IsMultiline() bool {
	switch c.Number {
	case CodeGameList, CodeGameStatus:
		return true
	}
	return false
}

package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned for any line that fails the 3-digit-prefix
// check. Callers treat it as a protocol violation, never a crash.
var ErrMalformed = errors.New("malformed response line")

// Body-row keywords for multiline payloads. Line 0 of a multiline
// response is the status line; every following row starts with one of
// these, and a blank line terminates the body.
const (
	KeywordGame      = "GAME"
	KeywordAttribute = "ATTRIBUTE"
	KeywordRule      = "RULE"
	KeywordEndGame   = "ENDGAME"
)

// Parse decodes a single response line. The first three bytes must be
// an unsigned integer; the remainder, trimmed, is the payload.
func Parse(line string) (Code, error) {
	if len(line) < 3 {
		return Code{}, ErrMalformed
	}
	number, err := strconv.ParseUint(line[:3], 10, 32)
	if err != nil {
		return Code{}, ErrMalformed
	}
	return Code{Number: int(number), Payload: strings.TrimSpace(line[3:])}, nil
}

// Format renders a code as its wire line, without a trailing
// terminator; the transport appends that.
func Format(c Code) string {
	if c.Payload == "" {
		return fmt.Sprintf("%03d", c.Number)
	}
	return fmt.Sprintf("%03d %s", c.Number, c.Payload)
}

// SplitBody returns the status line and the body rows of a multiline
// payload. The trailing blank terminator row is stripped.
func SplitBody(payload string) (status string, rows []string) {
	lines := strings.Split(payload, "\n")
	status = lines[0]
	for _, row := range lines[1:] {
		if strings.TrimSpace(row) == "" {
			continue
		}
		rows = append(rows, row)
	}
	return status, rows
}

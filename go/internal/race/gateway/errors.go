package gateway

import (
	"errors"

	"github.com/mcdev12/typerace/go/internal/race/events"
	"github.com/mcdev12/typerace/go/internal/race/registry"
	"github.com/mcdev12/typerace/go/internal/race/session"
)

var (
	ErrNotInRoom   = errors.New("not in a room")
	ErrRateLimited = errors.New("too many progress updates")
)

// Wire error codes.
const (
	CodeRoomNotFound     = "RoomNotFound"
	CodeRoomFull         = "RoomFull"
	CodeNotEnoughPlayers = "NotEnoughPlayers"
	CodeNotHost          = "NotHost"
	CodeSessionNotRacing = "SessionNotRacing"
	CodeInvalidInput     = "InvalidInput"
	CodeNameRequired     = "NameRequired"
	CodeInvalidPhase     = "InvalidPhase"
	CodeSessionClosed    = "SessionClosed"
	CodeRateLimited      = "RateLimited"
	CodeInternal         = "Internal"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotInRoom, CodeRoomNotFound},
	{registry.ErrRoomNotFound, CodeRoomNotFound},
	{session.ErrRoomFull, CodeRoomFull},
	{session.ErrNotEnoughPlayers, CodeNotEnoughPlayers},
	{session.ErrNotHost, CodeNotHost},
	{session.ErrSessionNotRacing, CodeSessionNotRacing},
	{events.ErrNameRequired, CodeNameRequired},
	{events.ErrNameTooLong, CodeInvalidInput},
	{events.ErrMalformed, CodeInvalidInput},
	{events.ErrUnknownCommand, CodeInvalidInput},
	{registry.ErrInvalidCode, CodeInvalidInput},
	{session.ErrAlreadyMember, CodeInvalidInput},
	{session.ErrNotMember, CodeInvalidInput},
	{session.ErrInvalidInput, CodeInvalidInput},
	{session.ErrInvalidPhase, CodeInvalidPhase},
	{session.ErrSessionClosed, CodeSessionClosed},
	{registry.ErrShutdown, CodeSessionClosed},
	{ErrRateLimited, CodeRateLimited},
}

// ErrorCode maps err to its wire code. Anything unrecognised is Internal.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}

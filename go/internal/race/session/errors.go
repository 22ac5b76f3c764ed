package session

import "errors"

var (
	ErrRoomFull         = errors.New("room is full")
	ErrNotEnoughPlayers = errors.New("not enough players to start")
	ErrNotHost          = errors.New("only the host can start the race")
	ErrSessionNotRacing = errors.New("session is not racing")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidPhase     = errors.New("not allowed in the current phase")
	ErrNotMember        = errors.New("player is not in this room")
	ErrAlreadyMember    = errors.New("player is already in this room")
	ErrNoWords          = errors.New("word source returned no words")
	ErrSessionClosed    = errors.New("session closed")
)

package domain

import (
	"errors"
	"fmt"
)

// Kind groups errors by how they are reported.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindBusiness
	KindCollaborator
)

// Error is a classified error with a stable wire code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   *Error
}

func (e *Error) Error() string { return e.Message }

// Is matches e against its sentinel so wrapped copies satisfy errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || e.cause == t
}

var (
	ErrInvalidPayload      = &Error{Kind: KindValidation, Code: "INVALID_PAYLOAD", Message: "invalid payload"}
	ErrInvalidBet          = &Error{Kind: KindValidation, Code: "INVALID_BET", Message: "bet amount out of range"}
	ErrInvalidResponseTime = &Error{Kind: KindValidation, Code: "INVALID_RESPONSE_TIME", Message: "invalid response time"}
	ErrPlayerMismatch      = &Error{Kind: KindValidation, Code: "PLAYER_MISMATCH", Message: "player does not match connection"}

	ErrRoomNotFound        = &Error{Kind: KindBusiness, Code: "ROOM_NOT_FOUND", Message: "room not found"}
	ErrRoomNotJoinable     = &Error{Kind: KindBusiness, Code: "ROOM_NOT_JOINABLE", Message: "room is not accepting players"}
	ErrRoomFull            = &Error{Kind: KindBusiness, Code: "ROOM_FULL", Message: "room is full"}
	ErrPlayerAlreadySeated = &Error{Kind: KindBusiness, Code: "PLAYER_ALREADY_SEATED", Message: "player already in room"}
	ErrPlayerNotSeated     = &Error{Kind: KindBusiness, Code: "PLAYER_NOT_SEATED", Message: "player is not in room"}
	ErrRoomInProgress      = &Error{Kind: KindBusiness, Code: "ROOM_IN_PROGRESS", Message: "game in progress"}
	ErrInsufficientFunds   = &Error{Kind: KindBusiness, Code: "INSUFFICIENT_FUNDS", Message: "insufficient funds"}
	ErrGameNotFound        = &Error{Kind: KindBusiness, Code: "GAME_NOT_FOUND", Message: "game not found"}
	ErrTooManyRooms        = &Error{Kind: KindBusiness, Code: "MAX_ROOMS", Message: "max rooms reached"}

	ErrPersistence      = &Error{Kind: KindCollaborator, Code: "PERSISTENCE_ERROR", Message: "persistence error"}
	ErrGameStart        = &Error{Kind: KindCollaborator, Code: "GAME_START_ERROR", Message: "game could not start"}
	ErrSettlementFailed = &Error{Kind: KindCollaborator, Code: "SETTLEMENT_FAILED", Message: "game results could not be settled"}
	ErrInternal         = &Error{Kind: KindCollaborator, Code: "INTERNAL", Message: "internal error"}
)

// Wrap returns a copy of sentinel with a more specific message.
func Wrap(sentinel *Error, msg string) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: msg, cause: sentinel}
}

// Persistence classifies a collaborator failure. The underlying error stays
// in the message for logs; clients only see the code.
func Persistence(op string, err error) *Error {
	return Wrap(ErrPersistence, fmt.Sprintf("%s: %v", op, err))
}

// AsError extracts the classified error from err, defaulting to ErrInternal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindCollaborator && e.cause != nil {
			// Collaborator detail stays server side.
			return e.cause
		}
		return e
	}
	return ErrInternal
}

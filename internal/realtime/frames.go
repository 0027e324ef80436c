package realtime

import (
	"errors"

	"github.com/lalith-99/echochat/internal/apperr"
	"github.com/lalith-99/echochat/internal/broadcast"
)

// Client commands.
const (
	cmdSubscribe   = "subscribe"
	cmdUnsubscribe = "unsubscribe"
	cmdPing        = "ping"
)

// Server frame types.
const (
	frameEvent = "event"
	frameAck   = "ack"
	frameError = "error"
	framePong  = "pong"
)

// Error codes carried by error frames.
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeUnavailable     = "UNAVAILABLE"
)

type command struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	ChatID    int64  `json:"chat_id,omitempty"`
}

// Frame is every message the server writes.
type Frame struct {
	Type      string `json:"type"`
	Event     string `json:"event,omitempty"`
	ChatID    int64  `json:"chat_id,omitempty"`
	Payload   any    `json:"payload,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

func eventFrame(ev broadcast.Event) Frame {
	return Frame{Type: frameEvent, Event: ev.Name(), ChatID: ev.ChatID(), Payload: ev.Payload()}
}

func ackFrame(cmd command) Frame {
	return Frame{Type: frameAck, RequestID: cmd.RequestID, ChatID: cmd.ChatID}
}

func errorFrame(requestID, code, msg string) Frame {
	return Frame{Type: frameError, RequestID: requestID, Code: code, Message: msg}
}

// errorCode maps an error kind to its wire code. Anything unclassified is
// reported as retryable.
func errorCode(err error) string {
	switch {
	case errors.Is(err, apperr.ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, apperr.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, apperr.ErrValidation):
		return CodeInvalidArgument
	default:
		return CodeUnavailable
	}
}

package broadcast

import "github.com/lalith-99/echochat/internal/models"

// Wire names of the events pushed to realtime clients.
const (
	NameChatCreated    = "ChatCreated"
	NameChatUpdated    = "ChatUpdated"
	NameChatDeleted    = "ChatDeleted"
	NameUserJoined     = "UserJoined"
	NameUserLeft       = "UserLeft"
	NameMessageCreated = "ReceiveMessage"
	NameMessageUpdated = "MessageUpdated"
	NameMessageDeleted = "MessageDeleted"
)

// Event is the closed set of things a registry can publish. Every event
// knows the chat it belongs to, its wire name and its wire payload.
type Event interface {
	Name() string
	ChatID() int64
	Payload() any
	event()
}

type ChatCreated struct{ Chat models.Chat }

func (e ChatCreated) Name() string  { return NameChatCreated }
func (e ChatCreated) ChatID() int64 { return e.Chat.ID }
func (e ChatCreated) Payload() any  { return e.Chat }
func (ChatCreated) event()          {}

type ChatUpdated struct{ Chat models.Chat }

func (e ChatUpdated) Name() string  { return NameChatUpdated }
func (e ChatUpdated) ChatID() int64 { return e.Chat.ID }
func (e ChatUpdated) Payload() any  { return e.Chat }
func (ChatUpdated) event()          {}

// ChatDeleted carries only the id; the row is gone by the time it is sent.
type ChatDeleted struct{ ID int64 }

func (e ChatDeleted) Name() string  { return NameChatDeleted }
func (e ChatDeleted) ChatID() int64 { return e.ID }
func (e ChatDeleted) Payload() any  { return e.ID }
func (ChatDeleted) event()          {}

type UserJoined struct{ Membership models.Membership }

func (e UserJoined) Name() string  { return NameUserJoined }
func (e UserJoined) ChatID() int64 { return e.Membership.ChatID }
func (e UserJoined) Payload() any  { return e.Membership }
func (UserJoined) event()          {}

type UserLeft struct{ Membership models.Membership }

func (e UserLeft) Name() string  { return NameUserLeft }
func (e UserLeft) ChatID() int64 { return e.Membership.ChatID }
func (e UserLeft) Payload() any  { return e.Membership }
func (UserLeft) event()          {}

type MessageCreated struct{ Message models.Message }

func (e MessageCreated) Name() string  { return NameMessageCreated }
func (e MessageCreated) ChatID() int64 { return e.Message.ChatID }
func (e MessageCreated) Payload() any  { return e.Message }
func (MessageCreated) event()          {}

type MessageUpdated struct{ Message models.Message }

func (e MessageUpdated) Name() string  { return NameMessageUpdated }
func (e MessageUpdated) ChatID() int64 { return e.Message.ChatID }
func (e MessageUpdated) Payload() any  { return e.Message }
func (MessageUpdated) event()          {}

type MessageDeleted struct {
	Chat      int64
	MessageID int64
}

func (e MessageDeleted) Name() string  { return NameMessageDeleted }
func (e MessageDeleted) ChatID() int64 { return e.Chat }
func (e MessageDeleted) Payload() any  { return e.MessageID }
func (MessageDeleted) event()          {}

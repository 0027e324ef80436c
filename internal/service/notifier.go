// Package service orchestrates every chat mutation the same way: authorize
// with the guard, commit one store transaction, then publish. Publishing
// happens only after a successful commit, and a chat's sequence lock is held
// from the authorization check until the publish returns so subscribers see
// events in commit order.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/auth"
	"github.com/lalith-99/echochat/internal/broadcast"
	"github.com/lalith-99/echochat/internal/eventlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const sinkTimeout = 2 * time.Second

var tracer = otel.Tracer("github.com/lalith-99/echochat/internal/service")

// Notifier publishes committed changes. Chat events go to the chat's group;
// events that change what a user can see also go to that user's inbox, so a
// client learns about chats it has not subscribed to yet.
//
// A connection never gets the same event twice. Inbox recipients are users
// who just joined or left the chat, and at publish time none of their
// connections are in the chat's group: a joiner could not subscribe before
// the grant, and a leaver is revoked before UserLeft goes out.
type Notifier struct {
	chats   *broadcast.Registry[int64]
	inboxes *broadcast.Registry[uuid.UUID]
	seq     *broadcast.Sequencer
	sink    eventlog.Sink
	logger  *zap.Logger
	now     func() time.Time
}

func NewNotifier(
	chats *broadcast.Registry[int64],
	inboxes *broadcast.Registry[uuid.UUID],
	seq *broadcast.Sequencer,
	sink eventlog.Sink,
	logger *zap.Logger,
) *Notifier {
	if sink == nil {
		sink = eventlog.Nop{}
	}
	return &Notifier{
		chats:   chats,
		inboxes: inboxes,
		seq:     seq,
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}
}

// lock takes chatID's sequence. Callers defer the returned func.
func (n *Notifier) lock(chatID int64) func() {
	return n.seq.Lock(chatID)
}

// publish must be called with the chat's sequence held. It cannot fail: the
// write it reports on has already committed.
func (n *Notifier) publish(ctx context.Context, actor auth.Identity, ev broadcast.Event, inboxes ...uuid.UUID) {
	delivered := n.chats.Publish(ev.ChatID(), ev)
	for _, userID := range inboxes {
		delivered += n.inboxes.Publish(userID, ev)
	}

	trace.SpanFromContext(ctx).AddEvent("published")
	n.logger.Debug("event published",
		zap.String("event", ev.Name()),
		zap.Int64("chat_id", ev.ChatID()),
		zap.Int("targets", delivered),
	)

	// The mirror must not be cut short by the request finishing.
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	rec := eventlog.NewRecord(ev, actor.TenantID, actor.UserID, n.now())
	if err := n.sink.Append(sinkCtx, rec); err != nil {
		n.logger.Warn("event log append failed",
			zap.String("event", ev.Name()),
			zap.Int64("chat_id", ev.ChatID()),
			zap.Error(err),
		)
	}
}

// revoke takes every connection of userID out of chatID's group and returns
// how many there were. Connections are found through the user's inbox, which
// each of them joins on connect. The chat's sequence must be held, so no
// event for the chat can be published in between.
func (n *Notifier) revoke(chatID int64, userID uuid.UUID) int {
	dropped := 0
	for _, connID := range n.inboxes.Subscribers(userID) {
		if n.chats.UnsubscribeID(chatID, connID) {
			dropped++
		}
	}
	return dropped
}

// retire closes a deleted chat's group once its last event is delivered.
func (n *Notifier) retire(chatID int64) {
	n.chats.Retire(chatID)
}

// finish closes a span, recording err if there is one.
func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

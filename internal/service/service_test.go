package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/auth"
	"github.com/lalith-99/echochat/internal/authz"
	"github.com/lalith-99/echochat/internal/broadcast"
	"github.com/lalith-99/echochat/internal/eventlog"
	"github.com/lalith-99/echochat/internal/presence"
	"github.com/lalith-99/echochat/internal/repository"
	"github.com/lalith-99/echochat/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// conn stands in for a realtime connection.
type conn struct {
	id     string
	events chan broadcast.Event
}

func newConn(id string) *conn {
	return &conn{id: id, events: make(chan broadcast.Event, 64)}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Deliver(ctx context.Context, ev broadcast.Event) error {
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) Close() error { return nil }

func (c *conn) next(t *testing.T) broadcast.Event {
	t.Helper()
	select {
	case ev := <-c.events:
		return ev
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no event delivered", "connection %s", c.id)
		return nil
	}
}

// expect asserts the next events, in order, have the given wire names.
func (c *conn) expect(t *testing.T, names ...string) []broadcast.Event {
	t.Helper()
	got := make([]broadcast.Event, 0, len(names))
	for _, name := range names {
		ev := c.next(t)
		require.Equal(t, name, ev.Name(), "connection %s", c.id)
		got = append(got, ev)
	}
	return got
}

func (c *conn) requireQuiet(t *testing.T) {
	t.Helper()
	time.Sleep(30 * time.Millisecond)
	select {
	case ev := <-c.events:
		require.FailNow(t, "unexpected event", "connection %s got %s", c.id, ev.Name())
	default:
	}
}

type harness struct {
	db       *memory.DB
	store    repository.Store
	chats    *broadcast.Registry[int64]
	inboxes  *broadcast.Registry[uuid.UUID]
	chatSvc  *ChatService
	msgSvc   *MessageService
	memSvc   *MembershipService
	tenantID uuid.UUID
}

func newHarness(t *testing.T, sink eventlog.Sink, tracker presence.Tracker) *harness {
	t.Helper()
	db := memory.New()
	store := db.Store()
	logger := zap.NewNop()

	chats := broadcast.New[int64](broadcast.Options{Name: "chats", DeliveryTimeout: time.Second, Logger: logger})
	inboxes := broadcast.New[uuid.UUID](broadcast.Options{Name: "inboxes", DeliveryTimeout: time.Second, Logger: logger})
	guard := authz.NewGuard(store)
	notifier := NewNotifier(chats, inboxes, broadcast.NewSequencer(), sink, logger)

	tenant, err := store.Tenants.Create(context.Background(), "acme")
	require.NoError(t, err)

	return &harness{
		db:       db,
		store:    store,
		chats:    chats,
		inboxes:  inboxes,
		chatSvc:  NewChatService(store, guard, notifier, tracker, logger),
		msgSvc:   NewMessageService(store, guard, notifier, logger),
		memSvc:   NewMembershipService(store, guard, notifier, logger),
		tenantID: tenant.ID,
	}
}

func (h *harness) user(t *testing.T, name string) auth.Identity {
	t.Helper()
	u, err := h.store.Users.Create(context.Background(), h.tenantID, name+"@example.com", name, "hash")
	require.NoError(t, err)
	return auth.Identity{UserID: u.ID, TenantID: h.tenantID, Email: u.Email}
}

// connect simulates a session: subscribed to its inbox and to chatIDs.
func (h *harness) connect(id auth.Identity, chatIDs ...int64) *conn {
	c := newConn(fmt.Sprintf("conn-%s", uuid.NewString()))
	h.inboxes.Subscribe(id.UserID, c)
	for _, chatID := range chatIDs {
		h.chats.Subscribe(chatID, c)
	}
	return c
}

package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/apperr"
	"github.com/lalith-99/echochat/internal/auth"
	"github.com/lalith-99/echochat/internal/broadcast"
	"github.com/lalith-99/echochat/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestMembershipService_OnlyCreatorGrants(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	alice, bob, carol := h.user(t, "alice"), h.user(t, "bob"), h.user(t, "carol")

	ch, err := h.chatSvc.Create(ctx, alice, "Team")
	req.NoError(err)

	// A non-member cannot add themself
	_, err = h.memSvc.Join(ctx, bob, ch.ID, bob.UserID)
	req.ErrorIs(err, apperr.ErrForbidden)

	// The creator can add bob
	_, err = h.memSvc.Join(ctx, alice, ch.ID, bob.UserID)
	req.NoError(err)

	// A member who is not the creator still cannot add others
	_, err = h.memSvc.Join(ctx, bob, ch.ID, carol.UserID)
	req.ErrorIs(err, apperr.ErrForbidden)

	// Unknown users and users of other tenants are not found
	_, err = h.memSvc.Join(ctx, alice, ch.ID, uuid.New())
	req.ErrorIs(err, apperr.ErrNotFound)

	_, err = h.memSvc.Join(ctx, alice, ch.ID, uuid.Nil)
	req.ErrorIs(err, apperr.ErrValidation)
}

func TestMembershipService_JoinIsIdempotentAndNotifiesOnce(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	alice, bob := h.user(t, "alice"), h.user(t, "bob")

	ch, err := h.chatSvc.Create(ctx, alice, "Team")
	req.NoError(err)
	ownerConn := h.connect(alice, ch.ID)
	bobConn := h.connect(bob)

	first, err := h.memSvc.Join(ctx, alice, ch.ID, bob.UserID)
	req.NoError(err)
	second, err := h.memSvc.Join(ctx, alice, ch.ID, bob.UserID)
	req.NoError(err)
	req.Equal(first.JoinedAt, second.JoinedAt)

	// The chat's subscribers and bob's inbox each see exactly one UserJoined
	ev := ownerConn.expect(t, broadcast.NameUserJoined)[0].(broadcast.UserJoined)
	req.Equal(bob.UserID, ev.Membership.UserID)
	bobConn.expect(t, broadcast.NameUserJoined)
	ownerConn.requireQuiet(t)
	bobConn.requireQuiet(t)
}

func TestMembershipService_Leave(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	alice, bob, carol := h.user(t, "alice"), h.user(t, "bob"), h.user(t, "carol")

	ch, err := h.chatSvc.Create(ctx, alice, "Team")
	req.NoError(err)
	for _, u := range []uuid.UUID{bob.UserID, carol.UserID} {
		_, err = h.memSvc.Join(ctx, alice, ch.ID, u)
		req.NoError(err)
	}
	watcher := h.connect(alice, ch.ID)
	carolInbox := h.connect(carol)

	// A member cannot remove another member
	req.ErrorIs(h.memSvc.Leave(ctx, bob, ch.ID, carol.UserID), apperr.ErrForbidden)

	// The creator cannot leave
	req.ErrorIs(h.memSvc.Leave(ctx, alice, ch.ID, alice.UserID), apperr.ErrForbidden)

	// A member can leave
	req.NoError(h.memSvc.Leave(ctx, bob, ch.ID, bob.UserID))
	req.ErrorIs(h.memSvc.Leave(ctx, bob, ch.ID, bob.UserID), apperr.ErrNotFound)

	// The creator can kick, and the kicked user hears about it
	req.NoError(h.memSvc.Leave(ctx, alice, ch.ID, carol.UserID))

	events := watcher.expect(t, broadcast.NameUserLeft, broadcast.NameUserLeft)
	req.Equal(bob.UserID, events[0].(broadcast.UserLeft).Membership.UserID)
	req.Equal(carol.UserID, events[1].(broadcast.UserLeft).Membership.UserID)
	carolInbox.expect(t, broadcast.NameUserLeft)

	ms, err := h.memSvc.List(ctx, alice, repository.MembershipFilter{ChatID: ch.ID})
	req.NoError(err)
	req.Len(ms, 1)
	req.Equal(alice.UserID, ms[0].UserID)
}

func TestMembershipService_LeaveRevokesLiveSubscriptions(t *testing.T) {
	tests := []struct {
		name   string
		remove func(h *harness, owner, member auth.Identity, chatID int64) error
	}{
		{"kicked by the creator", func(h *harness, owner, member auth.Identity, chatID int64) error {
			return h.memSvc.Leave(context.Background(), owner, chatID, member.UserID)
		}},
		{"leaves on their own", func(h *harness, _, member auth.Identity, chatID int64) error {
			return h.memSvc.Leave(context.Background(), member, chatID, member.UserID)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			h := newHarness(t, nil, nil)
			alice, bob := h.user(t, "alice"), h.user(t, "bob")

			ch, err := h.chatSvc.Create(ctx, alice, "Team")
			req.NoError(err)
			joined, err := h.memSvc.Join(ctx, alice, ch.ID, bob.UserID)
			req.NoError(err)

			// Given bob is watching the chat from two connections
			owner := h.connect(alice, ch.ID)
			phone, laptop := h.connect(bob, ch.ID), h.connect(bob, ch.ID)
			req.Len(h.chats.Subscribers(ch.ID), 3)

			// When bob's membership ends
			req.NoError(tt.remove(h, alice, bob, ch.ID))

			// Then each of bob's connections hears UserLeft exactly once,
			// with the row as it was stored
			for _, c := range []*conn{phone, laptop} {
				left := c.expect(t, broadcast.NameUserLeft)[0].(broadcast.UserLeft)
				req.Equal(*joined, left.Membership)
				req.False(left.Membership.JoinedAt.IsZero())
			}
			owner.expect(t, broadcast.NameUserLeft)

			// And nothing sent to the chat afterwards reaches bob
			for _, content := range []string{"secret 1", "secret 2", "secret 3"} {
				_, err := h.msgSvc.Create(ctx, alice, ch.ID, content)
				req.NoError(err)
			}
			owner.expect(t, "ReceiveMessage", "ReceiveMessage", "ReceiveMessage")
			req.Equal([]string{owner.ID()}, h.chats.Subscribers(ch.ID))
			req.Empty(h.chats.Keys(phone))
			req.Empty(h.chats.Keys(laptop))
			phone.requireQuiet(t)
			laptop.requireQuiet(t)
		})
	}
}

func TestMembershipService_ListOnlyShowsCallersChats(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	alice, bob := h.user(t, "alice"), h.user(t, "bob")

	_, err := h.chatSvc.Create(ctx, alice, "Alice's")
	req.NoError(err)
	bobs, err := h.chatSvc.Create(ctx, bob, "Bob's")
	req.NoError(err)

	ms, err := h.memSvc.List(ctx, alice, repository.MembershipFilter{})
	req.NoError(err)
	req.Len(ms, 1)

	ms, err = h.memSvc.List(ctx, alice, repository.MembershipFilter{ChatID: bobs.ID})
	req.NoError(err)
	req.Empty(ms)
}

// A creates "Team", B cannot post until A adds B, B's message reaches both
// of them and nobody watching an unrelated chat.
func TestScenario_TeamChat(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	a, b, c := h.user(t, "a"), h.user(t, "b"), h.user(t, "c")

	aConn := h.connect(a)
	team, err := h.chatSvc.Create(ctx, a, "Team")
	req.NoError(err)
	req.Equal(int64(1), team.ID)
	aConn.expect(t, broadcast.NameChatCreated, broadcast.NameUserJoined)
	h.chats.Subscribe(team.ID, aConn)

	other, err := h.chatSvc.Create(ctx, c, "Other")
	req.NoError(err)
	cConn := h.connect(c, other.ID)
	bConn := h.connect(b)

	// B is not a member yet
	_, err = h.msgSvc.Create(ctx, b, team.ID, "hi")
	req.ErrorIs(err, apperr.ErrForbidden)

	// A invites B; B subscribes after hearing about it in the inbox
	_, err = h.memSvc.Join(ctx, a, team.ID, b.UserID)
	req.NoError(err)
	aConn.expect(t, broadcast.NameUserJoined)
	bConn.expect(t, broadcast.NameUserJoined)
	h.chats.Subscribe(team.ID, bConn)

	msg, err := h.msgSvc.Create(ctx, b, team.ID, "hi")
	req.NoError(err)
	req.Equal(b.UserID, msg.SenderID)
	req.Equal(team.ID, msg.ChatID)

	for _, cn := range []*conn{aConn, bConn} {
		ev := cn.expect(t, "ReceiveMessage")[0].(broadcast.MessageCreated)
		req.Equal(msg.ID, ev.Message.ID)
	}
	cConn.requireQuiet(t)
}

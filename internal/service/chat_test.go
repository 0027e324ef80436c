package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/apperr"
	"github.com/lalith-99/echochat/internal/auth"
	"github.com/lalith-99/echochat/internal/broadcast"
	"github.com/lalith-99/echochat/internal/eventlog"
	"github.com/lalith-99/echochat/internal/mocks"
	"github.com/lalith-99/echochat/internal/presence"
	"github.com/lalith-99/echochat/internal/repository"
	"github.com/lalith-99/echochat/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestChatService_CreateJoinsCreatorAndNotifies(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	alice := h.user(t, "alice")
	inbox := h.connect(alice)

	ch, err := h.chatSvc.Create(ctx, alice, "  Team  ")

	req.NoError(err)
	req.Equal("Team", ch.Name)
	req.Equal(alice.UserID, ch.CreatorID)

	member, err := h.store.Memberships.IsMember(ctx, ch.ID, alice.UserID)
	req.NoError(err)
	req.True(member)

	events := inbox.expect(t, broadcast.NameChatCreated, broadcast.NameUserJoined)
	req.Equal(ch.ID, events[0].ChatID())
	joined := events[1].(broadcast.UserJoined)
	req.Equal(alice.UserID, joined.Membership.UserID)
}

func TestChatService_CreateIsAtomic(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	// The mock has no expectations: any Append fails the test.
	sink := mocks.NewMockSink(ctrl)
	h := newHarness(t, sink, nil)
	alice := h.user(t, "alice")
	inbox := h.connect(alice)

	// Given the creator membership insert fails
	h.db.FailOn(memory.OpMembershipAdd, errors.New("connection reset"))

	// When the chat is created
	_, err := h.chatSvc.Create(ctx, alice, "Team")

	// Then it is a retryable persistence failure with nothing stored or published
	req.ErrorIs(err, apperr.ErrPersistence)
	chats, err := h.chatSvc.List(ctx, alice, repository.ChatFilter{})
	req.NoError(err)
	req.Empty(chats)
	inbox.requireQuiet(t)
}

func TestChatService_Validation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	alice := h.user(t, "alice")

	for name, input := range map[string]string{
		"empty":    "",
		"blank":    "   ",
		"too long": strings.Repeat("é", MaxChatNameLength+1),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.chatSvc.Create(ctx, alice, input)
			require.ErrorIs(t, err, apperr.ErrValidation)
		})
	}

	_, err := h.chatSvc.Create(ctx, alice, strings.Repeat("é", MaxChatNameLength))
	require.NoError(t, err)
}

func TestChatService_RenameByNonOwnerIsForbidden(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	alice, bob := h.user(t, "alice"), h.user(t, "bob")

	ch, err := h.chatSvc.Create(ctx, alice, "Team")
	req.NoError(err)
	_, err = h.memSvc.Join(ctx, alice, ch.ID, bob.UserID)
	req.NoError(err)
	watcher := h.connect(bob, ch.ID)

	// When a member who is not the owner renames the chat
	_, err = h.chatSvc.Rename(ctx, bob, ch.ID, "Hijacked")

	// Then it is forbidden and nothing changed
	req.ErrorIs(err, apperr.ErrForbidden)
	got, err := h.chatSvc.Get(ctx, alice, ch.ID)
	req.NoError(err)
	req.Equal("Team", got.Name)

	// And the next event subscribers see is the owner's rename, not bob's
	renamed, err := h.chatSvc.Rename(ctx, alice, ch.ID, "Core")
	req.NoError(err)
	ev := watcher.expect(t, broadcast.NameChatUpdated)[0].(broadcast.ChatUpdated)
	req.Equal("Core", ev.Chat.Name)
	req.Equal(renamed.CreatedAt, ev.Chat.CreatedAt)
}

func TestChatService_GetHidesChatsOfOthers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	alice, bob := h.user(t, "alice"), h.user(t, "bob")

	ch, err := h.chatSvc.Create(ctx, alice, "Private")
	req.NoError(err)

	_, err = h.chatSvc.Get(ctx, bob, ch.ID)
	req.ErrorIs(err, apperr.ErrNotFound)

	_, err = h.chatSvc.Get(ctx, auth.Identity{}, ch.ID)
	req.ErrorIs(err, apperr.ErrUnauthenticated)

	_, err = h.chatSvc.Get(ctx, alice, ch.ID+1)
	req.ErrorIs(err, apperr.ErrNotFound)
}

func TestChatService_ListIntersectsFiltersWithMembership(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	alice, bob := h.user(t, "alice"), h.user(t, "bob")

	teamA, err := h.chatSvc.Create(ctx, alice, "Team Alpha")
	req.NoError(err)
	_, err = h.chatSvc.Create(ctx, alice, "Random")
	req.NoError(err)
	teamB, err := h.chatSvc.Create(ctx, bob, "Team Beta")
	req.NoError(err)

	chats, err := h.chatSvc.List(ctx, alice, repository.ChatFilter{Name: "team"})
	req.NoError(err)
	req.Len(chats, 1)
	req.Equal(teamA.ID, chats[0].ID)

	// Adding alice to bob's chat makes it visible to her
	_, err = h.memSvc.Join(ctx, bob, teamB.ID, alice.UserID)
	req.NoError(err)
	chats, err = h.chatSvc.List(ctx, alice, repository.ChatFilter{Name: "team"})
	req.NoError(err)
	req.Len(chats, 2)

	chats, err = h.chatSvc.List(ctx, alice, repository.ChatFilter{CreatorID: bob.UserID})
	req.NoError(err)
	req.Len(chats, 1)
	req.Equal(teamB.ID, chats[0].ID)
}

func TestChatService_DeleteCascadesWithOneEvent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, nil, nil)
	alice, bob := h.user(t, "alice"), h.user(t, "bob")

	ch, err := h.chatSvc.Create(ctx, alice, "Team")
	req.NoError(err)
	_, err = h.memSvc.Join(ctx, alice, ch.ID, bob.UserID)
	req.NoError(err)
	_, err = h.msgSvc.Create(ctx, bob, ch.ID, "hi")
	req.NoError(err)
	watcher := h.connect(bob, ch.ID)

	// A non-owner cannot delete
	req.ErrorIs(h.chatSvc.Delete(ctx, bob, ch.ID), apperr.ErrForbidden)

	req.NoError(h.chatSvc.Delete(ctx, alice, ch.ID))

	for _, u := range []uuid.UUID{alice.UserID, bob.UserID} {
		ms, err := h.store.Memberships.List(ctx, repository.MembershipFilter{MemberID: u})
		req.NoError(err)
		req.Empty(ms)
	}
	ev := watcher.expect(t, broadcast.NameChatDeleted)[0]
	req.Equal(ch.ID, ev.Payload())

	// The chat's group is retired once ChatDeleted is out
	req.Eventually(func() bool {
		return len(h.chats.Subscribers(ch.ID)) == 0 && len(h.chats.Keys(watcher)) == 0
	}, time.Second, 5*time.Millisecond)
	req.Zero(h.chats.Publish(ch.ID, broadcast.ChatDeleted{ID: ch.ID}))
	watcher.requireQuiet(t)

	req.ErrorIs(h.chatSvc.Delete(ctx, alice, ch.ID), apperr.ErrNotFound)
}

func TestChatService_OnlineRequiresMembership(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	tracker := mocks.NewMockTracker(ctrl)
	h := newHarness(t, nil, tracker)
	alice, bob := h.user(t, "alice"), h.user(t, "bob")

	ch, err := h.chatSvc.Create(ctx, alice, "Team")
	req.NoError(err)

	tracker.EXPECT().Online(gomock.Any(), ch.ID).Return([]uuid.UUID{alice.UserID}, nil).Times(1)

	online, err := h.chatSvc.Online(ctx, alice, ch.ID)
	req.NoError(err)
	req.Equal([]uuid.UUID{alice.UserID}, online)

	// bob is not a member, so the tracker is never asked
	_, err = h.chatSvc.Online(ctx, bob, ch.ID)
	req.ErrorIs(err, apperr.ErrNotFound)
}

func TestChatService_EventsAreMirroredToSink(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	h := newHarness(t, sink, presence.Nop{})
	alice := h.user(t, "alice")

	var names []string
	sink.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, rec eventlog.Record) error {
			req.NoError(ctx.Err())
			req.Equal(alice.TenantID, rec.TenantID)
			req.Equal(alice.UserID, rec.ActorID)
			names = append(names, rec.Event)
			return nil
		}).Times(2)

	_, err := h.chatSvc.Create(ctx, alice, "Team")
	req.NoError(err)
	req.Equal([]string{broadcast.NameChatCreated, broadcast.NameUserJoined}, names)
}

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestChatStore_CreateAddsCreatorMembership(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := New().Store()
	tenant, creator := uuid.New(), uuid.New()

	ch, err := store.Chats.Create(ctx, tenant, creator, "Team")

	req.NoError(err)
	req.Equal(int64(1), ch.ID)
	member, err := store.Memberships.IsMember(ctx, ch.ID, creator)
	req.NoError(err)
	req.True(member)
}

func TestChatStore_CreateIsAllOrNothing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := New()
	store := db.Store()
	tenant, creator := uuid.New(), uuid.New()

	// Given the membership insert fails
	db.FailOn(OpMembershipAdd, errors.New("disk full"))

	// When the chat is created
	_, err := store.Chats.Create(ctx, tenant, creator, "Team")

	// Then neither the chat nor the membership exists
	req.Error(err)
	chats, err := store.Chats.List(ctx, tenant, repository.ChatFilter{MemberID: creator})
	req.NoError(err)
	req.Empty(chats)
	members, err := store.Memberships.List(ctx, repository.MembershipFilter{MemberID: creator})
	req.NoError(err)
	req.Empty(members)
}

func TestChatStore_DeleteCascades(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := New().Store()
	tenant, a, b := uuid.New(), uuid.New(), uuid.New()

	ch, err := store.Chats.Create(ctx, tenant, a, "Team")
	req.NoError(err)
	_, _, err = store.Memberships.AddMember(ctx, ch.ID, b)
	req.NoError(err)
	msg, err := store.Messages.Create(ctx, ch.ID, b, "hi")
	req.NoError(err)

	deleted, err := store.Chats.Delete(ctx, tenant, ch.ID)

	req.NoError(err)
	req.True(deleted)
	for _, u := range []uuid.UUID{a, b} {
		member, err := store.Memberships.IsMember(ctx, ch.ID, u)
		req.NoError(err)
		req.False(member)
	}
	got, err := store.Messages.GetByID(ctx, msg.ID)
	req.NoError(err)
	req.Nil(got)

	deleted, err = store.Chats.Delete(ctx, tenant, ch.ID)
	req.NoError(err)
	req.False(deleted)
}

func TestChatStore_TenantIsolation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := New().Store()
	creator := uuid.New()

	ch, err := store.Chats.Create(ctx, uuid.New(), creator, "Team")
	req.NoError(err)

	got, err := store.Chats.GetByID(ctx, uuid.New(), ch.ID)
	req.NoError(err)
	req.Nil(got)
}

func TestChatStore_ListFilters(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := New()
	store := db.Store()
	tenant, a, b := uuid.New(), uuid.New(), uuid.New()

	base := time.Date(2025, 5, 7, 12, 0, 0, 0, time.UTC)
	clock := base
	db.now = func() time.Time { clock = clock.Add(time.Hour); return clock }

	team, _ := store.Chats.Create(ctx, tenant, a, "Team")
	random, _ := store.Chats.Create(ctx, tenant, b, "random")
	_, _ = store.Chats.Create(ctx, tenant, b, "b only")
	_, _, err := store.Memberships.AddMember(ctx, random.ID, a)
	req.NoError(err)

	all, err := store.Chats.List(ctx, tenant, repository.ChatFilter{MemberID: a})
	req.NoError(err)
	req.Len(all, 2)
	req.Equal(random.ID, all[0].ID)

	byCreator, err := store.Chats.List(ctx, tenant, repository.ChatFilter{MemberID: a, CreatorID: a})
	req.NoError(err)
	req.Len(byCreator, 1)
	req.Equal(team.ID, byCreator[0].ID)

	byName, err := store.Chats.List(ctx, tenant, repository.ChatFilter{MemberID: a, Name: "RAND"})
	req.NoError(err)
	req.Len(byName, 1)

	from := base.Add(90 * time.Minute)
	byDate, err := store.Chats.List(ctx, tenant, repository.ChatFilter{MemberID: a, CreatedFrom: &from})
	req.NoError(err)
	req.Len(byDate, 1)
	req.Equal(random.ID, byDate[0].ID)
}

func TestMessageStore_ListIsScopedAndPaginated(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := New().Store()
	tenant, a, b := uuid.New(), uuid.New(), uuid.New()

	mine, _ := store.Chats.Create(ctx, tenant, a, "mine")
	theirs, _ := store.Chats.Create(ctx, tenant, b, "theirs")
	for i := 0; i < 5; i++ {
		_, err := store.Messages.Create(ctx, mine.ID, a, "m")
		req.NoError(err)
	}
	_, err := store.Messages.Create(ctx, theirs.ID, b, "secret")
	req.NoError(err)

	page, err := store.Messages.List(ctx, repository.MessageFilter{MemberID: a, Limit: 2})
	req.NoError(err)
	req.Len(page, 2)
	req.Greater(page[0].ID, page[1].ID)

	next, err := store.Messages.List(ctx, repository.MessageFilter{MemberID: a, Before: page[1].ID, Limit: 10})
	req.NoError(err)
	req.Len(next, 3)
	for _, m := range next {
		req.Equal(mine.ID, m.ChatID)
	}
}

func TestMembershipStore_AddIsIdempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := New().Store()
	tenant, a, b := uuid.New(), uuid.New(), uuid.New()
	ch, _ := store.Chats.Create(ctx, tenant, a, "Team")

	added, created, err := store.Memberships.AddMember(ctx, ch.ID, b)
	req.NoError(err)
	req.True(created)

	_, created, err = store.Memberships.AddMember(ctx, ch.ID, b)
	req.NoError(err)
	req.False(created)

	members, err := store.Memberships.List(ctx, repository.MembershipFilter{MemberID: a, ChatID: ch.ID})
	req.NoError(err)
	req.Len(members, 2)

	// Removing hands back the deleted row as it was stored
	removed, err := store.Memberships.RemoveMember(ctx, ch.ID, b)
	req.NoError(err)
	req.NotNil(removed)
	req.Equal(*added, *removed)
	req.False(removed.JoinedAt.IsZero())

	removed, err = store.Memberships.RemoveMember(ctx, ch.ID, b)
	req.NoError(err)
	req.Nil(removed)
}
